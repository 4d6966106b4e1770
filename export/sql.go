package export

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/iqscope/spectrum"
)

const (
	sqlBinCountInfo = 1000

	sqliteCreateTableTmpl = `CREATE TABLE IF NOT EXISTS iqscope (
		"ID"           INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
		"Identifier"   TEXT NOT NULL,
		"Source"       TEXT NOT NULL,
		"Bin"          INTEGER,
		"FreqCenter"   INTEGER,
		"FreqLow"      INTEGER,
		"FreqHigh"     INTEGER,
		"DB"           REAL,
		"BlockLength"  INTEGER,
		"BlockCount"   INTEGER,
		"Created"      INTEGER
	);`
	mysqlCreateTableTmpl = `CREATE TABLE IF NOT EXISTS iqscope (
		ID           BIGINT NOT NULL PRIMARY KEY AUTO_INCREMENT,
		Identifier   VARCHAR(64) NOT NULL,
		Source       TEXT NOT NULL,
		Bin          INTEGER,
		FreqCenter   BIGINT,
		FreqLow      BIGINT,
		FreqHigh     BIGINT,
		DB           DOUBLE,
		BlockLength  INTEGER,
		BlockCount   INTEGER,
		Created      BIGINT,
		INDEX (Identifier)
	);`
	sqlInsertBinTmpl = `INSERT INTO iqscope (
		Identifier,
		Source,
		Bin,
		FreqCenter,
		FreqLow,
		FreqHigh,
		DB,
		BlockLength,
		BlockCount,
		Created
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	sqlSelectBinsTmpl = `SELECT
		Identifier,
		Source,
		Bin,
		FreqCenter,
		FreqLow,
		FreqHigh,
		DB,
		BlockLength,
		BlockCount,
		Created
	FROM
		iqscope
	WHERE
		Identifier = ?
	ORDER BY
		Bin ASC;`
)

// SQL stores bins in the iqscope table of a SQLite or MySQL database.
type SQL struct {
	DB *sql.DB
	// Dialect is "sqlite3" or "mysql" and selects the table definition.
	Dialect string
}

func (s *SQL) createTableTmpl() (string, error) {
	switch s.Dialect {
	case "sqlite3", "sqlite":
		return sqliteCreateTableTmpl, nil
	case "mysql":
		return mysqlCreateTableTmpl, nil
	}
	return "", fmt.Errorf("%q is not a supported SQL dialect, pick one of: sqlite3, mysql", s.Dialect)
}

// Init creates the table if it does not exist yet.
func (s *SQL) Init(ctx context.Context) error {
	tmpl, err := s.createTableTmpl()
	if err != nil {
		return err
	}
	if _, err := s.DB.ExecContext(ctx, tmpl); err != nil {
		return fmt.Errorf("unable to create table: %w", err)
	}
	return nil
}

func (s *SQL) Write(ctx context.Context, bins <-chan spectrum.Bin) error {
	if err := s.Init(ctx); err != nil {
		return err
	}
	statement, err := s.DB.PrepareContext(ctx, sqlInsertBinTmpl)
	if err != nil {
		return err
	}
	defer statement.Close()

	counts := map[string]int{
		"error":   0,
		"success": 0,
		"total":   0,
	}
	for b := range bins {
		counts["total"] += 1
		if _, err := statement.ExecContext(ctx, b.Identifier, b.Source, b.Bin, b.FreqCenter, b.FreqLow, b.FreqHigh, b.DB, b.BlockLength, b.BlockCount, b.Created.UnixMilli()); err != nil {
			counts["error"] += 1
			glog.Warningf("error storing in %s DB: %s\n", s.Dialect, err)
			continue
		}
		counts["success"] += 1
		if counts["total"]%sqlBinCountInfo == 0 {
			glog.Infof("Bin export counts: %+v\n", counts)
		}
	}
	glog.Infof("Bin export counts: %+v\n", counts)

	return nil
}

// Load returns the stored bins of one spectrum ordered by bin index.
func (s *SQL) Load(ctx context.Context, identifier string) ([]spectrum.Bin, error) {
	rows, err := s.DB.QueryContext(ctx, sqlSelectBinsTmpl, identifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []spectrum.Bin
	for rows.Next() {
		var b spectrum.Bin
		var created int64
		if err := rows.Scan(&b.Identifier, &b.Source, &b.Bin, &b.FreqCenter, &b.FreqLow, &b.FreqHigh, &b.DB, &b.BlockLength, &b.BlockCount, &created); err != nil {
			return nil, err
		}
		b.Created = time.UnixMilli(created)
		bins = append(bins, b)
	}
	return bins, rows.Err()
}
