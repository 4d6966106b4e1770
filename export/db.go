package export

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	// Blind import support for sqlite3 used by OpenSQLite.
	_ "github.com/mattn/go-sqlite3"
)

// OpenSQLite opens the sqlite DB file at path.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite DB %q: %w", path, err)
	}
	return db, nil
}

// MySQLOptions describe a MySQL TCP endpoint.
type MySQLOptions struct {
	Server       string
	User         string
	PasswordFile string
	DBName       string
}

// OpenMySQL opens a pooled connection to the configured MySQL server.
func OpenMySQL(opts MySQLOptions) (*sql.DB, error) {
	pass, err := os.ReadFile(opts.PasswordFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read MySQL password file %q: %w", opts.PasswordFile, err)
	}
	cfg := mysql.Config{
		User:                 opts.User,
		Passwd:               strings.TrimSpace(string(pass)),
		Net:                  "tcp",
		Addr:                 opts.Server,
		DBName:               opts.DBName,
		AllowNativePasswords: true,
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to open MySQL DB %q: %w", opts.Server, err)
	}
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	return db, nil
}
