package iqfile

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Extension is the conventional suffix of capture files.
	Extension = ".iq"

	defaultNameFmt    = "150405_02012006"
	defaultNameSuffix = "_results" + Extension
	forbiddenChars    = "\x00\\/:*?\"<>|"
)

// ValidateName rejects names with characters unsafe on common file systems
// and anything that could traverse to a parent directory.
func ValidateName(name string) error {
	if i := strings.IndexAny(name, forbiddenChars); i >= 0 {
		return fmt.Errorf("%w: %q contains forbidden character %q", ErrInvalidFileName, name, name[i])
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q contains \"..\"", ErrInvalidFileName, name)
	}
	return nil
}

// DefaultName returns the generated capture file name for t.
func DefaultName(t time.Time) string {
	return t.Format(defaultNameFmt) + defaultNameSuffix
}

// HasExtension reports whether name ends in the capture file extension.
func HasExtension(name string) bool {
	return len(name) > len(Extension) && strings.HasSuffix(name, Extension)
}
