package workspace

import (
	"fmt"
	"strings"
)

// MissingFileError reports a required file or directory that does not exist.
type MissingFileError struct {
	Name string
	Path string
	Dir  bool
}

func (e *MissingFileError) Error() string {
	if e.Dir {
		return fmt.Sprintf("%s directory not found: %s", e.Name, e.Path)
	}
	return fmt.Sprintf("%s not found: %s", e.Name, e.Path)
}

// MissingColumnsError lists required CSV columns absent from the header.
type MissingColumnsError struct {
	Path    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("CSV missing required columns: %s", strings.Join(e.Columns, ", "))
}

// MissingImageError reports a row whose image does not exist on disk.
type MissingImageError struct {
	RowID string
	Path  string
}

func (e *MissingImageError) Error() string {
	if e.RowID == "" {
		return fmt.Sprintf("image file not found: %s", e.Path)
	}
	return fmt.Sprintf("image file not found for row %s: %s", e.RowID, e.Path)
}
