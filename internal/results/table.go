package results

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/vk/reportbundle/internal/fsutil"
)

// Column names used by the scoring pipeline.
const (
	ColID         = "id"
	ColImagePath  = "image_path"
	ColScore      = "score"
	ColPrompt     = "prompt"
	ColReference  = "reference_image_path"
	ColCLIPScore  = "clip_score"
	ColLPIPSScore = "lpips_score"
	ColRunID      = "run_id"
)

// RequiredColumns must be present in every results CSV.
var RequiredColumns = []string{ColID, ColImagePath, ColScore}

// ScoreColumns are appended to the header by a scoring rewrite.
var ScoreColumns = []string{ColCLIPScore, ColLPIPSScore, ColRunID}

// ErrNoHeader is returned for an empty CSV.
var ErrNoHeader = errors.New("csv has no header row")

// DuplicateColumnError reports a header that names the same column twice.
// Rows are keyed by column name, so such a file cannot be rewritten without
// losing a value.
type DuplicateColumnError struct {
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("csv header repeats column %q", e.Column)
}

// Row maps column name to cell value.
type Row map[string]string

// Table is an in-memory CSV with an ordered header.
type Table struct {
	Header []string
	Rows   []Row
}

// Read parses a CSV with a header row. Records shorter than the header get
// empty values for the missing columns; cells beyond the header are dropped.
// A header naming a column twice yields a *DuplicateColumnError.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	seen := make(map[string]struct{}, len(header))
	for _, col := range header {
		if _, dup := seen[col]; dup {
			return nil, &DuplicateColumnError{Column: col}
		}
		seen[col] = struct{}{}
	}

	t := &Table{Header: slices.Clone(header)}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row := make(Row, len(t.Header))
		for i, col := range t.Header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ReadFile opens and parses the CSV at path.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// HasColumn reports whether the header contains col.
func (t *Table) HasColumn(col string) bool {
	return slices.Contains(t.Header, col)
}

// MissingColumns returns the subset of cols absent from the header, sorted.
func (t *Table) MissingColumns(cols ...string) []string {
	var missing []string
	for _, col := range cols {
		if !t.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	sort.Strings(missing)
	return missing
}

// EnsureColumns appends any of cols not yet in the header and returns how
// many were added. Existing rows get an empty value for new columns.
func (t *Table) EnsureColumns(cols ...string) int {
	added := 0
	for _, col := range cols {
		if t.HasColumn(col) {
			continue
		}
		t.Header = append(t.Header, col)
		for _, row := range t.Rows {
			row[col] = ""
		}
		added++
	}
	return added
}

// Write encodes the header and rows as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.Header))
	for i, row := range t.Rows {
		for j, col := range t.Header {
			record[j] = row[col]
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFileAtomic replaces the file at path with the table contents.
func WriteFileAtomic(path string, t *Table) error {
	return fsutil.WriteFileAtomic(path, 0o644, t.Write)
}

// FormatFloat renders a score the way the rest of the toolchain writes
// floats: shortest representation, always with a decimal point ("0.0").
func FormatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}
