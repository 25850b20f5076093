package tabular

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Table is an in-memory delimited file. Header is empty for headerless sources.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadOptions controls how a delimited file is read.
type ReadOptions struct {
	// HasHeader treats the first record as the header row.
	HasHeader bool
	// Delimiter for the file. If 0, auto-detects among ',', ';', '\t'.
	Delimiter rune
}

// ReadFile reads a delimited text file. Records may have a varying number of fields;
// callers decide how to treat short rows.
func ReadFile(path string, opt ReadOptions) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(f)
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to rewind %s: %w", path, err)
		}
	}
	return Read(f, delim, opt.HasHeader)
}

// Read parses delimited records from r.
func Read(r io.Reader, delim rune, hasHeader bool) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	t := &Table{}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		if first {
			first = false
			if len(rec) > 0 {
				rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			}
			if hasHeader {
				t.Header = rec
				continue
			}
		}
		if isBlank(rec) {
			continue
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// NormalizeColumnName trims a header cell and replaces inner spaces with underscores.
func NormalizeColumnName(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), "_")
}

// ColumnIndex finds a header column case-insensitively after NormalizeColumnName.
// It returns -1 when the column is absent.
func (t *Table) ColumnIndex(name string) int {
	want := strings.ToLower(NormalizeColumnName(name))
	for i, h := range t.Header {
		if strings.ToLower(NormalizeColumnName(h)) == want {
			return i
		}
	}
	return -1
}

// RequireColumns returns the header index of every named column, resolving each
// name through its aliases. It is the only schema check performed on input files.
func (t *Table) RequireColumns(columns []string, aliases map[string][]string) ([]int, error) {
	idx := make([]int, len(columns))
	var missing []string
	for i, col := range columns {
		idx[i] = t.ColumnIndex(col)
		for _, alt := range aliases[col] {
			if idx[i] >= 0 {
				break
			}
			idx[i] = t.ColumnIndex(alt)
		}
		if idx[i] < 0 {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns %s (have %s)", strings.Join(missing, ", "), strings.Join(t.Header, ", "))
	}
	return idx, nil
}

// Project keeps the cells at the given positions, in order, under a new header.
// Rows shorter than the largest position are returned separately.
func (t *Table) Project(positions []int, header []string) (projected *Table, short [][]string) {
	need := 0
	for _, p := range positions {
		if p+1 > need {
			need = p + 1
		}
	}
	out := &Table{Header: append([]string(nil), header...), Rows: make([][]string, 0, len(t.Rows))}
	for _, row := range t.Rows {
		if len(row) < need {
			short = append(short, row)
			continue
		}
		cells := make([]string, len(positions))
		for i, p := range positions {
			cells[i] = strings.TrimSpace(row[p])
		}
		out.Rows = append(out.Rows, cells)
	}
	return out, short
}

// WriteFile writes the table with its header row. The file is written next to the
// destination and renamed into place, so readers never see a partial file.
func (t *Table) WriteFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := t.Write(bw); err != nil {
		tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// Write encodes the table as comma separated values.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if len(t.Header) > 0 {
		if err := cw.Write(t.Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

func sniffDelimiter(r io.Reader) rune {
	br := bufio.NewReader(r)
	line, _ := br.ReadString('\n')
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
