package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHeaderlessSkipsBlankLines(t *testing.T) {
	in := "a,1,2\n\n b ,3,4\n"
	tbl, err := Read(strings.NewReader(in), ',', false)
	require.NoError(t, err)

	assert.Empty(t, tbl.Header)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, []string{"b ", "3", "4"}, tbl.Rows[1])
}

func TestColumnIndexNormalizesNames(t *testing.T) {
	tbl := &Table{Header: []string{"State", " Production Tonnes ", "YEAR"}}

	assert.Equal(t, 0, tbl.ColumnIndex("state"))
	assert.Equal(t, 1, tbl.ColumnIndex("Production_Tonnes"))
	assert.Equal(t, 2, tbl.ColumnIndex("Year"))
	assert.Equal(t, -1, tbl.ColumnIndex("Crop"))
}

func TestRequireColumnsUsesAliases(t *testing.T) {
	tbl := &Table{Header: []string{"SUBDIVISION", "YEAR", "ANNUAL"}}

	idx, err := tbl.RequireColumns(
		[]string{"Region", "Year", "Rainfall_mm"},
		map[string][]string{"Region": {"State", "Subdivision"}, "Rainfall_mm": {"Annual"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, idx)

	_, err = tbl.RequireColumns([]string{"Crop"}, nil)
	assert.ErrorContains(t, err, "missing columns Crop")
}

func TestProjectSeparatesShortRows(t *testing.T) {
	tbl := &Table{Rows: [][]string{
		{"0", "Punjab", "Ludhiana", "2015"},
		{"1", "Punjab"},
	}}

	out, short := tbl.Project([]int{1, 3}, []string{"Region", "Year"})
	require.Len(t, out.Rows, 1)
	assert.Equal(t, []string{"Punjab", "2015"}, out.Rows[0])
	assert.Equal(t, []string{"Region", "Year"}, out.Header)
	assert.Len(t, short, 1)
}

func TestWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "table.csv")
	tbl := &Table{
		Header: []string{"Region", "Note"},
		Rows:   [][]string{{"Jammu And Kashmir", "has, comma"}},
	}

	require.NoError(t, tbl.WriteFile(path))

	got, err := ReadFile(path, ReadOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, tbl.Header, got.Header)
	assert.Equal(t, tbl.Rows, got.Rows)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestReadFileSniffsDelimiter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "semi.csv")
	require.NoError(t, os.WriteFile(path, []byte("Region;Year\nKerala;2001\n"), 0o644))

	tbl, err := ReadFile(path, ReadOptions{HasHeader: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Region", "Year"}, tbl.Header)
	assert.Equal(t, [][]string{{"Kerala", "2001"}}, tbl.Rows)
}
