package tabular

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *float64
	}{
		{name: "integer", input: "1234", want: f(1234)},
		{name: "decimal with spaces", input: "  12.5 ", want: f(12.5)},
		{name: "thousands separator", input: "1,234.5", want: f(1234.5)},
		{name: "negative", input: "-3", want: f(-3)},
		{name: "grouped millions", input: "1,234,567", want: f(1234567)},
		{name: "negative grouped", input: "-12,000.25", want: f(-12000.25)},
		{name: "decimal comma", input: "1,5", want: nil},
		{name: "short group", input: "12,34", want: nil},
		{name: "leading comma", input: ",123", want: nil},
		{name: "trailing comma", input: "123,", want: nil},
		{name: "oversized first group", input: "1234,567", want: nil},
		{name: "comma after decimal point", input: "1.234,5", want: nil},
		{name: "N/A marker", input: "N/A", want: nil},
		{name: "NA marker", input: "NA", want: nil},
		{name: "dash marker", input: "-", want: nil},
		{name: "empty", input: "", want: nil},
		{name: "text", input: "Kharif", want: nil},
		{name: "nan literal", input: "NaN", want: nil},
		{name: "infinity", input: "Inf", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseNumber(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestParseNumberIsIdempotent(t *testing.T) {
	for _, in := range []string{"1234", "N/A", "0.1", "", "7,000", "garbage", "1e3"} {
		once := ParseNumber(in)
		twice := ParseNumber(FormatNumber(once))
		if once == nil {
			assert.Nil(t, twice, "input %q", in)
			continue
		}
		require.NotNil(t, twice, "input %q", in)
		assert.Equal(t, *once, *twice, "input %q", in)
	}
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"2015", 2015, true},
		{" 2015.0 ", 2015, true},
		{"2015-16", 2015, true},
		{"Year", 0, false},
		{"2015.5", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseYear(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceColumnCountsFailures(t *testing.T) {
	values, failed := CoerceColumn([]string{"1", "", "x", "2.5", "N/A"})
	require.Len(t, values, 5)
	assert.Equal(t, 1, failed, "only x fails; N/A is a missing marker")
	assert.Nil(t, values[1])
	assert.Equal(t, 2.5, *values[3])
}

func f(v float64) *float64 { return &v }
