package period

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		year  int
		month time.Month
		want  string
	}{
		{2025, time.January, "2025-01"},
		{2025, time.December, "2025-12"},
		{999, time.March, "0999-03"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.year, tt.month))
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		input     string
		wantYear  int
		wantMonth time.Month
	}{
		{"2025-07", 2025, time.July},
		{"2025/07", 2025, time.July},
		{"2025-07-01", 2025, time.July},
		{"2025-07-31", 2025, time.July},
		{" 2024-12 ", 2024, time.December},
	}
	for _, tt := range tests {
		p, err := Parse(tt.input)
		require.NoError(t, err, "Parse(%q)", tt.input)
		assert.Equal(t, tt.wantYear, p.Year, "year for %q", tt.input)
		assert.Equal(t, tt.wantMonth, p.Month, "month for %q", tt.input)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{"", "2025", "2025-13", "2025-00", "25-07", "2025-07-32", "abcd-01", "2025/07/01", "July 2025"} {
		_, err := Parse(input)
		assert.Error(t, err, "Parse(%q) should fail", input)
	}
}

func TestPrevNext(t *testing.T) {
	jan := MustParse("2025-01")
	assert.Equal(t, "2024-12", jan.Prev().String())
	assert.Equal(t, "2025-02", jan.Next().String())
	assert.Equal(t, "2026-01", MustParse("2025-12").Next().String())
}

func TestStartEnd(t *testing.T) {
	feb := MustParse("2024-02")
	assert.Equal(t, "2024-02-01", feb.Start().Format("2006-01-02"))
	assert.Equal(t, "2024-02-29", feb.End().Format("2006-01-02"))
	assert.True(t, feb.Contains(time.Date(2024, 2, 15, 12, 0, 0, 0, time.UTC)))
	assert.False(t, feb.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "July 2025", MustParse("2025-07").Label())
}

func TestZero(t *testing.T) {
	var p Period
	assert.True(t, p.IsZero())
	assert.Equal(t, "", p.String())
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(MustParse("2025-07"))
	require.NoError(t, err)
	assert.Equal(t, `"2025-07"`, string(data))

	var p Period
	require.NoError(t, json.Unmarshal([]byte(`"2025-07-01"`), &p))
	assert.Equal(t, MustParse("2025-07"), p)

	require.Error(t, json.Unmarshal([]byte(`202507`), &p))
	require.Error(t, json.Unmarshal([]byte(`"garbage"`), &p))
}

func TestSet(t *testing.T) {
	var p Period
	require.NoError(t, p.Set("2025-03"))
	assert.Equal(t, "2025-03", p.String())
	assert.Equal(t, "period", p.Type())
	assert.Error(t, p.Set("nope"))
}
