package pl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRenderText(t *testing.T) {
	rep := Shape(julyResponse(), nil, Options{Currency: "EUR", Expanded: map[string]bool{"Food": true}})

	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, rep))
	out := buf.String()

	assert.Contains(t, out, "P&L July 2025 (all accounts)")
	assert.Contains(t, out, "5926.24 EUR")
	assert.Contains(t, out, "229.38 EUR")
	assert.Contains(t, out, "+5696.86 EUR (computed)")
	assert.Contains(t, out, "96.13%")
	assert.Contains(t, out, "- Food")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "+ Income")
	assert.NotContains(t, out, "Salary", "collapsed")
	assert.NotContains(t, out, "warning")
}

func TestRenderText_Unreconciled(t *testing.T) {
	resp := julyResponse()
	resp.Summary.Net = dp("1.00")
	resp.Filters.Accounts = []string{"BNP"}

	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, Shape(resp, nil, Options{})))
	assert.Contains(t, buf.String(), "(BNP)")
	assert.Contains(t, buf.String(), "warning: net does not equal income minus expenses")
}

func TestRenderText_Empty(t *testing.T) {
	resp := julyResponse()
	resp.Rows = nil
	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, Shape(resp, nil, Options{})))
	assert.True(t, strings.HasSuffix(buf.String(), "No transactions for this period.\n"))
}

func TestExportXLSX(t *testing.T) {
	rep := Shape(julyResponse(), nil, Options{Currency: "EUR"})

	var buf bytes.Buffer
	require.NoError(t, ExportXLSX(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Categories"}, f.GetSheetList())

	month, err := f.GetCellValue("Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "2025-07", month)

	rows, err := f.GetRows("Categories")
	require.NoError(t, err)
	require.Len(t, rows, 1+3+3, "header, categories, subcategories")
	assert.Equal(t, []string{"Category", "Subcategory", "Net", "Share %"}, rows[0])
	assert.Equal(t, "Food", rows[1][0])
	assert.Equal(t, "Groceries", rows[2][1])
}
