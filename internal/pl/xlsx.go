package pl

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet    = "Summary"
	categoriesSheet = "Categories"
)

// ExportXLSX writes rep as a workbook with a summary sheet and a
// categories sheet listing every subcategory.
func ExportXLSX(w io.Writer, rep Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	rate := ""
	if rep.SavingsRate != nil {
		rate = rep.SavingsRate.StringFixed(2)
	}
	rows := [][]any{
		{"Month", rep.Month.String()},
		{"Currency", rep.Currency},
		{"Income", rep.Income.InexactFloat64()},
		{"Expenses", rep.Expenses.InexactFloat64()},
		{"Net", rep.Net.InexactFloat64()},
		{"Delta MoM", rep.DeltaMoM.InexactFloat64()},
		{"Savings rate %", rate},
	}
	for i, row := range rows {
		if err := f.SetSheetRow(summarySheet, cell(1, i+1), &row); err != nil {
			return fmt.Errorf("writing summary: %w", err)
		}
	}

	if _, err := f.NewSheet(categoriesSheet); err != nil {
		return fmt.Errorf("adding sheet: %w", err)
	}
	header := []any{"Category", "Subcategory", "Net", "Share %"}
	if err := f.SetSheetRow(categoriesSheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	r := 2
	for _, c := range rep.Categories {
		row := []any{c.Category, "", c.Net.InexactFloat64(), c.Share.InexactFloat64()}
		if err := f.SetSheetRow(categoriesSheet, cell(1, r), &row); err != nil {
			return fmt.Errorf("writing %s: %w", c.Category, err)
		}
		r++
		for _, s := range c.Subs {
			row := []any{c.Category, s.Name, s.Net.InexactFloat64(), s.Share.InexactFloat64()}
			if err := f.SetSheetRow(categoriesSheet, cell(1, r), &row); err != nil {
				return fmt.Errorf("writing %s/%s: %w", c.Category, s.Name, err)
			}
			r++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
