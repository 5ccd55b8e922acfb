package transactions

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/personal-pl/plctl/internal/model"
)

// Header is the CSV header of an export.
const Header = "date,account,description,merchant,category,subcategory,amount,currency,amount_eur,transfer"

const (
	numFields     = 10
	colDate       = 0
	colAccount    = 1
	colDesc       = 2
	colMerchant   = 3
	colCategory   = 4
	colSubcat     = 5
	colAmount     = 6
	colCurrency   = 7
	colAmountEUR  = 8
	colIsTransfer = 9
)

// MarshalTransaction converts a transaction to an export row.
func MarshalTransaction(tx model.Transaction) []string {
	row := make([]string, numFields)
	row[colDate] = tx.Timestamp.Format("2006-01-02")
	row[colAccount] = tx.AccountID
	if tx.AccountLabel != "" {
		row[colAccount] = tx.AccountLabel
	}
	row[colDesc] = tx.Description
	row[colMerchant] = tx.Merchant
	row[colCategory] = tx.Category
	row[colSubcat] = tx.Subcategory
	row[colAmount] = tx.Amount.StringFixed(2)
	row[colCurrency] = tx.Currency
	if tx.AmountEUR != nil {
		row[colAmountEUR] = tx.AmountEUR.StringFixed(2)
	}
	row[colIsTransfer] = strconv.FormatBool(tx.IsTransfer)
	return row
}

// WriteCSV writes txs with a header row.
func WriteCSV(w io.Writer, txs []model.Transaction) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, tx := range txs {
		if err := cw.Write(MarshalTransaction(tx)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const sheet = "Transactions"

// WriteXLSX writes txs to a single-sheet workbook. Amounts are numeric
// cells.
func WriteXLSX(w io.Writer, txs []model.Transaction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	header := make([]any, 0, numFields)
	for _, h := range strings.Split(Header, ",") {
		header = append(header, h)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, tx := range txs {
		row := make([]any, numFields)
		for j, v := range MarshalTransaction(tx) {
			row[j] = v
		}
		row[colAmount] = tx.Amount.InexactFloat64()
		if tx.AmountEUR != nil {
			row[colAmountEUR] = tx.AmountEUR.InexactFloat64()
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	if err := f.AutoFilter(sheet, fmt.Sprintf("A1:J%d", len(txs)+1), nil); err != nil {
		return fmt.Errorf("adding filter: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
