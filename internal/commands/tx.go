package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
	"github.com/personal-pl/plctl/internal/transactions"
)

func newTxCommand(a *app) *cobra.Command {
	txCmd := &cobra.Command{
		Use:         "tx",
		Short:       "Derived transactions",
		Annotations: route("/tx"),
	}
	txCmd.AddCommand(newTxListCommand(a), newTxExportCommand(a))
	return txCmd
}

type txFlags struct {
	month         period.Period
	accounts      []string
	category      string
	subcategory   string
	merchant      string
	uncategorized bool
}

func (f *txFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Var(&f.month, "month", "month (YYYY-MM, default all)")
	cmd.Flags().StringSliceVar(&f.accounts, "account", nil, "limit to accounts (repeatable)")
	cmd.Flags().StringVar(&f.category, "category", "", "category")
	cmd.Flags().StringVar(&f.subcategory, "subcategory", "", "subcategory")
	cmd.Flags().StringVar(&f.merchant, "merchant", "", "merchant")
	cmd.Flags().BoolVar(&f.uncategorized, "uncategorized", false, "only transactions without a category")
}

func (f *txFlags) query() model.TransactionQuery {
	q := model.TransactionQuery{
		Accounts:          f.accounts,
		Category:          f.category,
		Subcategory:       f.subcategory,
		Merchant:          f.merchant,
		UncategorizedOnly: f.uncategorized,
	}
	if !f.month.IsZero() {
		m := f.month
		q.Month = &m
	}
	return q
}

func newTxListCommand(a *app) *cobra.Command {
	var f txFlags
	var limit, offset int
	var all bool
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions a page at a time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := f.query()
			q.Limit, q.Offset = limit, offset

			var txs []model.Transaction
			var total int
			if all {
				q.Limit = transactions.MaxPageSize
				collected, err := transactions.Collect(cmd.Context(), a.client, q, 0)
				if err != nil {
					return err
				}
				txs, total = collected, offset+len(collected)
			} else {
				page, err := transactions.List(cmd.Context(), a.client, q)
				if err != nil {
					return err
				}
				txs, total = page.Transactions, page.Total
			}

			out := cmd.OutOrStdout()
			switch format {
			case "table":
				if err := writeTxTable(out, txs); err != nil {
					return err
				}
				if len(txs) > 0 {
					fmt.Fprintf(out, "%d-%d of %d\n", offset+1, offset+len(txs), total)
				}
				return nil
			case "csv":
				return transactions.WriteCSV(out, txs)
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(txs)
			default:
				return fmt.Errorf("invalid format %q (want table, csv or json)", format)
			}
		},
	}

	f.bind(cmd)
	cmd.Flags().IntVar(&limit, "limit", transactions.DefaultPageSize, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every page")
	cmd.Flags().StringVar(&format, "format", "table", "table, csv or json")

	return cmd
}

func writeTxTable(w io.Writer, txs []model.Transaction) error {
	if len(txs) == 0 {
		_, err := fmt.Fprintln(w, "No transactions.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tACCOUNT\tDESCRIPTION\tCATEGORY\tAMOUNT")
	for _, tx := range txs {
		account := tx.AccountLabel
		if account == "" {
			account = tx.AccountID
		}
		category := tx.Category
		if tx.Subcategory != "" {
			category += " / " + tx.Subcategory
		}
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\n",
			tx.Timestamp.Format("2006-01-02"), account, tx.Description, category, tx.Amount.StringFixed(2), tx.Currency)
	}
	return tw.Flush()
}

func newTxExportCommand(a *app) *cobra.Command {
	var f txFlags
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write matching transactions to .csv or .xlsx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := f.query()
			q.Limit = transactions.MaxPageSize
			txs, err := transactions.Collect(cmd.Context(), a.client, q, 0)
			if err != nil {
				return err
			}

			file, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outPath, err)
			}
			if strings.EqualFold(filepath.Ext(outPath), ".xlsx") {
				err = transactions.WriteXLSX(file, txs)
			} else {
				err = transactions.WriteCSV(file, txs)
			}
			if err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d transactions to %s\n", len(txs), outPath)
			return nil
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file, .csv or .xlsx (required)")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
