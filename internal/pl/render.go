package pl

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
)

func arrow(d Direction) string {
	switch d {
	case DirUp:
		return "▲"
	case DirDown:
		return "▼"
	case DirFlat:
		return "="
	case DirNew:
		return "new"
	}
	return ""
}

func money(v decimal.Decimal, currency string) string {
	if currency == "" {
		return v.StringFixed(2)
	}
	return v.StringFixed(2) + " " + currency
}

func signed(v decimal.Decimal, currency string) string {
	if v.IsPositive() {
		return "+" + money(v, currency)
	}
	return money(v, currency)
}

// RenderText writes rep as an aligned table. Expanded categories list
// their subcategories underneath.
func RenderText(w io.Writer, rep Report) error {
	accounts := "all accounts"
	if len(rep.Accounts) > 0 {
		accounts = strings.Join(rep.Accounts, ", ")
	}
	if _, err := fmt.Fprintf(w, "P&L %s (%s)\n\n", rep.Month.Label(), accounts); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Income\t%s\t\n", money(rep.Income, rep.Currency))
	fmt.Fprintf(tw, "Expenses\t%s\t\n", money(rep.Expenses, rep.Currency))

	netNote := ""
	if rep.NetDerived {
		netNote = " (computed)"
	}
	fmt.Fprintf(tw, "Net\t%s%s\t\n", signed(rep.Net, rep.Currency), netNote)
	fmt.Fprintf(tw, "vs last month\t%s\t\n", signed(rep.DeltaMoM, rep.Currency))
	if rep.SavingsRate != nil {
		fmt.Fprintf(tw, "Savings rate\t%s%%\t\n", rep.SavingsRate.StringFixed(2))
	} else {
		fmt.Fprintf(tw, "Savings rate\tn/a\t\n")
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !rep.Reconciled {
		if _, err := fmt.Fprintln(w, "\nwarning: net does not equal income minus expenses"); err != nil {
			return err
		}
	}

	if len(rep.Categories) == 0 {
		_, err := fmt.Fprintln(w, "\nNo transactions for this period.")
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tNET\tSHARE\tMOM\t")
	for _, c := range rep.Categories {
		marker := " "
		if c.HasSubs() {
			marker = "+"
			if c.Expanded {
				marker = "-"
			}
		}
		fmt.Fprintf(tw, "%s %s\t%s\t%s%%\t%s\t\n", marker, c.Category, signed(c.Net, rep.Currency), c.Share.StringFixed(1), arrow(c.Direction))
		if !c.Expanded {
			continue
		}
		for _, s := range c.Subs {
			name := s.Name
			if name == "" {
				name = "(none)"
			}
			fmt.Fprintf(tw, "    %s\t%s\t%s%%\t\t\n", name, signed(s.Net, rep.Currency), s.Share.StringFixed(1))
		}
	}
	return tw.Flush()
}
