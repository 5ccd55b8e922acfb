package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/config"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
	"github.com/personal-pl/plctl/internal/pl"
)

func newPLCommand(a *app) *cobra.Command {
	plCmd := &cobra.Command{
		Use:         "pl",
		Short:       "Monthly profit and loss",
		Annotations: route("/pl"),
	}
	plCmd.AddCommand(
		newPLShowCommand(a),
		newPLExportCommand(a),
		newPLBrowseCommand(a),
	)
	return plCmd
}

// summaryFlags are the filter and display flags shared by the pl commands.
type summaryFlags struct {
	month            period.Period
	accounts         []string
	includeTransfers bool
	currencyView     string
	rateUnit         string
	noCompare        bool
}

func (f *summaryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().Var(&f.month, "month", "month to show (YYYY-MM, default current month)")
	cmd.Flags().StringSliceVar(&f.accounts, "account", nil, "limit to accounts (repeatable, default all or defaults.accounts)")
	cmd.Flags().BoolVar(&f.includeTransfers, "include-transfers", false, "count transfers between own accounts")
	cmd.Flags().StringVar(&f.currencyView, "currency-view", "", "native or eur, overrides defaults.currency_view")
	cmd.Flags().StringVar(&f.rateUnit, "rate-unit", "", "savings rate unit sent by the server: percent or ratio")
	cmd.Flags().BoolVar(&f.noCompare, "no-compare", false, "skip the previous month comparison")
}

func (a *app) summaryFilter(cmd *cobra.Command, f *summaryFlags) (pl.Filter, error) {
	filter := pl.Filter{
		Month:    f.month,
		Accounts: a.cfg.Defaults.Accounts,
	}
	if filter.Month.IsZero() {
		filter.Month = period.Of(time.Now())
	}
	if cmd.Flags().Changed("account") {
		filter.Accounts = f.accounts
	}

	exclude := a.cfg.Defaults.ExcludeTransfers
	if cmd.Flags().Changed("include-transfers") {
		exclude = !f.includeTransfers
	}
	filter.ExcludeTransfers = &exclude

	view := a.cfg.Defaults.CurrencyView
	if f.currencyView != "" {
		view = f.currencyView
	}
	switch model.CurrencyView(view) {
	case model.CurrencyNative, model.CurrencyEUR:
		filter.CurrencyView = model.CurrencyView(view)
	default:
		return pl.Filter{}, fmt.Errorf("invalid currency view %q (want native or eur)", view)
	}
	return filter, nil
}

func (a *app) shapeOptions(f *summaryFlags) (pl.Options, error) {
	unit := a.cfg.Display.SavingsRateUnit
	if f.rateUnit != "" {
		unit = f.rateUnit
	}
	switch unit {
	case config.SavingsRatePercent, config.SavingsRateRatio:
	default:
		return pl.Options{}, fmt.Errorf("invalid rate unit %q (want %s or %s)", unit, config.SavingsRatePercent, config.SavingsRateRatio)
	}
	return pl.Options{
		RateIsRatio: unit == config.SavingsRateRatio,
		Currency:    a.cfg.Display.Currency,
	}, nil
}

func (a *app) view(f *summaryFlags) *pl.View {
	return pl.NewView(a.client, pl.WithLogger(a.log), pl.WithPrevious(!f.noCompare))
}

func newPLShowCommand(a *app) *cobra.Command {
	var f summaryFlags
	var expand []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the P&L summary for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := a.summaryFilter(cmd, &f)
			if err != nil {
				return err
			}
			opts, err := a.shapeOptions(&f)
			if err != nil {
				return err
			}
			v := a.view(&f)
			res, err := v.Refresh(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Response)
			}
			for _, c := range expand {
				if !v.Toggle(c) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s has no subcategories\n", c)
				}
			}
			rep, _ := v.Report(opts)
			return pl.RenderText(out, rep)
		},
	}

	f.bind(cmd)
	cmd.Flags().StringSliceVar(&expand, "expand", nil, "categories to expand into subcategories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw summary as JSON")

	return cmd
}

func newPLExportCommand(a *app) *cobra.Command {
	var f summaryFlags
	var outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the P&L summary to an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := a.summaryFilter(cmd, &f)
			if err != nil {
				return err
			}
			opts, err := a.shapeOptions(&f)
			if err != nil {
				return err
			}
			v := a.view(&f)
			if _, err := v.Refresh(cmd.Context(), filter); err != nil {
				return err
			}
			rep, _ := v.Report(opts)

			if outPath == "" {
				outPath = fmt.Sprintf("pl-%s.xlsx", filter.Month)
			}
			file, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("creating %s: %w", outPath, err)
			}
			if err := pl.ExportXLSX(file, rep); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}

	f.bind(cmd)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default pl-<month>.xlsx)")

	return cmd
}

func newPLBrowseCommand(a *app) *cobra.Command {
	var f summaryFlags

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Change filters interactively, one command per line",
		Long: `Reads commands from stdin:

  month YYYY-MM        switch month
  accounts A,B         limit to accounts (no argument for all)
  transfers on|off     include transfers
  currency native|eur  currency view
  toggle CATEGORY      expand or collapse a category
  show                 print the current summary
  quit

Filter changes refresh immediately without waiting for the previous
refresh. The summary for the last filter is printed at the end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := a.summaryFilter(cmd, &f)
			if err != nil {
				return err
			}
			opts, err := a.shapeOptions(&f)
			if err != nil {
				return err
			}
			b := &browser{view: a.view(&f), out: cmd.OutOrStdout(), opts: opts}
			return b.run(cmd.Context(), cmd.InOrStdin(), filter)
		},
	}

	f.bind(cmd)

	return cmd
}

type browser struct {
	view *pl.View
	opts pl.Options

	wg  sync.WaitGroup
	mu  sync.Mutex // serializes writes to out
	out io.Writer
}

func (b *browser) printf(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

func describe(f pl.Filter) string {
	accounts := "all accounts"
	if len(f.Accounts) > 0 {
		accounts = strings.Join(f.Accounts, ", ")
	}
	return fmt.Sprintf("%s (%s)", f.Month, accounts)
}

// refresh fires without waiting. Superseded results are dropped silently.
func (b *browser) refresh(ctx context.Context, f pl.Filter) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_, err := b.view.Refresh(ctx, f)
		switch {
		case errors.Is(err, pl.ErrSuperseded):
		case err != nil:
			b.printf("error loading %s: %v\n", describe(f), err)
		default:
			b.printf("loaded %s\n", describe(f))
		}
	}()
}

func (b *browser) show() error {
	b.wg.Wait()
	rep, ok := b.view.Report(b.opts)
	if !ok {
		b.printf("nothing loaded\n")
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return pl.RenderText(b.out, rep)
}

func (b *browser) run(ctx context.Context, in io.Reader, f pl.Filter) error {
	b.refresh(ctx, f)

	sc := bufio.NewScanner(in)
loop:
	for sc.Scan() {
		verb, arg, _ := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		arg = strings.TrimSpace(arg)

		switch verb {
		case "", "#":
			continue
		case "quit", "exit":
			break loop
		case "month":
			p, err := period.Parse(arg)
			if err != nil {
				b.printf("%v\n", err)
				continue
			}
			f.Month = p
		case "accounts":
			f.Accounts = nil
			for _, acc := range strings.Split(arg, ",") {
				if acc = strings.TrimSpace(acc); acc != "" {
					f.Accounts = append(f.Accounts, acc)
				}
			}
		case "transfers":
			exclude := arg != "on"
			f.ExcludeTransfers = &exclude
		case "currency":
			cv := model.CurrencyView(arg)
			if cv != model.CurrencyNative && cv != model.CurrencyEUR {
				b.printf("currency must be native or eur\n")
				continue
			}
			f.CurrencyView = cv
		case "toggle":
			b.wg.Wait()
			was := b.view.Expanded(arg)
			switch {
			case b.view.Toggle(arg):
				b.printf("expanded %s\n", arg)
			case was:
				b.printf("collapsed %s\n", arg)
			default:
				b.printf("%s has no subcategories\n", arg)
			}
			continue
		case "show":
			if err := b.show(); err != nil {
				return err
			}
			continue
		default:
			b.printf("unknown command %q\n", verb)
			continue
		}
		b.refresh(ctx, f)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading commands: %w", err)
	}

	if err := b.show(); err != nil {
		return err
	}
	cur, ok := b.view.Current()
	if !ok || cur.Filter.Month != f.Month || !slices.Equal(cur.Filter.Accounts, f.Accounts) {
		return fmt.Errorf("summary for %s did not load", describe(f))
	}
	return nil
}
