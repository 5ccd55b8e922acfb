package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/importer"
	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
)

func newImportCommand(a *app) *cobra.Command {
	importCmd := &cobra.Command{
		Use:         "import",
		Short:       "Upload bank statements and commit them",
		Annotations: route("/upload"),
	}
	importCmd.AddCommand(
		newImportUploadCommand(a),
		newImportCommitCommand(a),
		newImportStatusCommand(a),
		newImportRunCommand(a),
		newImportWatchCommand(a),
		newImportHistoryCommand(a),
	)
	return importCmd
}

func (a *app) ledger() *importer.Ledger {
	return importer.NewLedger(a.cfg.LedgerFile(a.configPath))
}

func (a *app) workflow(p period.Period) *importer.Workflow {
	return importer.NewWorkflow(a.client, p,
		importer.WithLedger(a.ledger()),
		importer.WithMaxBytes(a.cfg.Import.MaxUploadBytes),
		importer.WithLogger(a.log),
	)
}

// resumed returns a workflow for p that knows about uploads made by earlier
// invocations and not yet committed.
func (a *app) resumed(p period.Period) (*importer.Workflow, error) {
	w := a.workflow(p)
	entries, err := a.ledger().Read()
	if err != nil {
		return nil, err
	}
	w.Resume(entries)
	return w, nil
}

func periodFlag(cmd *cobra.Command, p *period.Period, required bool) {
	cmd.Flags().Var(p, "period", "statement month (YYYY-MM)")
	if required {
		_ = cmd.MarkFlagRequired("period")
	}
}

func newImportUploadCommand(a *app) *cobra.Command {
	var p period.Period
	var bankName string

	cmd := &cobra.Command{
		Use:   "upload <file.csv>...",
		Short: "Upload statements for a period without committing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bank model.Bank
			if bankName != "" {
				b, err := model.ParseBank(bankName)
				if err != nil {
					return err
				}
				bank = b
			}
			return runUpload(cmd.Context(), cmd.OutOrStdout(), a.workflow(p), bank, args)
		},
	}

	periodFlag(cmd, &p, true)
	cmd.Flags().StringVar(&bankName, "bank", "", "bank of every file (detected from name and header when empty)")

	return cmd
}

func runUpload(ctx context.Context, out io.Writer, w *importer.Workflow, bank model.Bank, files []string) error {
	formats := importer.DefaultRegistry()
	var failed int
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		b := bank
		if b == "" {
			detected, ok := formats.Detect(filepath.Base(path), data)
			if !ok {
				fmt.Fprintf(out, "%s: cannot tell which bank this is, use --bank\n", path)
				failed++
				continue
			}
			b = detected
		}

		batch, err := w.Upload(ctx, b, path, bytes.NewReader(data))
		var vf *importer.ValidationFailure
		switch {
		case errors.As(err, &vf):
			fmt.Fprintf(out, "%s: %s: %s\n", b, filepath.Base(path), vf.Hint)
			failed++
		case err != nil:
			return err
		case batch.DuplicateDetected:
			fmt.Fprintf(out, "%s: %s already imported, nothing new\n", b, filepath.Base(path))
		default:
			fmt.Fprintf(out, "%s: uploaded %d rows from %s (batch %s)\n", b, batch.RawRowsImported, filepath.Base(path), batch.ID)
		}
	}

	if ready := w.Ready(); len(ready) > 0 {
		fmt.Fprintf(out, "Ready to commit %s: %v. Run \"plctl import commit --period %s\".\n", w.Period(), ready, w.Period())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files not uploaded", failed, len(files))
	}
	return nil
}

func newImportCommitCommand(a *app) *cobra.Command {
	var p period.Period
	var accounts []string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Derive transactions from the period's uploaded statements",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.resumed(p)
			if err != nil {
				return err
			}
			res, err := w.Commit(cmd.Context(), accounts...)
			if errors.Is(err, importer.ErrNothingToCommit) {
				return fmt.Errorf("%w for %s; upload a statement first", err, p)
			}
			if err != nil {
				return err
			}
			printCommit(cmd.OutOrStdout(), res)
			return nil
		},
	}

	periodFlag(cmd, &p, true)
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "commit only these banks (repeatable, default every uploaded bank)")

	return cmd
}

func printCommit(out io.Writer, res model.CommitResult) {
	fmt.Fprintf(out, "Committed %s: %d transactions from %v, %d rules applied\n",
		res.Period, res.TransactionsDerived, res.AccountsProcessed, res.RulesApplied)
	if res.UncategorizedCount > 0 {
		fmt.Fprintf(out, "%d transactions need a category (plctl tx list --month %s --uncategorized)\n",
			res.UncategorizedCount, res.Period)
	}
}

func newImportStatusCommand(a *app) *cobra.Command {
	var p period.Period

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which banks are uploaded and waiting for a commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.resumed(p)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "BANK\tSTATE\tFILE\tBATCH")
			for _, c := range w.Cards() {
				batch := ""
				if c.Batch != nil {
					batch = c.Batch.ID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Bank, c.State, c.File, batch)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Phase: %s\n", w.Phase())
			return nil
		},
	}

	periodFlag(cmd, &p, true)

	return cmd
}

func (a *app) importDir(args []string) (string, error) {
	dir := a.cfg.Import.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		return "", errors.New("no statements directory; pass one or set import.dir")
	}
	return filepath.Abs(dir)
}

func newImportRunCommand(a *app) *cobra.Command {
	var p period.Period
	var noCommit bool

	cmd := &cobra.Command{
		Use:   "run [dir]",
		Short: "Upload every statement in a directory, then commit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.importDir(args)
			if err != nil {
				return err
			}
			w, err := a.resumed(p)
			if err != nil {
				return err
			}
			res, err := importer.RunDir(cmd.Context(), w, dir, importer.RunOptions{
				Concurrency: a.cfg.Import.Concurrency,
				NoCommit:    noCommit,
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			return printRun(cmd.OutOrStdout(), res)
		},
	}

	periodFlag(cmd, &p, true)
	cmd.Flags().BoolVar(&noCommit, "no-commit", false, "upload only")

	return cmd
}

func printRun(out io.Writer, res importer.RunResult) error {
	for _, b := range res.Uploaded {
		fmt.Fprintf(out, "uploaded   %s %s (%d rows)\n", b.Bank, b.SourceFile, b.RawRowsImported)
	}
	for _, b := range res.Duplicates {
		fmt.Fprintf(out, "duplicate  %s %s\n", b.Bank, b.SourceFile)
	}
	for _, name := range res.Skipped {
		fmt.Fprintf(out, "skipped    %s (unknown bank)\n", name)
	}
	names := make([]string, 0, len(res.Failed))
	for name := range res.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msg := res.Failed[name].Error()
		var vf *importer.ValidationFailure
		if errors.As(res.Failed[name], &vf) {
			msg = vf.Hint
		}
		fmt.Fprintf(out, "failed     %s: %s\n", name, msg)
	}

	if res.Commit != nil {
		printCommit(out, *res.Commit)
	}
	if res.CommitErr != nil {
		return res.CommitErr
	}
	if len(res.Failed) > 0 {
		return fmt.Errorf("%d files failed", len(res.Failed))
	}
	return nil
}

func newImportWatchCommand(a *app) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Import a directory on a schedule until interrupted",
		Long: "Runs \"import run\" for the previous month on a cron schedule. " +
			"Statements are usually exported once the month has closed.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.importDir(args)
			if err != nil {
				return err
			}
			if schedule == "" {
				schedule = a.cfg.Import.Schedule
			}
			out := cmd.OutOrStdout()
			job := func(ctx context.Context) error {
				w, err := a.resumed(period.Of(time.Now()).Prev())
				if err != nil {
					return err
				}
				res, err := importer.RunDir(ctx, w, dir, importer.RunOptions{
					Concurrency: a.cfg.Import.Concurrency,
					Logger:      a.log,
				})
				if err != nil {
					return err
				}
				return printRun(out, res)
			}
			s, err := importer.NewScheduler(schedule, time.Local, job, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %s (%s)\n", dir, schedule)
			return s.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule, overrides import.schedule")

	return cmd
}

func newImportHistoryCommand(a *app) *cobra.Command {
	var p period.Period

	cmd := &cobra.Command{
		Use:         "history",
		Short:       "Show the local import ledger",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{offlineKey: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.ledger().Read()
			if err != nil {
				return err
			}
			if !p.IsZero() {
				entries = importer.ForPeriod(entries, p)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No imports recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tPERIOD\tBANK\tOUTCOME\tROWS\tFILE\tDETAIL")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.Timestamp.Local().Format("2006-01-02 15:04"), e.Period, e.Bank, e.Outcome, e.Rows, e.File, e.Detail)
			}
			return tw.Flush()
		},
	}

	periodFlag(cmd, &p, false)

	return cmd
}
