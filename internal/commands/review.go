package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/personal-pl/plctl/internal/model"
	"github.com/personal-pl/plctl/internal/period"
	"github.com/personal-pl/plctl/internal/review"
)

func newReviewCommand(a *app) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:         "review",
		Short:       "Monthly review log",
		Annotations: route("/journal"),
	}
	reviewCmd.AddCommand(
		newReviewAddCommand(a),
		newReviewListCommand(a),
		newReviewShowCommand(a),
		newReviewEditCommand(a),
		newReviewExportCommand(a),
		newReviewDeleteCommand(a),
	)
	return reviewCmd
}

func (a *app) review() *review.Service {
	return review.NewService(a.client, a.log)
}

// markdownArg reads text from a file when v starts with "@". "@-" reads
// stdin.
func markdownArg(cmd *cobra.Command, v string) (string, error) {
	if len(v) == 0 || v[0] != '@' {
		return v, nil
	}
	var data []byte
	var err error
	if v == "@-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(v[1:])
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", v[1:], err)
	}
	return string(data), nil
}

func newReviewAddCommand(a *app) *cobra.Command {
	var month period.Period
	var start, end string
	var observations, decisions string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record observations and decisions for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			obs, err := markdownArg(cmd, observations)
			if err != nil {
				return err
			}
			dec, err := markdownArg(cmd, decisions)
			if err != nil {
				return err
			}

			var in model.JournalCreate
			switch {
			case !month.IsZero():
				in = review.ForMonth(month, obs, dec)
			case start != "" || end != "":
				s, err := model.ParseDate(start)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				e, err := model.ParseDate(end)
				if err != nil {
					return fmt.Errorf("--to: %w", err)
				}
				in = model.JournalCreate{PeriodStart: s, PeriodEnd: e, ObservationsMD: obs, DecisionsMD: dec}
			default:
				return fmt.Errorf("pass --month or --from and --to")
			}

			entry, err := a.review().Add(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created review %s for %s to %s\n", entry.ID, entry.PeriodStart, entry.PeriodEnd)
			return nil
		},
	}

	cmd.Flags().Var(&month, "month", "cover a whole month (YYYY-MM)")
	cmd.Flags().StringVar(&start, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&observations, "observations", "", "observations markdown, or @file")
	cmd.Flags().StringVar(&decisions, "decisions", "", "decisions markdown, or @file")
	cmd.MarkFlagsMutuallyExclusive("month", "from")

	return cmd
}

func newReviewListCommand(a *app) *cobra.Command {
	var month period.Period

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.review().List(cmd.Context(), month)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No review entries.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFROM\tTO\tUPDATED\tFIRST LINE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.ID, e.PeriodStart, e.PeriodEnd, e.UpdatedAt.Format("2006-01-02"), firstLine(review.UserContent(e.ObservationsMD)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Var(&month, "month", "only entries overlapping this month (YYYY-MM)")

	return cmd
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}

func newReviewShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one review entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.review().Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			user, metrics := review.Split(e.ObservationsMD)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Review %s to %s (%s)\n\n", e.PeriodStart, e.PeriodEnd, e.ID)
			fmt.Fprintf(out, "Observations:\n%s\n\n", orNone(user))
			fmt.Fprintf(out, "Decisions:\n%s\n", orNone(e.DecisionsMD))
			if metrics != "" {
				fmt.Fprintf(out, "\n%s\n", metrics)
			}
			return nil
		},
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func newReviewEditCommand(a *app) *cobra.Command {
	var observations, decisions, appendText string

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a review entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var p review.EditParams
			if cmd.Flags().Changed("observations") {
				obs, err := markdownArg(cmd, observations)
				if err != nil {
					return err
				}
				p.Observations = &obs
			}
			if cmd.Flags().Changed("decisions") {
				dec, err := markdownArg(cmd, decisions)
				if err != nil {
					return err
				}
				p.Decisions = &dec
			}
			text, err := markdownArg(cmd, appendText)
			if err != nil {
				return err
			}
			p.AppendObservations = text

			e, err := a.review().Edit(cmd.Context(), args[0], p)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated review %s\n", e.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&observations, "observations", "", "replace observations (markdown or @file)")
	cmd.Flags().StringVar(&decisions, "decisions", "", "replace decisions (markdown or @file)")
	cmd.Flags().StringVar(&appendText, "append", "", "add to the observations (markdown or @file)")
	cmd.MarkFlagsMutuallyExclusive("observations", "append")

	return cmd
}

func newReviewDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a review entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.review().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted review %s\n", args[0])
			return nil
		},
	}
}

func newReviewExportCommand(a *app) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a review entry as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := a.review().Export(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if outPath == "" {
				_, err := io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			if err := os.WriteFile(outPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to a file instead of stdout")

	return cmd
}
