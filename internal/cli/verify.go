package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lectern/internal/library"
)

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [id...]",
		Short: "Check history chains and snapshots",
		Long: `Check the history chain and current snapshot of items.

For each item the chain linkage, version continuity and recorded content
hashes are checked, and the snapshot is compared with the latest commit.
With no ids every listed item is verified. Exits 1 if any problem is found;
run rebuild to rewrite a missing or stale snapshot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd, args)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command, ids []string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()
	ctx := cmd.Context()

	if len(ids) == 0 {
		items, err := s.lib.List(ctx, "")
		if err != nil {
			return s.formatter.Fail("verify failed", err)
		}
		for _, it := range items {
			ids = append(ids, it.ID)
		}
	}

	reports := make([]library.Report, 0, len(ids))
	failed := 0
	for _, id := range ids {
		report, err := s.lib.Verify(ctx, id)
		if err != nil {
			return s.formatter.Fail("verify failed", err)
		}
		if !report.OK() {
			failed++
		}
		reports = append(reports, report)
	}

	if s.formatter.Format == "json" {
		if failed > 0 {
			_ = s.formatter.Error(CodeVerifyFail, fmt.Sprintf("%d of %d items have problems", failed, len(reports)), reports)
			return NewExitError(ExitFailure, "verification failed")
		}
		return s.formatter.Success(reports)
	}

	for _, r := range reports {
		if r.OK() {
			fmt.Fprintf(s.formatter.Writer, "%s: ok (%d commits, version %d)\n", r.ID, r.Commits, r.HistoryVersion)
			continue
		}
		fmt.Fprintf(s.formatter.Writer, "%s: %d problem(s)\n", r.ID, len(r.Problems))
		for _, p := range r.Problems {
			fmt.Fprintf(s.formatter.Writer, "  [%s] %s\n", p.Code, p.Message)
		}
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d items have problems", failed, len(reports)))
	}
	return nil
}
