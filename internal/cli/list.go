package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lectern/internal/doc"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Type string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List current items",
		Example: `  lectern list
  lectern list --type song --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "only list items of this type")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	items, err := s.lib.List(cmd.Context(), doc.ItemType(opts.Type))
	if err != nil {
		return s.formatter.Fail("list failed", err)
	}

	if s.formatter.Format == "json" {
		out := make([]json.RawMessage, len(items))
		for i, it := range items {
			data, err := it.MarshalJSON()
			if err != nil {
				return s.formatter.Fail("list failed", err)
			}
			out[i] = data
		}
		return s.formatter.Success(out)
	}

	if len(items) == 0 {
		fmt.Fprintln(s.formatter.Writer, "No items found.")
		return nil
	}
	tw := tabwriter.NewWriter(s.formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tVERSION\tUPDATED\tTITLE")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ID, it.Type, it.Version, it.UpdatedAt.UTC().Format(time.RFC3339), displayTitle(it))
	}
	return tw.Flush()
}

// displayTitle returns the field that names an item in listings.
func displayTitle(it doc.Item) string {
	switch p := it.Payload.(type) {
	case *doc.Song:
		return p.Title
	case *doc.Scripture:
		return p.Reference
	case *doc.Schedule:
		return p.Title
	case *doc.Media:
		return p.Title
	}
	return ""
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <id>",
		Short:         "List the commits of an item, newest first",
		Example:       "  lectern history <id> --format json",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(rootOpts, cmd, args[0])
		},
	}
}

func runHistory(opts *RootOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	commits, err := s.lib.GetHistory(cmd.Context(), id)
	if err != nil {
		return s.formatter.Fail("history failed", err)
	}

	if s.formatter.Format == "json" {
		out := make([]json.RawMessage, len(commits))
		for i, c := range commits {
			data, err := c.MarshalJSON()
			if err != nil {
				return s.formatter.Fail("history failed", err)
			}
			out[i] = data
		}
		return s.formatter.Success(out)
	}

	if len(commits) == 0 {
		fmt.Fprintf(s.formatter.Writer, "No history found for %s\n", id)
		return nil
	}
	tw := tabwriter.NewWriter(s.formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tCOMMIT\tPARENT\tTIMESTAMP\tAUTHOR\tDEVICE\tSUMMARY")
	for _, c := range commits {
		parent := c.ParentCommitID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.VersionNumber, c.CommitID, parent, c.Timestamp.UTC().Format(time.RFC3339), c.Author, c.DeviceID, c.ChangeSummary)
	}
	return tw.Flush()
}
