package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/library"
)

// WriteFlags holds the flags shared by commands that produce a new version.
type WriteFlags struct {
	Summary         string
	ExpectedVersion int64
}

func (w *WriteFlags) register(cmd *cobra.Command, withExpect bool) {
	cmd.Flags().StringVar(&w.Summary, "summary", "", "change summary recorded on the commit")
	if withExpect {
		cmd.Flags().Int64Var(&w.ExpectedVersion, "expect-version", 0, "fail unless the current version equals this")
	}
}

func (w *WriteFlags) options(opts *RootOptions, cmd *cobra.Command) []library.WriteOption {
	wopts := opts.writeOptions()
	if w.Summary != "" {
		wopts = append(wopts, library.WithSummary(w.Summary))
	}
	if f := cmd.Flags().Lookup("expect-version"); f != nil && f.Changed {
		wopts = append(wopts, library.WithExpectedVersion(w.ExpectedVersion))
	}
	return wopts
}

// readObject returns the JSON object given inline or, with file set, read
// from that path ("-" reads stdin).
func readObject(cmd *cobra.Command, inline, file string) (doc.Object, error) {
	var data []byte
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("use either an inline object or --file, not both")
	case file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		data = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		data = b
	case inline != "":
		data = []byte(inline)
	default:
		return nil, fmt.Errorf("a JSON object is required")
	}
	return doc.ParseObject(bytes.TrimSpace(data))
}

// writeItem prints a full item: the flat JSON object, indented in text mode.
func writeItem(f *OutputFormatter, it doc.Item) error {
	data, err := it.MarshalJSON()
	if err != nil {
		return err
	}
	if f.Format == "json" {
		return f.Success(json.RawMessage(data))
	}
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = f.Writer.Write(out.Bytes())
	return err
}

// writeResult reports the outcome of a write.
func writeResult(f *OutputFormatter, verb string, it doc.Item) error {
	if f.Format == "json" {
		return writeItem(f, it)
	}
	fmt.Fprintf(f.Writer, "%s %s %s: version %d (commit %s)\n", verb, it.Type, it.ID, it.Version, it.HistoryHeadID)
	return nil
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	WriteFlags
	Type    string
	Payload string
	File    string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new item",
		Long: `Create a new library item from a JSON payload.

The payload holds only the type's own fields; the id, version and
timestamps are assigned by the library.

Examples:
  lectern create --type song --payload '{"title":"Amazing Grace","artist":"John Newton"}'
  lectern create --type scripture --file john3.json --author alice`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Type, "type", "t", "", "item type: song, scripture, schedule or media (required)")
	_ = cmd.MarkFlagRequired("type")
	cmd.Flags().StringVarP(&opts.Payload, "payload", "p", "", "payload as a JSON object")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the payload from a file (- for stdin)")
	opts.WriteFlags.register(cmd, false)

	return cmd
}

func runCreate(opts *CreateOptions, cmd *cobra.Command) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	fields, err := readObject(cmd, opts.Payload, opts.File)
	if err != nil {
		return badInput(s.formatter, "invalid payload", err)
	}
	payload, err := doc.DecodePayload(doc.ItemType(opts.Type), fields)
	if err != nil {
		return s.formatter.Fail("create failed", err)
	}

	it, err := s.lib.Create(cmd.Context(), payload, opts.WriteFlags.options(opts.RootOptions, cmd)...)
	if err != nil {
		return s.formatter.Fail("create failed", err)
	}
	return writeResult(s.formatter, "Created", it)
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the current snapshot of an item",
		Example: `  lectern get 0192e4a0-7b1c-7d3e-9f00-4b2a1c3d5e6f
  lectern get 0192e4a0-7b1c-7d3e-9f00-4b2a1c3d5e6f --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, cmd, args[0])
		},
	}
}

func runGet(opts *RootOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	it, found, err := s.lib.Get(cmd.Context(), id)
	if err != nil {
		return s.formatter.Fail("get failed", err)
	}
	if !found {
		return s.formatter.Fail("get failed", fmt.Errorf("%s: %w", id, library.ErrItemNotFound))
	}
	return writeItem(s.formatter, it)
}

// UpdateOptions holds flags for the update command.
type UpdateOptions struct {
	*RootOptions
	WriteFlags
	Delta string
	File  string
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UpdateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Merge a delta into an item",
		Long: `Merge a JSON delta into the current snapshot and store the next version.

Top-level fields in the delta replace the current values; a null value
removes the field. Envelope fields other than usage_count are ignored.

Examples:
  lectern update <id> --delta '{"key":"G"}'
  lectern update <id> --delta '{"tempo_bpm":null}' --expect-version 3`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Delta, "delta", "d", "", "delta as a JSON object")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "read the delta from a file (- for stdin)")
	opts.WriteFlags.register(cmd, true)

	return cmd
}

func runUpdate(opts *UpdateOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	delta, err := readObject(cmd, opts.Delta, opts.File)
	if err != nil {
		return badInput(s.formatter, "invalid delta", err)
	}

	it, err := s.lib.Update(cmd.Context(), id, delta, opts.WriteFlags.options(opts.RootOptions, cmd)...)
	if err != nil {
		return s.formatter.Fail("update failed", err)
	}
	return writeResult(s.formatter, "Updated", it)
}

// VersionOptions holds flags for commands that address one version.
type VersionOptions struct {
	*RootOptions
	WriteFlags
	Version int64
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "show <id>",
		Short:         "Print the snapshot recorded at a version",
		Example:       "  lectern show <id> --version 2",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args[0])
		},
	}

	cmd.Flags().Int64VarP(&opts.Version, "version", "n", 0, "version number (required)")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func runShow(opts *VersionOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	it, err := s.lib.Version(cmd.Context(), id, opts.Version)
	if err != nil {
		return s.formatter.Fail("show failed", err)
	}
	return writeItem(s.formatter, it)
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VersionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revert <id>",
		Short: "Restore the content of an earlier version",
		Long: `Restore the payload recorded at an earlier version as a new version.

History is never rewritten: reverting version 5 to version 2 produces
version 6 with the content of version 2.

Example:
  lectern revert <id> --version 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRevert(opts, cmd, args[0])
		},
	}

	cmd.Flags().Int64VarP(&opts.Version, "version", "n", 0, "version to restore (required)")
	_ = cmd.MarkFlagRequired("version")
	opts.WriteFlags.register(cmd, true)

	return cmd
}

func runRevert(opts *VersionOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	it, err := s.lib.Revert(cmd.Context(), id, opts.Version, opts.WriteFlags.options(opts.RootOptions, cmd)...)
	if err != nil {
		return s.formatter.Fail("revert failed", err)
	}
	return writeResult(s.formatter, "Reverted", it)
}

// NewRebuildCommand creates the rebuild command.
func NewRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild <id>",
		Short: "Rewrite the snapshot from the latest commit",
		Long: `Rewrite the current snapshot of an item from its history.

Use after verify reports a missing, corrupt or stale snapshot. No new
version is created.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(rootOpts, cmd, args[0])
		},
	}
}

func runRebuild(opts *RootOptions, cmd *cobra.Command, id string) error {
	s, err := openSession(opts, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	it, err := s.lib.Rebuild(cmd.Context(), id)
	if err != nil {
		return s.formatter.Fail("rebuild failed", err)
	}
	return writeResult(s.formatter, "Rebuilt", it)
}
