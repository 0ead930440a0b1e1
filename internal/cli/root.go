package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/lectern/internal/config"
	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/library"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigFile string
	Root       string
	Backend    string
	Author     string
	Device     string

	// LibraryOptions are passed to library.Open (for testing).
	LibraryOptions []library.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the lectern CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lectern",
		Short:   "lectern - versioned presentation library",
		Version: doc.LibraryVersion,
		Long: `Manage songs, scripture passages, schedules and media in a versioned library.

Every write appends an immutable commit to the item's history before the
current snapshot is replaced, so any earlier version can be shown or
restored.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (toml, yaml or json)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "library root directory (overrides LECTERN_ROOT)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "storage backend: file or sqlite (overrides LECTERN_BACKEND)")
	cmd.PersistentFlags().StringVar(&opts.Author, "author", "", "author recorded on writes")
	cmd.PersistentFlags().StringVar(&opts.Device, "device", "", "device id recorded on writes")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewRevertCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewRebuildCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// resolveConfig layers flags over the config file and environment.
func resolveConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	if opts.Backend != "" {
		cfg.Backend = opts.Backend
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// session is an opened library plus the formatter for one command run.
type session struct {
	lib       *library.Store
	formatter *OutputFormatter
	logger    *slog.Logger
}

func (s *session) close() {
	if err := s.lib.Close(); err != nil {
		s.logger.Error("error closing library", "error", err)
	}
}

// openSession resolves configuration and opens the library. Logs go to the
// command's stderr at the configured level, or debug with --verbose.
func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		_ = formatter.Error(CodeStorage, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, _ := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	lib, err := library.Open(cfg, logger, opts.LibraryOptions...)
	if err != nil {
		_ = formatter.Error(CodeStorage, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "failed to open library", err)
	}
	formatter.VerboseLog("library: backend=%s root=%s", cfg.Backend, cfg.Root)
	return &session{lib: lib, formatter: formatter, logger: logger}, nil
}

// writeOptions returns the attribution flags as library write options.
func (o *RootOptions) writeOptions() []library.WriteOption {
	var wopts []library.WriteOption
	if o.Author != "" {
		wopts = append(wopts, library.WithAuthor(o.Author))
	}
	if o.Device != "" {
		wopts = append(wopts, library.WithDevice(o.Device))
	}
	return wopts
}

// badInput reports a malformed flag or argument.
func badInput(f *OutputFormatter, message string, err error) error {
	_ = f.Error(CodeBadInput, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}
