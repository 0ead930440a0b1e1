package library

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/lectern/internal/config"
	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/schema"
	"github.com/roach88/lectern/internal/store"
)

// Attribution used when a write names no author or device.
const (
	DefaultAuthor = "system"
	DefaultDevice = "unknown"
)

// Validator checks a payload before it is persisted.
// Implemented by *schema.Validator.
type Validator interface {
	Validate(t doc.ItemType, fields doc.Object) error
}

// Store is the versioned item store. Construct one per process with New or
// Open and share it; all methods are safe for concurrent use.
type Store struct {
	snapshots store.Snapshots
	history   store.History
	closer    func() error

	logger    *slog.Logger
	clock     Clock
	ids       IDGenerator
	validator Validator

	defaultAuthor string
	defaultDevice string
	repairOnRead  bool

	locks *keyedMutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithIDGenerator sets the source of item and commit ids. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithValidator replaces the payload validator. Default: the embedded CUE schemas.
func WithValidator(v Validator) Option {
	return func(s *Store) {
		s.validator = v
	}
}

// WithDefaults sets the attribution used when a write names none.
// Empty values keep the built-in defaults.
func WithDefaults(author, device string) Option {
	return func(s *Store) {
		if author != "" {
			s.defaultAuthor = author
		}
		if device != "" {
			s.defaultDevice = device
		}
	}
}

// WithRepairOnRead controls whether Get rewrites a snapshot that lags behind
// its history. Default: true.
func WithRepairOnRead(enabled bool) Option {
	return func(s *Store) {
		s.repairOnRead = enabled
	}
}

// New creates a Store over the given Hot Store and Cold Store.
func New(snapshots store.Snapshots, history store.History, opts ...Option) *Store {
	s := &Store{
		snapshots:     snapshots,
		history:       history,
		logger:        slog.Default(),
		clock:         SystemClock{},
		ids:           UUIDv7Generator{},
		defaultAuthor: DefaultAuthor,
		defaultDevice: DefaultDevice,
		repairOnRead:  true,
		locks:         newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.validator == nil {
		s.validator = schema.Must(schema.New())
	}
	return s
}

// Open builds the backend named by cfg and returns a Store over it.
// The caller must Close the store to release the backend.
func Open(cfg config.Config, logger *slog.Logger, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	var backend store.Backend
	switch cfg.Backend {
	case config.BackendSQLite:
		path := cfg.DatabasePath()
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("open library: %w", err)
			}
		}
		db, err := store.OpenSQLite(path, logger)
		if err != nil {
			return nil, fmt.Errorf("open library: %w", err)
		}
		backend = db
	default:
		dir, err := store.OpenDir(cfg.Root, logger)
		if err != nil {
			return nil, fmt.Errorf("open library: %w", err)
		}
		backend = dir
	}

	base := []Option{
		WithLogger(logger),
		WithDefaults(cfg.DefaultAuthor, cfg.DefaultDevice),
		WithRepairOnRead(cfg.RepairOnRead),
	}
	s := New(backend, backend, append(base, opts...)...)
	s.closer = backend.Close

	logger.Debug("library opened", "backend", cfg.Backend, "root", cfg.Root)
	return s, nil
}

// Close releases the backend opened by Open. Stores built with New do not
// own their backends and Close is a no-op.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// WriteOption configures a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	author          string
	device          string
	summary         string
	expectedVersion int64
	checkVersion    bool
}

// WithAuthor attributes the write to author.
func WithAuthor(author string) WriteOption {
	return func(o *writeOptions) {
		o.author = author
	}
}

// WithDevice records the device the write came from.
func WithDevice(device string) WriteOption {
	return func(o *writeOptions) {
		o.device = device
	}
}

// WithSummary sets the change summary of the commit.
func WithSummary(summary string) WriteOption {
	return func(o *writeOptions) {
		o.summary = summary
	}
}

// WithExpectedVersion fails the write with a *VersionConflictError unless
// the item is currently at version v.
func WithExpectedVersion(v int64) WriteOption {
	return func(o *writeOptions) {
		o.expectedVersion = v
		o.checkVersion = true
	}
}

func (s *Store) writeOptions(defaultSummary string, opts []WriteOption) writeOptions {
	o := writeOptions{
		author:  s.defaultAuthor,
		device:  s.defaultDevice,
		summary: defaultSummary,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.author == "" {
		o.author = s.defaultAuthor
	}
	if o.device == "" {
		o.device = s.defaultDevice
	}
	if o.summary == "" {
		o.summary = defaultSummary
	}
	// Attribution lands in the snapshot, so it must already be in the
	// form the canonical encoding reads back.
	o.author = norm.NFC.String(o.author)
	o.device = norm.NFC.String(o.device)
	return o
}
