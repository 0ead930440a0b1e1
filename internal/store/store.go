package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/lectern/internal/doc"
)

var (
	// ErrNotFound is returned when no snapshot exists for an id.
	ErrNotFound = errors.New("not found")

	// ErrCorrupt is returned when a persisted record cannot be decoded.
	ErrCorrupt = errors.New("corrupt record")

	// ErrInvalidID is returned for ids that cannot be used as storage keys.
	ErrInvalidID = errors.New("invalid id")
)

// Snapshots is the Hot Store: the latest materialized state of each item.
type Snapshots interface {
	// WriteSnapshot fully replaces the stored snapshot for item.ID.
	WriteSnapshot(ctx context.Context, item doc.Item) error
	// ReadSnapshot returns ErrNotFound or ErrCorrupt (wrapped) on failure.
	ReadSnapshot(ctx context.Context, id string) (doc.Item, error)
	// ListSnapshots returns every decodable snapshot ordered by id.
	ListSnapshots(ctx context.Context) ([]doc.Item, error)
}

// History is the Cold Store: an append-only commit log per item.
type History interface {
	// AppendCommit adds c to the end of the log for id.
	AppendCommit(ctx context.Context, id string, c doc.Commit) error
	// ReadCommits returns decodable commits in append order, or an empty
	// slice when the log does not exist.
	ReadCommits(ctx context.Context, id string) ([]doc.Commit, error)
}

// Backend provides both stores over one storage medium.
type Backend interface {
	Snapshots
	History
	Close() error
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateID rejects ids that are empty, start with a dot, contain parent
// references or use characters outside [A-Za-z0-9._-].
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case strings.HasPrefix(id, ".") || strings.Contains(id, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case !idPattern.MatchString(id):
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// CorruptError identifies the record that failed to decode.
type CorruptError struct {
	ID     string
	Source string
	Err    error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrCorrupt, e.Source, e.ID, e.Err)
}

func (e *CorruptError) Unwrap() []error {
	return []error{ErrCorrupt, e.Err}
}
