package library

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/store"
	"github.com/roach88/lectern/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store *Store
	dir   *store.Dir
	snaps *flakySnapshots
	logs  *bytes.Buffer
}

// newFixture returns a Store over a temp directory with a deterministic
// clock and sequential ids.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&syncWriter{w: &logs}, &slog.HandlerOptions{Level: slog.LevelWarn}))

	dir, err := store.OpenDir(t.TempDir(), logger)
	require.NoError(t, err)

	snaps := &flakySnapshots{Snapshots: dir}
	base := []Option{
		WithLogger(logger),
		WithClock(testutil.NewDeterministicClock()),
		WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
	}
	s := New(snaps, dir, append(base, opts...)...)
	return &fixture{store: s, dir: dir, snaps: snaps, logs: &logs}
}

var errDiskFull = errors.New("disk full")

// flakySnapshots fails snapshot writes while failWrites is set, simulating a
// crash between the Cold Store append and the Hot Store write.
type flakySnapshots struct {
	store.Snapshots
	mu         sync.Mutex
	failWrites bool
}

func (f *flakySnapshots) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

func (f *flakySnapshots) WriteSnapshot(ctx context.Context, it doc.Item) error {
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errDiskFull
	}
	return f.Snapshots.WriteSnapshot(ctx, it)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func amazingGrace() *doc.Song {
	return &doc.Song{Title: "Amazing Grace", Artist: "John Newton"}
}

func obj(t *testing.T, s string) doc.Object {
	t.Helper()
	o, err := doc.ParseObject([]byte(s))
	require.NoError(t, err)
	return o
}
