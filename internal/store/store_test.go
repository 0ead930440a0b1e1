package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lectern/internal/doc"
)

func TestValidateID(t *testing.T) {
	valid := []string{"abc", "0192f3a4-0000-7000-8000-000000000001", "item_1.v2", "A-Z"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	invalid := []string{"", ".", "..", ".hidden", "a/b", `a\b`, "../escape", "a..b", "sp ace", "caf\u00e9"}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			it := testItem("song-1", 1)
			require.NoError(t, s.WriteSnapshot(ctx, it))

			got, err := s.ReadSnapshot(ctx, "song-1")
			require.NoError(t, err)
			assert.Equal(t, it, got)
		})
	}
}

func TestSnapshotReplace(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			require.NoError(t, s.WriteSnapshot(ctx, testItem("song-1", 1)))
			v2 := testItem("song-1", 2)
			require.NoError(t, s.WriteSnapshot(ctx, v2))

			got, err := s.ReadSnapshot(ctx, "song-1")
			require.NoError(t, err)
			assert.Equal(t, int64(2), got.Version)

			all, err := s.ListSnapshots(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestReadSnapshotNotFound(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, discardLogger())
			_, err := s.ReadSnapshot(context.Background(), "missing")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestInvalidIDsRejected(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			_, err := s.ReadSnapshot(ctx, "../etc/passwd")
			require.ErrorIs(t, err, ErrInvalidID)

			bad := testItem("song-1", 1)
			bad.ID = "a/b"
			require.ErrorIs(t, s.WriteSnapshot(ctx, bad), ErrInvalidID)

			_, err = s.ReadCommits(ctx, "")
			require.ErrorIs(t, err, ErrInvalidID)
		})
	}
}

func TestListSnapshotsOrderedByID(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			for _, id := range []string{"c", "a", "b"} {
				require.NoError(t, s.WriteSnapshot(ctx, testItem(id, 1)))
			}

			items, err := s.ListSnapshots(ctx)
			require.NoError(t, err)
			require.Len(t, items, 3)
			assert.Equal(t, "a", items[0].ID)
			assert.Equal(t, "b", items[1].ID)
			assert.Equal(t, "c", items[2].ID)
		})
	}
}

func TestListSnapshotsEmpty(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			items, err := b.open(t, discardLogger()).ListSnapshots(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, items)
			assert.Empty(t, items)
		})
	}
}

func TestAppendAndReadCommits(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			v1 := testItem("song-1", 1)
			v2 := testItem("song-1", 2)
			v3 := testItem("song-1", 3)
			require.NoError(t, s.AppendCommit(ctx, "song-1", testCommit(v1, "")))
			require.NoError(t, s.AppendCommit(ctx, "song-1", testCommit(v2, v1.HistoryHeadID)))
			require.NoError(t, s.AppendCommit(ctx, "song-1", testCommit(v3, v2.HistoryHeadID)))

			commits, err := s.ReadCommits(ctx, "song-1")
			require.NoError(t, err)
			require.Len(t, commits, 3)
			for i, c := range commits {
				assert.Equal(t, int64(i+1), c.VersionNumber, "append order preserved")
			}
			assert.True(t, commits[0].IsRoot())
			assert.Equal(t, v2.HistoryHeadID, commits[2].ParentCommitID)
			assert.Equal(t, v3, commits[2].FullSnapshot)
		})
	}
}

func TestReadCommitsMissingLog(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			commits, err := b.open(t, discardLogger()).ReadCommits(context.Background(), "never-written")
			require.NoError(t, err)
			assert.NotNil(t, commits)
			assert.Empty(t, commits)
		})
	}
}

func TestCommitsAreIsolatedPerItem(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			s := b.open(t, discardLogger())

			require.NoError(t, s.AppendCommit(ctx, "a", testCommit(testItem("a", 1), "")))
			require.NoError(t, s.AppendCommit(ctx, "b", testCommit(testItem("b", 1), "")))

			commits, err := s.ReadCommits(ctx, "a")
			require.NoError(t, err)
			require.Len(t, commits, 1)
			assert.Equal(t, "a", commits[0].FullSnapshot.ID)
		})
	}
}

func TestAppendCommitRejectsForeignSnapshot(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			err := b.open(t, discardLogger()).AppendCommit(context.Background(), "a", testCommit(testItem("b", 1), ""))
			require.Error(t, err)
		})
	}
}

func TestCanceledContext(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t, discardLogger())
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := s.WriteSnapshot(ctx, testItem("song-1", 1))
			require.True(t, errors.Is(err, context.Canceled), "got %v", err)
		})
	}
}

func TestCorruptErrorUnwraps(t *testing.T) {
	cause := errors.New("bad json")
	err := error(&CorruptError{ID: "x", Source: "items/x.json", Err: cause})

	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "items/x.json")
}

func TestCommitLogIsCanonical(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	d, err := OpenDir(t.TempDir(), bufferLogger(&logs))
	require.NoError(t, err)

	it := testItem("song-1", 1)
	it.Payload = &doc.Song{Title: "Rock <of> Ages & more"}
	it.ContentHash = doc.MustContentHash(it)
	require.NoError(t, d.AppendCommit(ctx, "song-1", testCommit(it, "")))

	commits, err := d.ReadCommits(ctx, "song-1")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "Rock <of> Ages & more", commits[0].FullSnapshot.Payload.(*doc.Song).Title)
	assert.Empty(t, logs.String())
}
