package store

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lectern/internal/doc"
)

var testTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// bufferLogger returns a logger that records warnings into buf.
func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

type backendFactory struct {
	name string
	open func(t *testing.T, logger *slog.Logger) Backend
}

var backends = []backendFactory{
	{"dir", func(t *testing.T, logger *slog.Logger) Backend {
		t.Helper()
		d, err := OpenDir(t.TempDir(), logger)
		require.NoError(t, err)
		return d
	}},
	{"sqlite", func(t *testing.T, logger *slog.Logger) Backend {
		t.Helper()
		s, err := OpenSQLite(filepath.Join(t.TempDir(), "lectern.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func testItem(id string, version int64) doc.Item {
	it := doc.Item{
		ID:                   id,
		Type:                 doc.TypeSong,
		Version:              version,
		HistoryHeadID:        id + "-c" + string(rune('0'+version)),
		CreatedAt:            testTime,
		UpdatedAt:            testTime.Add(time.Duration(version) * time.Minute),
		Author:               "system",
		OriginDeviceID:       "unknown",
		LastModifiedDeviceID: "unknown",
		Payload:              &doc.Song{Title: "Amazing Grace"},
	}
	it.ContentHash = doc.MustContentHash(it)
	return it
}

func testCommit(it doc.Item, parent string) doc.Commit {
	return doc.Commit{
		CommitID:       it.HistoryHeadID,
		ParentCommitID: parent,
		VersionNumber:  it.Version,
		Timestamp:      it.UpdatedAt,
		Author:         it.Author,
		DeviceID:       it.LastModifiedDeviceID,
		ChangeSummary:  "Created item",
		FullSnapshot:   it,
	}
}
