package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/lectern/internal/doc"
)

const (
	itemsDir   = "items"
	historyDir = "history"

	snapshotExt = ".json"
	historyExt  = ".jsonl"
)

// Dir stores snapshots and commit logs as files below a root directory:
//
//	<root>/items/<id>.json     one snapshot per item
//	<root>/history/<id>.jsonl  one commit per line, in append order
type Dir struct {
	root   string
	logger *slog.Logger
}

var _ Backend = (*Dir)(nil)

// OpenDir prepares root, creating it and its subdirectories when absent.
func OpenDir(root string, logger *slog.Logger) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("open dir: empty root")
	}
	if logger == nil {
		logger = slog.Default()
	}
	for _, sub := range []string{itemsDir, historyDir} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("open dir: %w", err)
		}
	}
	return &Dir{root: root, logger: logger}, nil
}

// Root returns the directory the store was opened at.
func (d *Dir) Root() string {
	return d.root
}

// Close is a no-op; files are closed after every operation.
func (d *Dir) Close() error {
	return nil
}

// SnapshotPath returns the file holding the snapshot for id.
func (d *Dir) SnapshotPath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(d.root, itemsDir, id+snapshotExt), nil
}

// HistoryPath returns the commit log file for id.
func (d *Dir) HistoryPath(id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	return filepath.Join(d.root, historyDir, id+historyExt), nil
}

// WriteSnapshot replaces the snapshot through a temp file and rename in the
// same directory, so readers never observe a partial file.
func (d *Dir) WriteSnapshot(ctx context.Context, item doc.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.SnapshotPath(item.ID)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	data, err := encodeSnapshot(item)
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+item.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot %s: %w", item.ID, err)
	}

	d.logger.Debug("snapshot written", "id", item.ID, "version", item.Version, "path", path)
	return nil
}

// ReadSnapshot loads the snapshot for id.
func (d *Dir) ReadSnapshot(ctx context.Context, id string) (doc.Item, error) {
	if err := ctx.Err(); err != nil {
		return doc.Item{}, err
	}
	path, err := d.SnapshotPath(id)
	if err != nil {
		return doc.Item{}, fmt.Errorf("read snapshot: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc.Item{}, fmt.Errorf("read snapshot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return doc.Item{}, fmt.Errorf("read snapshot %s: %w", id, err)
	}

	it, err := decodeSnapshot(id, data)
	if err != nil {
		return doc.Item{}, &CorruptError{ID: id, Source: path, Err: err}
	}
	return it, nil
}

// ListSnapshots decodes every snapshot file. Corrupt files are skipped with
// a warning.
func (d *Dir) ListSnapshots(ctx context.Context) ([]doc.Item, error) {
	dir := filepath.Join(d.root, itemsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	items := []doc.Item{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		id := strings.TrimSuffix(name, snapshotExt)
		if ValidateID(id) != nil {
			d.logger.Warn("skipping snapshot with invalid name", "path", filepath.Join(dir, name))
			continue
		}

		it, err := d.ReadSnapshot(ctx, id)
		if errors.Is(err, ErrCorrupt) {
			d.logger.Warn("skipping corrupt snapshot", "id", id, "error", err)
			continue
		}
		if errors.Is(err, ErrNotFound) {
			// Replaced or removed between ReadDir and ReadFile.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list snapshots: %w", err)
		}
		items = append(items, it)
	}
	return items, nil
}

// AppendCommit writes c as one line at the end of the log for id and syncs
// it to disk. The log is never truncated or rewritten.
func (d *Dir) AppendCommit(ctx context.Context, id string, c doc.Commit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.HistoryPath(id)
	if err != nil {
		return fmt.Errorf("append commit: %w", err)
	}
	if err := checkCommitOwner(id, c); err != nil {
		return err
	}
	line, err := encodeCommit(c)
	if err != nil {
		return fmt.Errorf("append commit: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("append commit %s: %w", id, err)
	}
	err = appendLine(f, line)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append commit %s: %w", id, err)
	}

	d.logger.Debug("commit appended", "id", id, "commit_id", c.CommitID, "version", c.VersionNumber, "path", path)
	return nil
}

// appendLine writes line plus a newline at the end of f and syncs. A torn
// final line must not swallow the new record, so one is terminated first.
func appendLine(f *os.File, line []byte) error {
	torn, err := missingFinalNewline(f)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if torn {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}

func missingFinalNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// ReadCommits returns the commits for id in append order. Lines that do not
// decode, including a torn final line, are skipped with a warning.
func (d *Dir) ReadCommits(ctx context.Context, id string) ([]doc.Commit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.HistoryPath(id)
	if err != nil {
		return nil, fmt.Errorf("read commits: %w", err)
	}

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []doc.Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read commits %s: %w", id, err)
	}
	defer f.Close()

	commits := []doc.Commit{}
	r := bufio.NewReader(f)
	for lineNo := 1; ; lineNo++ {
		line, readErr := r.ReadBytes('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, fmt.Errorf("read commits %s: %w", id, readErr)
		}

		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			c, err := decodeCommit(line)
			switch {
			case err != nil:
				d.logger.Warn("skipping corrupt commit", "id", id, "path", path, "line", lineNo, "error", err)
			case c.FullSnapshot.ID != id:
				d.logger.Warn("skipping foreign commit", "id", id, "path", path, "line", lineNo, "commit_id", c.CommitID)
			default:
				commits = append(commits, c)
			}
		}

		if readErr == io.EOF {
			break
		}
	}
	return commits, nil
}
