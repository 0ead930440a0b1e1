package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/store"
)

// Get returns the current snapshot of id.
//
// found is false when no snapshot exists or the stored snapshot is corrupt
// (a warning is logged). Storage failures are returned as errors. With
// repair-on-read enabled, a snapshot that is missing or lags behind its
// history is rewritten from the latest commit before being returned.
func (s *Store) Get(ctx context.Context, id string) (doc.Item, bool, error) {
	if err := store.ValidateID(id); err != nil {
		return doc.Item{}, false, fmt.Errorf("get: %w", err)
	}

	it, err := s.snapshots.ReadSnapshot(ctx, id)
	missing := errors.Is(err, store.ErrNotFound)
	switch {
	case missing:
		if !s.repairOnRead {
			return doc.Item{}, false, nil
		}
	case errors.Is(err, store.ErrCorrupt):
		s.logger.Warn("corrupt snapshot treated as missing", "id", id, "error", err)
		return doc.Item{}, false, nil
	case err != nil:
		return doc.Item{}, false, fmt.Errorf("get %s: %w", id, err)
	}

	if !s.repairOnRead {
		return it, true, nil
	}
	it, found, err := s.repair(ctx, id, it, !missing)
	if err != nil {
		return doc.Item{}, false, fmt.Errorf("get %s: %w", id, err)
	}
	return it, found, nil
}

// repair rewrites the snapshot of id from history when history is ahead of
// it or the snapshot is missing. present reports whether it was read.
func (s *Store) repair(ctx context.Context, id string, it doc.Item, present bool) (doc.Item, bool, error) {
	latest, ok, err := s.latestCommit(ctx, id)
	if err != nil {
		return doc.Item{}, false, err
	}
	if !ok {
		return it, present, nil
	}
	if present && latest.VersionNumber <= it.Version {
		return it, true, nil
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	// A writer may have caught the snapshot up while we waited.
	current, err := s.snapshots.ReadSnapshot(ctx, id)
	if err == nil && current.Version >= latest.VersionNumber {
		return current, true, nil
	}

	snapshot := latest.FullSnapshot
	if err := s.snapshots.WriteSnapshot(ctx, snapshot); err != nil {
		return doc.Item{}, false, err
	}
	if present {
		s.logger.Warn("snapshot repaired from history",
			"id", id,
			"snapshot_version", it.Version,
			"version", snapshot.Version,
			"commit_id", latest.CommitID,
		)
	} else {
		s.logger.Warn("missing snapshot restored from history",
			"id", id,
			"version", snapshot.Version,
			"commit_id", latest.CommitID,
		)
	}
	return snapshot, true, nil
}

// List returns every readable snapshot, ordered by id. A non-empty
// typeFilter keeps only items of that type. Corrupt snapshots are skipped
// with a warning by the backend.
func (s *Store) List(ctx context.Context, typeFilter doc.ItemType) ([]doc.Item, error) {
	if typeFilter != "" && !typeFilter.Valid() {
		return nil, fmt.Errorf("list: %w: %q", doc.ErrUnknownType, typeFilter)
	}

	all, err := s.snapshots.ListSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}

	items := make([]doc.Item, 0, len(all))
	for _, it := range all {
		if typeFilter == "" || it.Type == typeFilter {
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b doc.Item) int {
		return cmp.Compare(a.ID, b.ID)
	})

	s.logger.Debug("listed items", "count", len(items), "type", string(typeFilter))
	return items, nil
}

// GetHistory returns the commits of id, newest first by version number.
// An id with no history yields an empty slice.
func (s *Store) GetHistory(ctx context.Context, id string) ([]doc.Commit, error) {
	if err := store.ValidateID(id); err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	commits, err := s.history.ReadCommits(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get history %s: %w", id, err)
	}
	slices.SortStableFunc(commits, func(a, b doc.Commit) int {
		return cmp.Compare(b.VersionNumber, a.VersionNumber)
	})
	return commits, nil
}

// Version returns the full snapshot recorded for version n of id.
func (s *Store) Version(ctx context.Context, id string, n int64) (doc.Item, error) {
	if err := store.ValidateID(id); err != nil {
		return doc.Item{}, fmt.Errorf("version: %w", err)
	}

	it, err := s.version(ctx, id, n)
	if err != nil {
		return doc.Item{}, fmt.Errorf("version %s: %w", id, err)
	}
	return it, nil
}

func (s *Store) version(ctx context.Context, id string, n int64) (doc.Item, error) {
	commits, err := s.history.ReadCommits(ctx, id)
	if err != nil {
		return doc.Item{}, err
	}
	for i := len(commits) - 1; i >= 0; i-- {
		if commits[i].VersionNumber == n {
			return commits[i].FullSnapshot, nil
		}
	}
	return doc.Item{}, fmt.Errorf("%w: %d", ErrVersionNotFound, n)
}

// latestCommit returns the commit with the highest version number.
func (s *Store) latestCommit(ctx context.Context, id string) (doc.Commit, bool, error) {
	commits, err := s.history.ReadCommits(ctx, id)
	if err != nil {
		return doc.Commit{}, false, err
	}
	if len(commits) == 0 {
		return doc.Commit{}, false, nil
	}
	latest := commits[0]
	for _, c := range commits[1:] {
		if c.VersionNumber >= latest.VersionNumber {
			latest = c
		}
	}
	return latest, true, nil
}
