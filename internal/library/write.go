package library

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/store"
)

// Default change summaries.
const (
	SummaryCreated = "Created item"
	SummaryUpdated = "Updated item"
)

// Create stores a new item at version 1 and records its first commit.
//
// The item gets a fresh id and head commit id, created_at = updated_at = now,
// and attribution from WithAuthor/WithDevice or the store defaults.
// WithExpectedVersion has no effect on Create.
func (s *Store) Create(ctx context.Context, payload doc.Payload, opts ...WriteOption) (doc.Item, error) {
	if payload == nil {
		return doc.Item{}, fmt.Errorf("create: %w: nil payload", doc.ErrInvalidPayload)
	}
	if err := s.validate(payload); err != nil {
		return doc.Item{}, fmt.Errorf("create: %w", err)
	}

	o := s.writeOptions(SummaryCreated, opts)
	now := s.clock.Now().UTC()
	it := doc.Item{
		ID:                   s.ids.Generate(),
		Type:                 payload.Kind(),
		Version:              1,
		HistoryHeadID:        s.ids.Generate(),
		CreatedAt:            now,
		UpdatedAt:            now,
		Author:               o.author,
		OriginDeviceID:       o.device,
		LastModifiedDeviceID: o.device,
		Payload:              payload,
	}

	// Detach from the caller's payload.
	it, err := it.Clone()
	if err != nil {
		return doc.Item{}, fmt.Errorf("create: %w", err)
	}

	unlock := s.locks.Lock(it.ID)
	defer unlock()

	it, err = s.persist(ctx, it, "", now, o)
	if err != nil {
		return doc.Item{}, fmt.Errorf("create: %w", err)
	}

	s.logger.Info("item created",
		"id", it.ID,
		"type", it.Type,
		"commit_id", it.HistoryHeadID,
		"author", o.author,
	)
	return it, nil
}

// Update merges delta over the current snapshot and stores the result as the
// next version.
//
// The merge is a shallow overwrite of top-level payload fields (see
// doc.Merge). Updating an id with neither snapshot nor history fails with
// ErrItemNotFound and writes nothing. A delta with the same content as the
// current state still produces a new version; its content hash is unchanged
// as long as the write comes from the same device.
func (s *Store) Update(ctx context.Context, id string, delta doc.Object, opts ...WriteOption) (doc.Item, error) {
	if err := store.ValidateID(id); err != nil {
		return doc.Item{}, fmt.Errorf("update: %w", err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	it, err := s.update(ctx, id, delta, s.writeOptions(SummaryUpdated, opts))
	if err != nil {
		return doc.Item{}, fmt.Errorf("update %s: %w", id, err)
	}
	return it, nil
}

// Revert stores a new version whose content equals version n.
//
// It is an Update whose delta is version n's payload, with every field that
// version n lacked cleared. The version number still advances and the usage
// count is left alone.
func (s *Store) Revert(ctx context.Context, id string, n int64, opts ...WriteOption) (doc.Item, error) {
	if err := store.ValidateID(id); err != nil {
		return doc.Item{}, fmt.Errorf("revert: %w", err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.head(ctx, id)
	if err != nil {
		return doc.Item{}, fmt.Errorf("revert %s: %w", id, err)
	}
	target, err := s.version(ctx, id, n)
	if err != nil {
		return doc.Item{}, fmt.Errorf("revert %s: %w", id, err)
	}

	delta, err := target.PayloadFields()
	if err != nil {
		return doc.Item{}, fmt.Errorf("revert %s: %w", id, err)
	}
	currentFields, err := current.PayloadFields()
	if err != nil {
		return doc.Item{}, fmt.Errorf("revert %s: %w", id, err)
	}
	for k := range currentFields {
		if _, ok := delta[k]; !ok {
			delta[k] = doc.Null{}
		}
	}

	o := s.writeOptions(fmt.Sprintf("Reverted to version %d", n), opts)
	it, err := s.update(ctx, id, delta, o)
	if err != nil {
		return doc.Item{}, fmt.Errorf("revert %s: %w", id, err)
	}
	return it, nil
}

// update runs one read-merge-persist cycle. The caller holds the id lock.
func (s *Store) update(ctx context.Context, id string, delta doc.Object, o writeOptions) (doc.Item, error) {
	current, err := s.head(ctx, id)
	if err != nil {
		return doc.Item{}, err
	}
	if o.checkVersion && current.Version != o.expectedVersion {
		return doc.Item{}, &VersionConflictError{ID: id, Expected: o.expectedVersion, Actual: current.Version}
	}

	next, err := doc.Merge(current, delta)
	if err != nil {
		return doc.Item{}, err
	}
	if err := s.validate(next.Payload); err != nil {
		return doc.Item{}, err
	}

	now := s.clock.Now().UTC()
	next.Version = current.Version + 1
	next.UpdatedAt = now
	next.LastModifiedDeviceID = o.device
	next.HistoryHeadID = s.ids.Generate()

	next, err = s.persist(ctx, next, current.HistoryHeadID, now, o)
	if err != nil {
		return doc.Item{}, err
	}

	s.logger.Info("item updated",
		"id", id,
		"version", next.Version,
		"commit_id", next.HistoryHeadID,
		"parent_commit_id", current.HistoryHeadID,
		"author", o.author,
	)
	return next, nil
}

// head returns the state an update builds on: the Hot Store snapshot, or the
// latest commit when repair-on-read is enabled and the snapshot is missing
// or behind history.
func (s *Store) head(ctx context.Context, id string) (doc.Item, error) {
	it, err := s.snapshots.ReadSnapshot(ctx, id)
	missing := errors.Is(err, store.ErrNotFound)
	if missing && !s.repairOnRead {
		return doc.Item{}, ErrItemNotFound
	}
	if err != nil && !missing {
		return doc.Item{}, err
	}
	if !s.repairOnRead {
		return it, nil
	}

	latest, ok, err := s.latestCommit(ctx, id)
	if err != nil {
		return doc.Item{}, err
	}
	if missing {
		if !ok {
			return doc.Item{}, ErrItemNotFound
		}
		s.logger.Warn("snapshot missing, building on latest commit",
			"id", id,
			"version", latest.VersionNumber,
		)
		return latest.FullSnapshot, nil
	}
	if ok && latest.VersionNumber > it.Version {
		s.logger.Warn("snapshot behind history, building on latest commit",
			"id", id,
			"snapshot_version", it.Version,
			"version", latest.VersionNumber,
		)
		return latest.FullSnapshot, nil
	}
	return it, nil
}

// persist stamps the content hash, appends the commit and then replaces the
// snapshot. A failed snapshot write leaves history one version ahead, which
// Get and Rebuild recover from.
func (s *Store) persist(ctx context.Context, it doc.Item, parent string, now time.Time, o writeOptions) (doc.Item, error) {
	hash, err := doc.ContentHash(it)
	if err != nil {
		return doc.Item{}, err
	}
	it.ContentHash = hash

	c := doc.Commit{
		CommitID:       it.HistoryHeadID,
		ParentCommitID: parent,
		VersionNumber:  it.Version,
		Timestamp:      now,
		Author:         o.author,
		DeviceID:       o.device,
		ChangeSummary:  o.summary,
		FullSnapshot:   it,
	}
	if err := s.history.AppendCommit(ctx, it.ID, c); err != nil {
		return doc.Item{}, err
	}

	if err := s.snapshots.WriteSnapshot(ctx, it); err != nil {
		s.logger.Warn("snapshot write failed after commit, history is ahead",
			"id", it.ID,
			"version", it.Version,
			"commit_id", c.CommitID,
			"error", err,
		)
		return doc.Item{}, err
	}
	return it, nil
}

func (s *Store) validate(p doc.Payload) error {
	fields, err := doc.PayloadObject(p)
	if err != nil {
		return err
	}
	return s.validator.Validate(p.Kind(), fields)
}
