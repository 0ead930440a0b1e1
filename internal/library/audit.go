package library

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/store"
)

// Problem codes reported by Verify.
const (
	ProblemRootParent       = "root_parent"       // first commit has a parent
	ProblemBrokenChain      = "broken_chain"      // parent is not the previous commit
	ProblemVersionGap       = "version_gap"       // versions do not advance by one
	ProblemDuplicateCommit  = "duplicate_commit"  // commit id appears twice
	ProblemSnapshotMismatch = "snapshot_mismatch" // commit snapshot disagrees with its commit
	ProblemHashMismatch     = "hash_mismatch"     // stored content hash is stale
	ProblemSnapshotMissing  = "snapshot_missing"  // history exists, snapshot does not
	ProblemSnapshotCorrupt  = "snapshot_corrupt"
	ProblemSnapshotBehind   = "snapshot_behind"   // snapshot older than latest commit
	ProblemSnapshotDiverged = "snapshot_diverged" // snapshot not derived from latest commit
	ProblemHistoryMissing   = "history_missing"   // snapshot exists, history does not
)

// Problem is one inconsistency found by Verify.
type Problem struct {
	Code    string `json:"code"`
	Version int64  `json:"version,omitempty"`
	Message string `json:"message"`
}

// Report is the result of auditing one item.
type Report struct {
	ID              string    `json:"id"`
	Commits         int       `json:"commits"`
	HistoryVersion  int64     `json:"history_version"`
	SnapshotVersion int64     `json:"snapshot_version"`
	HeadDigest      string    `json:"head_digest,omitempty"`
	Problems        []Problem `json:"problems"`
}

// OK reports whether the audit found no problems.
func (r Report) OK() bool {
	return len(r.Problems) == 0
}

func (r *Report) add(code string, version int64, format string, args ...any) {
	r.Problems = append(r.Problems, Problem{Code: code, Version: version, Message: fmt.Sprintf(format, args...)})
}

// Verify audits the history and snapshot of id without modifying either.
//
// It checks chain linkage and version continuity in append order,
// recomputes the content hash of every recorded snapshot and compares the
// Hot Store snapshot with the latest commit. An id with neither history nor
// snapshot fails with ErrItemNotFound.
func (s *Store) Verify(ctx context.Context, id string) (Report, error) {
	if err := store.ValidateID(id); err != nil {
		return Report{}, fmt.Errorf("verify: %w", err)
	}

	commits, err := s.history.ReadCommits(ctx, id)
	if err != nil {
		return Report{}, fmt.Errorf("verify %s: %w", id, err)
	}

	report := Report{ID: id, Commits: len(commits), Problems: []Problem{}}
	verifyChain(&report, commits)

	var latest *doc.Commit
	for i := range commits {
		if latest == nil || commits[i].VersionNumber >= latest.VersionNumber {
			latest = &commits[i]
		}
	}
	if latest != nil {
		report.HistoryVersion = latest.VersionNumber
		digest, err := doc.CommitDigest(*latest)
		if err != nil {
			return Report{}, fmt.Errorf("verify %s: %w", id, err)
		}
		report.HeadDigest = digest
	}

	hot, err := s.snapshots.ReadSnapshot(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if latest == nil {
			return Report{}, fmt.Errorf("verify %s: %w", id, ErrItemNotFound)
		}
		report.add(ProblemSnapshotMissing, 0, "no snapshot for history at version %d", latest.VersionNumber)
	case errors.Is(err, store.ErrCorrupt):
		report.add(ProblemSnapshotCorrupt, 0, "snapshot cannot be decoded: %v", err)
	case err != nil:
		return Report{}, fmt.Errorf("verify %s: %w", id, err)
	default:
		report.SnapshotVersion = hot.Version
		verifySnapshot(&report, hot, latest)
	}

	s.logger.Debug("item verified", "id", id, "commits", report.Commits, "problems", len(report.Problems))
	return report, nil
}

func verifyChain(report *Report, commits []doc.Commit) {
	seen := make(map[string]bool, len(commits))
	for i, c := range commits {
		if seen[c.CommitID] {
			report.add(ProblemDuplicateCommit, c.VersionNumber, "commit %s appears more than once", c.CommitID)
		}
		seen[c.CommitID] = true

		if i == 0 {
			if !c.IsRoot() {
				report.add(ProblemRootParent, c.VersionNumber, "first commit %s has parent %s", c.CommitID, c.ParentCommitID)
			}
			if c.VersionNumber != 1 {
				report.add(ProblemVersionGap, c.VersionNumber, "first commit is version %d", c.VersionNumber)
			}
		} else {
			prev := commits[i-1]
			if c.ParentCommitID != prev.CommitID {
				report.add(ProblemBrokenChain, c.VersionNumber, "commit %s has parent %q, previous commit is %s", c.CommitID, c.ParentCommitID, prev.CommitID)
			}
			if c.VersionNumber != prev.VersionNumber+1 {
				report.add(ProblemVersionGap, c.VersionNumber, "version %d follows version %d", c.VersionNumber, prev.VersionNumber)
			}
		}

		snap := c.FullSnapshot
		if snap.Version != c.VersionNumber || snap.HistoryHeadID != c.CommitID {
			report.add(ProblemSnapshotMismatch, c.VersionNumber, "commit %s records snapshot version %d with head %s", c.CommitID, snap.Version, snap.HistoryHeadID)
		}
		checkHash(report, snap, "commit "+c.CommitID)
	}
}

func verifySnapshot(report *Report, hot doc.Item, latest *doc.Commit) {
	checkHash(report, hot, "snapshot")
	if latest == nil {
		report.add(ProblemHistoryMissing, hot.Version, "snapshot at version %d has no history", hot.Version)
		return
	}

	switch {
	case hot.Version < latest.VersionNumber:
		report.add(ProblemSnapshotBehind, hot.Version, "snapshot is version %d, history is at version %d", hot.Version, latest.VersionNumber)
	case hot.Version != latest.VersionNumber || hot.HistoryHeadID != latest.CommitID:
		report.add(ProblemSnapshotDiverged, hot.Version, "snapshot head %s at version %d, latest commit %s at version %d", hot.HistoryHeadID, hot.Version, latest.CommitID, latest.VersionNumber)
	}
}

func checkHash(report *Report, it doc.Item, where string) {
	hash, err := doc.ContentHash(it)
	if err != nil {
		report.add(ProblemHashMismatch, it.Version, "%s: %v", where, err)
		return
	}
	if hash != it.ContentHash {
		report.add(ProblemHashMismatch, it.Version, "%s: stored hash %s, computed %s", where, it.ContentHash, hash)
	}
}

// Rebuild rewrites the Hot Store snapshot of id from its latest commit,
// restoring snapshots that are missing, corrupt or behind.
func (s *Store) Rebuild(ctx context.Context, id string) (doc.Item, error) {
	if err := store.ValidateID(id); err != nil {
		return doc.Item{}, fmt.Errorf("rebuild: %w", err)
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	latest, ok, err := s.latestCommit(ctx, id)
	if err != nil {
		return doc.Item{}, fmt.Errorf("rebuild %s: %w", id, err)
	}
	if !ok {
		return doc.Item{}, fmt.Errorf("rebuild %s: %w", id, ErrItemNotFound)
	}

	if err := s.snapshots.WriteSnapshot(ctx, latest.FullSnapshot); err != nil {
		return doc.Item{}, fmt.Errorf("rebuild %s: %w", id, err)
	}

	s.logger.Info("snapshot rebuilt",
		"id", id,
		"version", latest.VersionNumber,
		"commit_id", latest.CommitID,
	)
	return latest.FullSnapshot, nil
}
