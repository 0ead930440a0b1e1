package doc

import (
	"fmt"
	"time"
)

// Commit is one immutable history entry. Commits for an item form a singly
// linked list through ParentCommitID; there is no branching.
type Commit struct {
	CommitID string
	// ParentCommitID is empty for the first commit and encodes as JSON null.
	ParentCommitID string
	VersionNumber  int64
	Timestamp      time.Time
	Author         string
	DeviceID       string
	ChangeSummary  string
	FullSnapshot   Item
}

// IsRoot reports whether c is the first commit of its chain.
func (c Commit) IsRoot() bool {
	return c.ParentCommitID == ""
}

// Fields returns the object form of the commit.
func (c Commit) Fields() (Object, error) {
	snapshot, err := c.FullSnapshot.Fields()
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", c.CommitID, err)
	}
	var parent Value = Null{}
	if c.ParentCommitID != "" {
		parent = String(c.ParentCommitID)
	}
	return Object{
		"commit_id":        String(c.CommitID),
		"parent_commit_id": parent,
		"version_number":   Int(c.VersionNumber),
		"timestamp":        String(formatTime(c.Timestamp)),
		"author":           String(c.Author),
		"device_id":        String(c.DeviceID),
		"change_summary":   String(c.ChangeSummary),
		"full_snapshot":    snapshot,
	}, nil
}

// MarshalJSON encodes the commit as canonical JSON.
func (c Commit) MarshalJSON() ([]byte, error) {
	obj, err := c.Fields()
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(obj)
}

// UnmarshalJSON decodes a commit record.
func (c *Commit) UnmarshalJSON(data []byte) error {
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}

	var out Commit
	r := fieldReader{obj: obj}
	out.CommitID = r.str("commit_id")
	if _, isNull := obj["parent_commit_id"].(Null); !isNull {
		out.ParentCommitID = r.str("parent_commit_id")
	}
	out.VersionNumber = r.int("version_number")
	out.Timestamp = r.time("timestamp")
	out.Author = r.str("author")
	out.DeviceID = r.str("device_id")
	out.ChangeSummary = r.str("change_summary")
	if r.err != nil {
		return fmt.Errorf("commit: %w", r.err)
	}
	if out.CommitID == "" {
		return fmt.Errorf("commit: missing %q", "commit_id")
	}

	snap, ok := obj["full_snapshot"].(Object)
	if !ok {
		return fmt.Errorf("commit %s: full_snapshot must be an object", out.CommitID)
	}
	out.FullSnapshot, err = ItemFromFields(snap)
	if err != nil {
		return fmt.Errorf("commit %s: %w", out.CommitID, err)
	}

	*c = out
	return nil
}
