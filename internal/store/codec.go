package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/lectern/internal/doc"
)

// encodeSnapshot converts an item to canonical JSON for storage.
func encodeSnapshot(it doc.Item) ([]byte, error) {
	data, err := it.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", it.ID, err)
	}
	return data, nil
}

// decodeSnapshot parses a stored snapshot. The stored id must match.
func decodeSnapshot(id string, data []byte) (doc.Item, error) {
	var it doc.Item
	if err := json.Unmarshal(data, &it); err != nil {
		return doc.Item{}, err
	}
	if it.ID != id {
		return doc.Item{}, fmt.Errorf("snapshot id %q does not match key %q", it.ID, id)
	}
	return it, nil
}

// encodeCommit converts a commit to one line of canonical JSON, without the
// trailing newline.
func encodeCommit(c doc.Commit) ([]byte, error) {
	data, err := c.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode commit %s: %w", c.CommitID, err)
	}
	return data, nil
}

func decodeCommit(data []byte) (doc.Commit, error) {
	var c doc.Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return doc.Commit{}, err
	}
	return c, nil
}

// checkCommitOwner ensures a commit is appended to its own item's log.
func checkCommitOwner(id string, c doc.Commit) error {
	if c.FullSnapshot.ID != id {
		return fmt.Errorf("append commit %s: snapshot belongs to %q, not %q", c.CommitID, c.FullSnapshot.ID, id)
	}
	return nil
}
