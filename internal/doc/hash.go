package doc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashing.
// Version suffix enables future algorithm migration.
const (
	DomainItem   = "lectern/item/v1"
	DomainCommit = "lectern/commit/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content fingerprint of a snapshot.
//
// The hash covers every persisted field except those that change on every
// write: version, head commit and the two timestamps. Two versions with
// identical content therefore share a hash. ContentHash itself is never an
// input.
func ContentHash(it Item) (string, error) {
	obj, err := it.contentFields()
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("content hash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainItem, canonical), nil
}

// CommitDigest fingerprints a whole commit record, snapshot included.
func CommitDigest(c Commit) (string, error) {
	obj, err := c.Fields()
	if err != nil {
		return "", fmt.Errorf("commit digest: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("commit digest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCommit, canonical), nil
}

// MustContentHash is like ContentHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustContentHash(it Item) string {
	h, err := ContentHash(it)
	if err != nil {
		panic(err)
	}
	return h
}
