package library

import (
	"errors"
	"fmt"
)

var (
	// ErrItemNotFound is returned by writes that target an id with no snapshot.
	// Updates never create items implicitly.
	ErrItemNotFound = errors.New("item not found")

	// ErrVersionNotFound is returned when history holds no commit for a version.
	ErrVersionNotFound = errors.New("version not found")
)

// VersionConflictError reports a failed WithExpectedVersion check.
type VersionConflictError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected version %d, current version %d", e.ID, e.Expected, e.Actual)
}

// IsNotFound reports whether err means the item or version does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) || errors.Is(err, ErrVersionNotFound)
}

// IsConflict reports whether err is a version conflict.
// Uses errors.As to handle wrapped errors.
func IsConflict(err error) bool {
	var ce *VersionConflictError
	return errors.As(err, &ce)
}
