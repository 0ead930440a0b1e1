package doc

import "errors"

var (
	// ErrUnknownType is returned for item types outside the supported set.
	ErrUnknownType = errors.New("unknown item type")

	// ErrTypeMismatch is returned when a delta or payload disagrees with the item type.
	ErrTypeMismatch = errors.New("item type mismatch")

	// ErrInvalidPayload is returned when fields cannot form a payload variant.
	ErrInvalidPayload = errors.New("invalid payload")
)
