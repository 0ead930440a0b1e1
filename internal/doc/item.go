package doc

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope keys shared by every item type. Payload fields may never use them.
const (
	KeyID                   = "id"
	KeyType                 = "type"
	KeyVersion              = "version"
	KeyHistoryHeadID        = "history_head_id"
	KeyCreatedAt            = "created_at"
	KeyUpdatedAt            = "updated_at"
	KeyUsageCount           = "usage_count"
	KeyAuthor               = "author"
	KeyOriginDeviceID       = "origin_device_id"
	KeyLastModifiedDeviceID = "last_modified_device_id"
	KeyContentHash          = "content_hash"
)

var envelopeKeys = map[string]bool{
	KeyID:                   true,
	KeyType:                 true,
	KeyVersion:              true,
	KeyHistoryHeadID:        true,
	KeyCreatedAt:            true,
	KeyUpdatedAt:            true,
	KeyUsageCount:           true,
	KeyAuthor:               true,
	KeyOriginDeviceID:       true,
	KeyLastModifiedDeviceID: true,
	KeyContentHash:          true,
}

// IsEnvelopeKey reports whether key is managed by the item envelope.
func IsEnvelopeKey(key string) bool {
	return envelopeKeys[key]
}

// TimeLayout is the persisted timestamp format. Always UTC.
const TimeLayout = time.RFC3339Nano

// Item is the current materialized state of one library entity (a snapshot).
//
// The JSON encoding is flat: envelope and payload fields share one object so a
// full snapshot can be fed back into an update as a delta.
type Item struct {
	ID                   string
	Type                 ItemType
	Version              int64
	HistoryHeadID        string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	UsageCount           int64
	Author               string
	OriginDeviceID       string
	LastModifiedDeviceID string
	ContentHash          string
	Payload              Payload
}

// Fields returns the flat object form of the item, envelope included.
func (it Item) Fields() (Object, error) {
	obj, err := it.contentFields()
	if err != nil {
		return nil, err
	}
	obj[KeyVersion] = Int(it.Version)
	obj[KeyHistoryHeadID] = String(it.HistoryHeadID)
	obj[KeyCreatedAt] = String(formatTime(it.CreatedAt))
	obj[KeyUpdatedAt] = String(formatTime(it.UpdatedAt))
	obj[KeyContentHash] = String(it.ContentHash)
	return obj, nil
}

// contentFields returns the fields covered by the content hash: identity,
// attribution, usage count and payload. Fields that change on every write
// (version, head commit, timestamps) are excluded.
func (it Item) contentFields() (Object, error) {
	if it.Payload == nil {
		return nil, fmt.Errorf("item %s: nil payload", it.ID)
	}
	if it.Payload.Kind() != it.Type {
		return nil, fmt.Errorf("item %s: %w: payload is %s, item is %s", it.ID, ErrTypeMismatch, it.Payload.Kind(), it.Type)
	}
	obj, err := PayloadObject(it.Payload)
	if err != nil {
		return nil, err
	}
	obj[KeyID] = String(it.ID)
	obj[KeyType] = String(it.Type)
	obj[KeyAuthor] = String(it.Author)
	obj[KeyOriginDeviceID] = String(it.OriginDeviceID)
	obj[KeyLastModifiedDeviceID] = String(it.LastModifiedDeviceID)
	obj[KeyUsageCount] = Int(it.UsageCount)
	return obj, nil
}

// PayloadFields returns only the payload fields of the item.
func (it Item) PayloadFields() (Object, error) {
	return PayloadObject(it.Payload)
}

// Field returns the value of a top-level field, envelope or payload.
func (it Item) Field(key string) (Value, bool) {
	obj, err := it.Fields()
	if err != nil {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// MarshalJSON encodes the item as flat canonical JSON.
// json.Marshal re-escapes <, > and & in the output; call MarshalJSON directly
// when the exact canonical bytes matter.
func (it Item) MarshalJSON() ([]byte, error) {
	obj, err := it.Fields()
	if err != nil {
		return nil, err
	}
	return MarshalCanonical(obj)
}

// UnmarshalJSON decodes a flat item object.
func (it *Item) UnmarshalJSON(data []byte) error {
	obj, err := ParseObject(data)
	if err != nil {
		return err
	}
	decoded, err := ItemFromFields(obj)
	if err != nil {
		return err
	}
	*it = decoded
	return nil
}

// ItemFromFields rebuilds an item from its flat object form.
func ItemFromFields(obj Object) (Item, error) {
	var it Item
	var err error
	r := fieldReader{obj: obj}

	it.ID = r.str(KeyID)
	it.Type = ItemType(r.str(KeyType))
	it.Version = r.int(KeyVersion)
	it.HistoryHeadID = r.str(KeyHistoryHeadID)
	it.CreatedAt = r.time(KeyCreatedAt)
	it.UpdatedAt = r.time(KeyUpdatedAt)
	it.UsageCount = r.int(KeyUsageCount)
	it.Author = r.str(KeyAuthor)
	it.OriginDeviceID = r.str(KeyOriginDeviceID)
	it.LastModifiedDeviceID = r.str(KeyLastModifiedDeviceID)
	it.ContentHash = r.str(KeyContentHash)
	if r.err != nil {
		return Item{}, r.err
	}
	if it.ID == "" {
		return Item{}, fmt.Errorf("item: missing %q", KeyID)
	}

	payload := make(Object, len(obj))
	for k, v := range obj {
		if !IsEnvelopeKey(k) {
			payload[k] = v
		}
	}
	it.Payload, err = DecodePayload(it.Type, payload)
	if err != nil {
		return Item{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	return it, nil
}

// fieldReader extracts typed envelope fields, keeping the first error.
type fieldReader struct {
	obj Object
	err error
}

func (r *fieldReader) str(key string) string {
	v, ok := r.obj[key]
	if !ok || r.err != nil {
		return ""
	}
	s, ok := v.(String)
	if !ok {
		r.err = fmt.Errorf("item: %q must be a string, got %s", key, kindOf(v))
		return ""
	}
	return string(s)
}

func (r *fieldReader) int(key string) int64 {
	v, ok := r.obj[key]
	if !ok || r.err != nil {
		return 0
	}
	n, ok := v.(Int)
	if !ok {
		r.err = fmt.Errorf("item: %q must be an integer, got %s", key, kindOf(v))
		return 0
	}
	return int64(n)
}

func (r *fieldReader) time(key string) time.Time {
	s := r.str(key)
	if s == "" || r.err != nil {
		return time.Time{}
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		r.err = fmt.Errorf("item: %q: %w", key, err)
		return time.Time{}
	}
	return t.UTC()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// Clone returns a deep copy of the item, payload included.
func (it Item) Clone() (Item, error) {
	if it.Payload == nil {
		return it, nil
	}
	fields, err := PayloadObject(it.Payload)
	if err != nil {
		return Item{}, err
	}
	p, err := DecodePayload(it.Type, fields)
	if err != nil {
		return Item{}, err
	}
	out := it
	out.Payload = p
	return out, nil
}

var _ json.Marshaler = Item{}
