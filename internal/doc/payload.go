package doc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ItemType discriminates the payload variant carried by an item.
type ItemType string

const (
	TypeSong      ItemType = "song"
	TypeScripture ItemType = "scripture"
	TypeSchedule  ItemType = "schedule"
	TypeMedia     ItemType = "media"
)

// ItemTypes lists every supported item type in display order.
var ItemTypes = []ItemType{TypeSong, TypeScripture, TypeSchedule, TypeMedia}

// Valid reports whether t is one of the supported item types.
func (t ItemType) Valid() bool {
	switch t {
	case TypeSong, TypeScripture, TypeSchedule, TypeMedia:
		return true
	}
	return false
}

// Payload is the sealed set of type-specific item contents.
// Only *Song, *Scripture, *Schedule and *Media implement it.
type Payload interface {
	Kind() ItemType
	payload()
}

// SongPart is one labelled block of lyrics (verse, chorus, bridge).
type SongPart struct {
	Label string   `json:"label"`
	Lines []string `json:"lines,omitempty"`
}

// Song is a worship song with its lyric parts and arrangement.
type Song struct {
	Title       string     `json:"title"`
	Artist      string     `json:"artist,omitempty"`
	Writers     []string   `json:"writers,omitempty"`
	Copyright   string     `json:"copyright,omitempty"`
	CCLINumber  string     `json:"ccli_number,omitempty"`
	Key         string     `json:"key,omitempty"`
	TempoBPM    int64      `json:"tempo_bpm,omitempty"`
	Language    string     `json:"language,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Parts       []SongPart `json:"parts,omitempty"`
	Arrangement []string   `json:"arrangement,omitempty"`
}

func (*Song) Kind() ItemType { return TypeSong }
func (*Song) payload()       {}

// Verse is a single numbered scripture verse.
type Verse struct {
	Number int64  `json:"number"`
	Text   string `json:"text"`
}

// Scripture is a passage from a bible translation.
type Scripture struct {
	Reference   string  `json:"reference"`
	Translation string  `json:"translation,omitempty"`
	Book        string  `json:"book,omitempty"`
	Chapter     int64   `json:"chapter,omitempty"`
	Verses      []Verse `json:"verses,omitempty"`
}

func (*Scripture) Kind() ItemType { return TypeScripture }
func (*Scripture) payload()       {}

// ScheduleEntry references another library item from a service schedule.
type ScheduleEntry struct {
	ItemID   string   `json:"item_id"`
	ItemType ItemType `json:"item_type,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// Schedule is an ordered running order for a service.
type Schedule struct {
	Title       string          `json:"title"`
	ServiceDate string          `json:"service_date,omitempty"`
	Entries     []ScheduleEntry `json:"entries,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

func (*Schedule) Kind() ItemType { return TypeSchedule }
func (*Schedule) payload()       {}

// Media references an image, video or audio asset stored elsewhere.
type Media struct {
	Title      string   `json:"title"`
	URI        string   `json:"uri"`
	MimeType   string   `json:"mime_type,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Width      int64    `json:"width,omitempty"`
	Height     int64    `json:"height,omitempty"`
	SizeBytes  int64    `json:"size_bytes,omitempty"`
	Checksum   string   `json:"checksum,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

func (*Media) Kind() ItemType { return TypeMedia }
func (*Media) payload()       {}

// NewPayload returns an empty payload for t.
func NewPayload(t ItemType) (Payload, error) {
	switch t {
	case TypeSong:
		return &Song{}, nil
	case TypeScripture:
		return &Scripture{}, nil
	case TypeSchedule:
		return &Schedule{}, nil
	case TypeMedia:
		return &Media{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// PayloadObject flattens a payload into its top-level fields.
func PayloadObject(p Payload) (Object, error) {
	if p == nil {
		return nil, fmt.Errorf("payload object: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("payload object: %w", err)
	}
	obj, err := ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("payload object: %w", err)
	}
	return obj, nil
}

// DecodePayload builds the payload variant for t from top-level fields.
// Unknown fields are rejected.
func DecodePayload(t ItemType, fields Object) (Payload, error) {
	p, err := NewPayload(t)
	if err != nil {
		return nil, err
	}
	for k := range fields {
		if IsEnvelopeKey(k) {
			return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidPayload, k)
		}
	}

	data, err := MarshalCanonical(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, t, err)
	}
	return p, nil
}
