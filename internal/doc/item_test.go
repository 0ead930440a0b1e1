package doc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemJSONIsFlat(t *testing.T) {
	it := testSongItem()
	it.ContentHash = MustContentHash(it)

	data, err := json.Marshal(it)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "Amazing Grace", raw["title"])
	assert.Equal(t, "song", raw["type"])
	assert.Equal(t, float64(1), raw["version"])
	assert.Equal(t, "2026-03-01T09:30:00Z", raw["created_at"])
	assert.NotContains(t, raw, "payload")
}

func TestItemJSONRoundTrip(t *testing.T) {
	it := testSongItem()
	it.UsageCount = 4
	it.ContentHash = MustContentHash(it)

	data, err := json.Marshal(it)
	require.NoError(t, err)

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, it, back)
}

func TestItemJSONIsCanonical(t *testing.T) {
	data, err := testSongItem().MarshalJSON()
	require.NoError(t, err)

	obj, err := ParseObject(data)
	require.NoError(t, err)
	canonical, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, string(canonical), string(data))
}

func TestItemFromFieldsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing id", `{"type":"song","title":"x"}`, "missing"},
		{"unknown type", `{"id":"a","type":"hymnal","title":"x"}`, "unknown item type"},
		{"unknown field", `{"id":"a","type":"song","title":"x","tempo":"fast"}`, "invalid payload"},
		{"bad version", `{"id":"a","type":"song","title":"x","version":"one"}`, "must be an integer"},
		{"bad timestamp", `{"id":"a","type":"song","title":"x","created_at":"yesterday"}`, "created_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var it Item
			err := json.Unmarshal([]byte(tt.input), &it)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestItemField(t *testing.T) {
	it := testSongItem()

	v, ok := it.Field("title")
	require.True(t, ok)
	assert.Equal(t, String("Amazing Grace"), v)

	v, ok = it.Field("version")
	require.True(t, ok)
	assert.Equal(t, Int(1), v)

	_, ok = it.Field("copyright")
	assert.False(t, ok)
}

func TestItemCloneIsDeep(t *testing.T) {
	it := testSongItem()
	clone, err := it.Clone()
	require.NoError(t, err)

	clone.Payload.(*Song).Parts[0].Label = "Chorus"
	assert.Equal(t, "Verse 1", it.Payload.(*Song).Parts[0].Label)
}

func TestCommitJSONRoundTrip(t *testing.T) {
	snap := testSongItem()
	snap.ContentHash = MustContentHash(snap)

	root := Commit{
		CommitID:      snap.HistoryHeadID,
		VersionNumber: 1,
		Timestamp:     testTime,
		Author:        "system",
		DeviceID:      "unknown",
		ChangeSummary: "Created item",
		FullSnapshot:  snap,
	}

	data, err := json.Marshal(root)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"parent_commit_id":null`)

	var back Commit
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, root, back)
	assert.True(t, back.IsRoot())

	child := root
	child.CommitID = "c2"
	child.ParentCommitID = root.CommitID
	child.VersionNumber = 2

	data, err = json.Marshal(child)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, root.CommitID, back.ParentCommitID)
	assert.False(t, back.IsRoot())
}

func TestCommitUnmarshalErrors(t *testing.T) {
	var c Commit
	require.Error(t, json.Unmarshal([]byte(`{"commit_id":"c1","full_snapshot":"nope"}`), &c))
	require.Error(t, json.Unmarshal([]byte(`{"version_number":1}`), &c))
	require.Error(t, json.Unmarshal([]byte(`not json`), &c))
}

func TestPayloadVariants(t *testing.T) {
	for _, typ := range ItemTypes {
		p, err := NewPayload(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, p.Kind())
		assert.True(t, typ.Valid())
	}

	_, err := NewPayload("hymnal")
	require.ErrorIs(t, err, ErrUnknownType)
	assert.False(t, ItemType("hymnal").Valid())
}

func TestDecodePayloadRejectsEnvelopeKeys(t *testing.T) {
	_, err := DecodePayload(TypeSong, Object{"title": String("x"), "version": Int(3)})
	require.ErrorIs(t, err, ErrInvalidPayload)
}
