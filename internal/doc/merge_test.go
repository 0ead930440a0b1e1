package doc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeShallowOverwrite(t *testing.T) {
	it := testSongItem()

	merged, err := Merge(it, Object{
		"title": String("Amazing Grace (Remix)"),
		"parts": Array{Object{"label": String("Chorus")}},
	})
	require.NoError(t, err)

	song := merged.Payload.(*Song)
	assert.Equal(t, "Amazing Grace (Remix)", song.Title)
	assert.Equal(t, "John Newton", song.Artist, "fields absent from delta are preserved")
	require.Len(t, song.Parts, 1)
	assert.Equal(t, "Chorus", song.Parts[0].Label)
	assert.Empty(t, song.Parts[0].Lines, "nested values are replaced, not deep-merged")

	assert.Equal(t, "Amazing Grace", it.Payload.(*Song).Title, "input item is not mutated")
}

func TestMergeNullRemovesField(t *testing.T) {
	merged, err := Merge(testSongItem(), Object{"artist": Null{}})
	require.NoError(t, err)
	assert.Empty(t, merged.Payload.(*Song).Artist)
}

func TestMergeIgnoresEnvelopeKeys(t *testing.T) {
	it := testSongItem()
	merged, err := Merge(it, Object{
		"id":              String("hijack"),
		"version":         Int(99),
		"history_head_id": String("x"),
		"content_hash":    String("y"),
		"author":          String("mallory"),
		"type":            String("song"),
		"title":           String("New"),
	})
	require.NoError(t, err)

	assert.Equal(t, it.ID, merged.ID)
	assert.Equal(t, it.Version, merged.Version)
	assert.Equal(t, it.Author, merged.Author)
	assert.Equal(t, "New", merged.Payload.(*Song).Title)
}

func TestMergeUsageCount(t *testing.T) {
	merged, err := Merge(testSongItem(), Object{"usage_count": Int(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(5), merged.UsageCount)

	_, err = Merge(testSongItem(), Object{"usage_count": Int(-1)})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMergeRejectsTypeChange(t *testing.T) {
	_, err := Merge(testSongItem(), Object{"type": String("media")})
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestMergeRejectsUnknownField(t *testing.T) {
	_, err := Merge(testSongItem(), Object{"tempo": String("fast")})
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMergeFullSnapshotReverts(t *testing.T) {
	v1 := testSongItem()
	v1Fields, err := v1.Fields()
	require.NoError(t, err)

	v2, err := Merge(v1, Object{"title": String("Amazing Grace (Remix)"), "copyright": String("Public Domain")})
	require.NoError(t, err)

	reverted, err := Merge(v2, v1Fields)
	require.NoError(t, err)

	song := reverted.Payload.(*Song)
	assert.Equal(t, "Amazing Grace", song.Title)
	// Shallow merge keeps fields v1 never had.
	assert.Equal(t, "Public Domain", song.Copyright)
}
