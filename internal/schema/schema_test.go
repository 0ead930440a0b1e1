package schema

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lectern/internal/doc"
)

func mustObject(t *testing.T, s string) doc.Object {
	t.Helper()
	obj, err := doc.ParseObject([]byte(s))
	require.NoError(t, err)
	return obj
}

func TestValidateAcceptsValidPayloads(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	tests := []struct {
		typ     doc.ItemType
		payload string
	}{
		{doc.TypeSong, `{"title":"Amazing Grace","artist":"John Newton","tempo_bpm":72,"parts":[{"label":"Verse 1","lines":["Amazing grace"]}]}`},
		{doc.TypeScripture, `{"reference":"John 3:16","translation":"KJV","chapter":3,"verses":[{"number":16,"text":"For God so loved the world"}]}`},
		{doc.TypeSchedule, `{"title":"Sunday Service","service_date":"2026-03-01","entries":[{"item_id":"abc","item_type":"song"}]}`},
		{doc.TypeMedia, `{"title":"Intro Loop","uri":"file:///media/intro.mp4","mime_type":"video/mp4","duration_ms":30000}`},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			require.NoError(t, v.Validate(tt.typ, mustObject(t, tt.payload)))
		})
	}
}

func TestValidateRejectsInvalidPayloads(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	tests := []struct {
		name    string
		typ     doc.ItemType
		payload string
		field   string
	}{
		{"missing title", doc.TypeSong, `{"artist":"Unknown"}`, "title"},
		{"empty title", doc.TypeSong, `{"title":""}`, "title"},
		{"unknown field", doc.TypeSong, `{"title":"x","tempo":"fast"}`, "tempo"},
		{"tempo out of range", doc.TypeSong, `{"title":"x","tempo_bpm":0}`, "tempo_bpm"},
		{"wrong kind", doc.TypeSong, `{"title":42}`, "title"},
		{"missing uri", doc.TypeMedia, `{"title":"Intro"}`, "uri"},
		{"bad service date", doc.TypeSchedule, `{"title":"Sunday","service_date":"March 1"}`, "service_date"},
		{"bad entry type", doc.TypeSchedule, `{"title":"Sunday","entries":[{"item_id":"a","item_type":"hymn"}]}`, "entries"},
		{"verse number", doc.TypeScripture, `{"reference":"John 3","verses":[{"number":0,"text":"x"}]}`, "verses"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.typ, mustObject(t, tt.payload))
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %T", err)
			assert.Equal(t, tt.typ, ve.Type)
			assert.Contains(t, ve.Error(), tt.field)
		})
	}
}

func TestValidateUnknownType(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	err = v.Validate("hymnal", doc.Object{"title": doc.String("x")})
	require.ErrorIs(t, err, doc.ErrUnknownType)
}

func TestCompileMissingDefinition(t *testing.T) {
	_, err := Compile(`#Song: { title: string }`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing definition")
}

func TestCompileSyntaxError(t *testing.T) {
	_, err := Compile(`#Song: {`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile schemas")
}

func TestValidateConcurrent(t *testing.T) {
	v, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- v.Validate(doc.TypeSong, doc.Object{"title": doc.String("Amazing Grace")})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}
