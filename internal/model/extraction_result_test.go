package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractionResult_Payload(t *testing.T) {
	t.Parallel()

	district := "東京1区"
	conf := 0.95
	r := &PoliticianExtractionResult{Name: "山田太郎", District: &district, ConfidenceScore: &conf}

	p, err := r.Payload()
	require.NoError(t, err)
	assert.Equal(t, "山田太郎", p["name"])
	assert.Equal(t, "東京1区", p["district"])
	assert.InDelta(t, 0.95, p["confidence_score"], 0.0001)
	_, hasFurigana := p["furigana"]
	assert.False(t, hasFurigana)

	assert.Equal(t, EntityTypePolitician, r.EntityType())
	require.NotNil(t, r.Confidence())
	assert.InDelta(t, 0.95, *r.Confidence(), 0.0001)
}

func TestNewExtractionResult(t *testing.T) {
	t.Parallel()

	for _, et := range EntityTypes {
		r, ok := NewExtractionResult(et)
		require.True(t, ok, et)
		assert.Equal(t, et, r.EntityType())
	}

	_, ok := NewExtractionResult("unknown")
	assert.False(t, ok)
}

func TestNewExtractionResult_DecodesJSON(t *testing.T) {
	t.Parallel()

	r, ok := NewExtractionResult(EntityTypeSpeaker)
	require.True(t, ok)
	require.NoError(t, json.Unmarshal([]byte(`{"name":"鈴木一郎","is_politician":true,"politician_id":100}`), r))

	s := r.(*SpeakerExtractionResult)
	assert.Equal(t, "鈴木一郎", s.Name)
	assert.True(t, s.IsPolitician)
	require.NotNil(t, s.PoliticianID)
	assert.Equal(t, int64(100), *s.PoliticianID)
	assert.Nil(t, r.Confidence())
}

func TestExtractionResult_NilReceiver(t *testing.T) {
	t.Parallel()

	var r *SpeakerExtractionResult
	var res ExtractionResult = r

	assert.True(t, IsNilResult(res))
	assert.True(t, IsNilResult(nil))
	assert.False(t, IsNilResult(&SpeakerExtractionResult{}))

	assert.NotPanics(t, func() { assert.Nil(t, res.Confidence()) })
	p, err := res.Payload()
	assert.Nil(t, p)
	assert.ErrorIs(t, err, ErrNilResult)
}
