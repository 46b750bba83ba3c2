package model

import (
	"encoding/json"
	"reflect"

	"github.com/rotisserie/eris"
)

// ErrNilResult is returned when a nil result is handed to the use case.
var ErrNilResult = eris.New("nil extraction result")

// ExtractionResult is the output of one extraction step for one entity. It
// is never persisted directly: the payload goes into an ExtractionLog and the
// fields are conditionally applied onto the Gold entity.
type ExtractionResult interface {
	EntityType() EntityType
	Payload() (map[string]any, error)
	Confidence() *float64
}

// IsNilResult reports whether r is nil or a typed nil pointer.
func IsNilResult(r ExtractionResult) bool {
	if r == nil {
		return true
	}
	v := reflect.ValueOf(r)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// ConversationExtractionResult is an extracted statement.
type ConversationExtractionResult struct {
	Comment          string   `json:"comment"`
	SequenceNumber   int      `json:"sequence_number"`
	SpeakerName      *string  `json:"speaker_name,omitempty"`
	SpeakerID        *int64   `json:"speaker_id,omitempty"`
	ChapterNumber    *int     `json:"chapter_number,omitempty"`
	SubChapterNumber *int     `json:"sub_chapter_number,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
}

func (r *ConversationExtractionResult) EntityType() EntityType           { return EntityTypeStatement }
func (r *ConversationExtractionResult) Payload() (map[string]any, error) { return toPayload(r) }
func (r *ConversationExtractionResult) Confidence() *float64 {
	if r == nil {
		return nil
	}
	return r.ConfidenceScore
}

// PoliticianExtractionResult is an extracted politician profile.
type PoliticianExtractionResult struct {
	Name             string   `json:"name"`
	PoliticalPartyID *int64   `json:"political_party_id,omitempty"`
	Furigana         *string  `json:"furigana,omitempty"`
	District         *string  `json:"district,omitempty"`
	ProfilePageURL   *string  `json:"profile_page_url,omitempty"`
	PartyPosition    *string  `json:"party_position,omitempty"`
	ConfidenceScore  *float64 `json:"confidence_score,omitempty"`
}

func (r *PoliticianExtractionResult) EntityType() EntityType           { return EntityTypePolitician }
func (r *PoliticianExtractionResult) Payload() (map[string]any, error) { return toPayload(r) }
func (r *PoliticianExtractionResult) Confidence() *float64 {
	if r == nil {
		return nil
	}
	return r.ConfidenceScore
}

// SpeakerExtractionResult is an extracted speaker classification and match.
type SpeakerExtractionResult struct {
	Name               string   `json:"name"`
	Type               *string  `json:"type,omitempty"`
	PoliticalPartyName *string  `json:"political_party_name,omitempty"`
	Position           *string  `json:"position,omitempty"`
	IsPolitician       bool     `json:"is_politician"`
	PoliticianID       *int64   `json:"politician_id,omitempty"`
	ConfidenceScore    *float64 `json:"confidence_score,omitempty"`
}

func (r *SpeakerExtractionResult) EntityType() EntityType           { return EntityTypeSpeaker }
func (r *SpeakerExtractionResult) Payload() (map[string]any, error) { return toPayload(r) }
func (r *SpeakerExtractionResult) Confidence() *float64 {
	if r == nil {
		return nil
	}
	return r.ConfidenceScore
}

// ConferenceMemberExtractionResult is a member extracted from a conference page.
type ConferenceMemberExtractionResult struct {
	ConferenceID       int64    `json:"conference_id"`
	ExtractedName      string   `json:"extracted_name"`
	SourceURL          string   `json:"source_url"`
	ExtractedRole      *string  `json:"extracted_role,omitempty"`
	ExtractedPartyName *string  `json:"extracted_party_name,omitempty"`
	AdditionalData     *string  `json:"additional_data,omitempty"`
	ConfidenceScore    *float64 `json:"confidence_score,omitempty"`
}

func (r *ConferenceMemberExtractionResult) EntityType() EntityType {
	return EntityTypeConferenceMember
}
func (r *ConferenceMemberExtractionResult) Payload() (map[string]any, error) { return toPayload(r) }
func (r *ConferenceMemberExtractionResult) Confidence() *float64 {
	if r == nil {
		return nil
	}
	return r.ConfidenceScore
}

// ParliamentaryGroupMemberExtractionResult is a member extracted from a parliamentary group page.
type ParliamentaryGroupMemberExtractionResult struct {
	ParliamentaryGroupID int64    `json:"parliamentary_group_id"`
	ExtractedName        string   `json:"extracted_name"`
	SourceURL            string   `json:"source_url"`
	ExtractedRole        *string  `json:"extracted_role,omitempty"`
	ExtractedPartyName   *string  `json:"extracted_party_name,omitempty"`
	ExtractedDistrict    *string  `json:"extracted_district,omitempty"`
	AdditionalInfo       *string  `json:"additional_info,omitempty"`
	ConfidenceScore      *float64 `json:"confidence_score,omitempty"`
}

func (r *ParliamentaryGroupMemberExtractionResult) EntityType() EntityType {
	return EntityTypeParliamentaryGroupMember
}
func (r *ParliamentaryGroupMemberExtractionResult) Payload() (map[string]any, error) {
	return toPayload(r)
}
func (r *ParliamentaryGroupMemberExtractionResult) Confidence() *float64 {
	if r == nil {
		return nil
	}
	return r.ConfidenceScore
}

// NewExtractionResult returns an empty result value for the given entity
// type, ready to be decoded into from JSON.
func NewExtractionResult(t EntityType) (ExtractionResult, bool) {
	switch t {
	case EntityTypeStatement:
		return &ConversationExtractionResult{}, true
	case EntityTypePolitician:
		return &PoliticianExtractionResult{}, true
	case EntityTypeSpeaker:
		return &SpeakerExtractionResult{}, true
	case EntityTypeConferenceMember:
		return &ConferenceMemberExtractionResult{}, true
	case EntityTypeParliamentaryGroupMember:
		return &ParliamentaryGroupMemberExtractionResult{}, true
	default:
		return nil, false
	}
}

// toPayload flattens a result struct into the generic map stored in
// extraction_logs.extracted_data, using the struct's JSON field names.
func toPayload(v ExtractionResult) (map[string]any, error) {
	if IsNilResult(v) {
		return nil, ErrNilResult
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "marshal %s result", v.EntityType())
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "flatten %s result", v.EntityType())
	}
	return out, nil
}
