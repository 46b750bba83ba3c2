package model

import "time"

// Conversation is a single statement in meeting minutes.
type Conversation struct {
	ID               int64   `json:"id"`
	Comment          string  `json:"comment"`
	SequenceNumber   int     `json:"sequence_number"`
	MinutesID        *int64  `json:"minutes_id,omitempty"`
	SpeakerID        *int64  `json:"speaker_id,omitempty"`
	SpeakerName      *string `json:"speaker_name,omitempty"`
	ChapterNumber    *int    `json:"chapter_number,omitempty"`
	SubChapterNumber *int    `json:"sub_chapter_number,omitempty"`
	Verification
}

// EntityID implements Verifiable.
func (c *Conversation) EntityID() int64 { return c.ID }

// Politician is a curated politician record.
type Politician struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	PoliticalPartyID *int64  `json:"political_party_id,omitempty"`
	Furigana         *string `json:"furigana,omitempty"`
	District         *string `json:"district,omitempty"`
	ProfilePageURL   *string `json:"profile_page_url,omitempty"`
	PartyPosition    *string `json:"party_position,omitempty"`
	Verification
}

// EntityID implements Verifiable.
func (p *Politician) EntityID() int64 { return p.ID }

// Speaker is a name as it appears in minutes, optionally linked to a politician.
type Speaker struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Type               *string   `json:"type,omitempty"`
	PoliticalPartyName *string   `json:"political_party_name,omitempty"`
	Position           *string   `json:"position,omitempty"`
	IsPolitician       bool      `json:"is_politician"`
	PoliticianID       *int64    `json:"politician_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	Verification
}

// EntityID implements Verifiable.
func (s *Speaker) EntityID() int64 { return s.ID }

// ConferenceMember is a member scraped from a conference (council committee) page.
type ConferenceMember struct {
	ID                  int64     `json:"id"`
	ConferenceID        int64     `json:"conference_id"`
	ExtractedName       string    `json:"extracted_name"`
	SourceURL           string    `json:"source_url"`
	ExtractedRole       *string   `json:"extracted_role,omitempty"`
	ExtractedPartyName  *string   `json:"extracted_party_name,omitempty"`
	AdditionalData      *string   `json:"additional_data,omitempty"`
	MatchedPoliticianID *int64    `json:"matched_politician_id,omitempty"`
	ExtractedAt         time.Time `json:"extracted_at"`
	Verification
}

// EntityID implements Verifiable.
func (m *ConferenceMember) EntityID() int64 { return m.ID }

// ParliamentaryGroupMember is a member scraped from a parliamentary group page.
type ParliamentaryGroupMember struct {
	ID                   int64     `json:"id"`
	ParliamentaryGroupID int64     `json:"parliamentary_group_id"`
	ExtractedName        string    `json:"extracted_name"`
	SourceURL            string    `json:"source_url"`
	ExtractedRole        *string   `json:"extracted_role,omitempty"`
	ExtractedPartyName   *string   `json:"extracted_party_name,omitempty"`
	ExtractedDistrict    *string   `json:"extracted_district,omitempty"`
	AdditionalInfo       *string   `json:"additional_info,omitempty"`
	MatchedPoliticianID  *int64    `json:"matched_politician_id,omitempty"`
	ExtractedAt          time.Time `json:"extracted_at"`
	Verification
}

// EntityID implements Verifiable.
func (m *ParliamentaryGroupMember) EntityID() int64 { return m.ID }
