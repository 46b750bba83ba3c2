// Package model defines the Gold-layer entities, the Bronze-layer extraction
// log and the temporal validity policy shared by the store and use cases.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// EntityType identifies which kind of Gold entity an extraction describes.
type EntityType string

const (
	EntityTypeStatement                EntityType = "statement"
	EntityTypePolitician               EntityType = "politician"
	EntityTypeSpeaker                  EntityType = "speaker"
	EntityTypeConferenceMember         EntityType = "conference_member"
	EntityTypeParliamentaryGroupMember EntityType = "parliamentary_group_member"
)

// EntityTypes lists every supported entity type in a stable order.
var EntityTypes = []EntityType{
	EntityTypeStatement,
	EntityTypePolitician,
	EntityTypeSpeaker,
	EntityTypeConferenceMember,
	EntityTypeParliamentaryGroupMember,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseEntityType converts a string (as used on the CLI and HTTP API) into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", eris.Errorf("unknown entity type: %q", s)
	}
	return t, nil
}

// ExtractionLog is one append-only record of an extraction attempt against a
// Gold entity. Rows are written whether or not the attempt changed the entity.
type ExtractionLog struct {
	ID               int64          `json:"id"`
	EntityType       EntityType     `json:"entity_type"`
	EntityID         int64          `json:"entity_id"`
	PipelineVersion  string         `json:"pipeline_version"`
	ExtractedData    map[string]any `json:"extracted_data"`
	ConfidenceScore  *float64       `json:"confidence_score,omitempty"`
	Metadata         map[string]any `json:"extraction_metadata,omitempty"`
	ModelName        *string        `json:"model_name,omitempty"`
	TokenCountInput  *int           `json:"token_count_input,omitempty"`
	TokenCountOutput *int           `json:"token_count_output,omitempty"`
	ProcessingTimeMS *int           `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Validate checks the shape of a log before it is recorded.
func (l *ExtractionLog) Validate() error {
	if !l.EntityType.Valid() {
		return eris.Errorf("extraction log: unknown entity type %q", l.EntityType)
	}
	if l.EntityID <= 0 {
		return eris.Errorf("extraction log: invalid entity id %d", l.EntityID)
	}
	if l.PipelineVersion == "" {
		return eris.New("extraction log: pipeline version is required")
	}
	if l.ConfidenceScore != nil && (*l.ConfidenceScore < 0 || *l.ConfidenceScore > 1) {
		return eris.Errorf("extraction log: confidence score %v out of range [0,1]", *l.ConfidenceScore)
	}
	return nil
}

// ExtractionLogFilter narrows a search over extraction logs. Zero values mean
// "no constraint". The stores default Limit to 50 and cap it at 1000.
type ExtractionLogFilter struct {
	EntityType      EntityType `json:"entity_type,omitempty"`
	EntityID        int64      `json:"entity_id,omitempty"`
	PipelineVersion string     `json:"pipeline_version,omitempty"`
	DateFrom        *time.Time `json:"date_from,omitempty"`
	DateTo          *time.Time `json:"date_to,omitempty"`
	MinConfidence   *float64   `json:"min_confidence_score,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}

// ExtractionLogPage is one page of search results plus the unpaginated count.
type ExtractionLogPage struct {
	Logs       []ExtractionLog `json:"logs"`
	TotalCount int             `json:"total_count"`
	PageSize   int             `json:"page_size"`
	Offset     int             `json:"current_offset"`
}

// DailyCount is the number of logs created on one calendar day (UTC).
type DailyCount struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// ExtractionStatistics summarises logs for trend dashboards.
type ExtractionStatistics struct {
	TotalCount           int                `json:"total_count"`
	ByEntityType         map[string]int     `json:"by_entity_type"`
	ByPipelineVersion    map[string]int     `json:"by_pipeline_version"`
	AverageConfidence    *float64           `json:"average_confidence,omitempty"`
	ConfidenceByPipeline map[string]float64 `json:"confidence_by_pipeline"`
	DailyCounts          []DailyCount       `json:"daily_counts"`
}
