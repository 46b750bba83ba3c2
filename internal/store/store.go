// Package store persists the extraction audit trail (Bronze layer), the
// curated Gold entities and parliamentary groups. PostgresStore is the
// production backend; SQLiteStore serves local runs and tests.
package store

import (
	"context"
	"time"

	"github.com/sagebase/sagebase/internal/model"
)

// ExtractionLogStore is the append-only Bronze layer. There is no update or
// delete operation.
type ExtractionLogStore interface {
	RecordExtraction(ctx context.Context, log *model.ExtractionLog) (int64, error)
	ImportExtractionLogs(ctx context.Context, logs []model.ExtractionLog) (int64, error)
	GetExtractionLog(ctx context.Context, id int64) (*model.ExtractionLog, error)
	// ListExtractionLogsByEntity returns logs newest first.
	ListExtractionLogsByEntity(ctx context.Context, entityType model.EntityType, entityID int64, limit, offset int) ([]model.ExtractionLog, error)
	SearchExtractionLogs(ctx context.Context, filter model.ExtractionLogFilter) (*model.ExtractionLogPage, error)
	ExtractionStatistics(ctx context.Context, filter model.ExtractionLogFilter) (*model.ExtractionStatistics, error)
}

// EntityStore reads and writes the five Gold entity kinds.
type EntityStore interface {
	CreateConversation(ctx context.Context, c *model.Conversation) error
	GetConversation(ctx context.Context, id int64) (*model.Conversation, error)
	UpdateConversation(ctx context.Context, c *model.Conversation) error

	CreatePolitician(ctx context.Context, p *model.Politician) error
	GetPolitician(ctx context.Context, id int64) (*model.Politician, error)
	UpdatePolitician(ctx context.Context, p *model.Politician) error

	CreateSpeaker(ctx context.Context, s *model.Speaker) error
	GetSpeaker(ctx context.Context, id int64) (*model.Speaker, error)
	UpdateSpeaker(ctx context.Context, s *model.Speaker) error

	CreateConferenceMember(ctx context.Context, m *model.ConferenceMember) error
	GetConferenceMember(ctx context.Context, id int64) (*model.ConferenceMember, error)
	UpdateConferenceMember(ctx context.Context, m *model.ConferenceMember) error

	CreateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error
	GetParliamentaryGroupMember(ctx context.Context, id int64) (*model.ParliamentaryGroupMember, error)
	UpdateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error

	// SetVerified flips is_manually_verified without touching other columns.
	SetVerified(ctx context.Context, entityType model.EntityType, id int64, verified bool) error
}

// GroupQuery selects parliamentary groups of one governing body.
type GroupQuery struct {
	GoverningBodyID  int64
	AsOf             *time.Time
	ActiveOnly       bool
	Chamber          *string
	PoliticalPartyID *int64
}

// ParliamentaryGroupStore persists parliamentary groups.
type ParliamentaryGroupStore interface {
	CreateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error
	UpdateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error
	GetParliamentaryGroup(ctx context.Context, id int64) (*model.ParliamentaryGroup, error)
	GetParliamentaryGroupByName(ctx context.Context, name string, governingBodyID int64, chamber string) (*model.ParliamentaryGroup, error)
	// ListParliamentaryGroups applies the temporal policy of model.ActiveAsOf
	// when q.AsOf is set, or the is_active flag when only q.ActiveOnly is.
	// Results are ordered by name.
	ListParliamentaryGroups(ctx context.Context, q GroupQuery) ([]model.ParliamentaryGroup, error)
	// UpsertParliamentaryGroups inserts or updates groups keyed by
	// (name, governing_body_id, chamber).
	UpsertParliamentaryGroups(ctx context.Context, groups []model.ParliamentaryGroup) (int64, error)
}

// Store is the full persistence interface.
type Store interface {
	ExtractionLogStore
	EntityStore
	ParliamentaryGroupStore

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const (
	defaultLogLimit = 50
	maxLogLimit     = 1000
)

// clampLimit bounds a page size: non-positive limits become defaultLogLimit
// and anything above maxLogLimit is capped to it.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLogLimit
	case limit > maxLogLimit:
		return maxLogLimit
	default:
		return limit
	}
}
