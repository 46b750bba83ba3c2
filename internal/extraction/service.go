package extraction

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/store"
)

// Service routes results of any entity kind to the matching Updater. The CLI
// and HTTP API use it when the kind is only known at runtime.
type Service struct {
	conversations *ConversationUpdater
	politicians   *PoliticianUpdater
	speakers      *SpeakerUpdater
	conferences   *ConferenceMemberUpdater
	groupMembers  *ParliamentaryGroupMemberUpdater
}

// NewService builds updaters for all five entity kinds.
func NewService(logs LogRecorder, entities store.EntityStore) *Service {
	return &Service{
		conversations: NewConversationUpdater(logs, entities),
		politicians:   NewPoliticianUpdater(logs, entities),
		speakers:      NewSpeakerUpdater(logs, entities),
		conferences:   NewConferenceMemberUpdater(logs, entities),
		groupMembers:  NewParliamentaryGroupMemberUpdater(logs, entities),
	}
}

// Apply runs the use case for result against entity entityID.
func (s *Service) Apply(ctx context.Context, entityID int64, result model.ExtractionResult, pipelineVersion string) (*Result, error) {
	if model.IsNilResult(result) {
		return nil, eris.Wrapf(model.ErrNilResult, "extraction: apply to entity %d", entityID)
	}
	switch r := result.(type) {
	case *model.ConversationExtractionResult:
		return s.conversations.Execute(ctx, entityID, r, pipelineVersion)
	case *model.PoliticianExtractionResult:
		return s.politicians.Execute(ctx, entityID, r, pipelineVersion)
	case *model.SpeakerExtractionResult:
		return s.speakers.Execute(ctx, entityID, r, pipelineVersion)
	case *model.ConferenceMemberExtractionResult:
		return s.conferences.Execute(ctx, entityID, r, pipelineVersion)
	case *model.ParliamentaryGroupMemberExtractionResult:
		return s.groupMembers.Execute(ctx, entityID, r, pipelineVersion)
	default:
		return nil, eris.Errorf("extraction: unsupported result type %T", result)
	}
}

// DecodeResult decodes a JSON result body for the given entity kind.
func DecodeResult(entityType model.EntityType, raw json.RawMessage) (model.ExtractionResult, error) {
	result, ok := model.NewExtractionResult(entityType)
	if !ok {
		return nil, eris.Errorf("extraction: unknown entity type %q", entityType)
	}
	if len(raw) == 0 {
		return nil, eris.New("extraction: empty result")
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, eris.Wrapf(err, "extraction: decode %s result", entityType)
	}
	return result, nil
}
