package extraction

import (
	"github.com/sagebase/sagebase/internal/model"
	"github.com/sagebase/sagebase/internal/store"
)

type (
	ConversationUpdater             = Updater[*model.Conversation, *model.ConversationExtractionResult]
	PoliticianUpdater               = Updater[*model.Politician, *model.PoliticianExtractionResult]
	SpeakerUpdater                  = Updater[*model.Speaker, *model.SpeakerExtractionResult]
	ConferenceMemberUpdater         = Updater[*model.ConferenceMember, *model.ConferenceMemberExtractionResult]
	ParliamentaryGroupMemberUpdater = Updater[*model.ParliamentaryGroupMember, *model.ParliamentaryGroupMemberExtractionResult]
)

// NewConversationUpdater applies statement extractions.
func NewConversationUpdater(logs LogRecorder, entities store.EntityStore) *ConversationUpdater {
	return NewUpdater(logs,
		RepositoryFuncs[*model.Conversation]{GetFunc: entities.GetConversation, UpdateFunc: entities.UpdateConversation},
		Strategy[*model.Conversation, *model.ConversationExtractionResult]{
			EntityType: model.EntityTypeStatement,
			Apply:      applyConversation,
		})
}

// NewPoliticianUpdater applies politician profile extractions.
func NewPoliticianUpdater(logs LogRecorder, entities store.EntityStore) *PoliticianUpdater {
	return NewUpdater(logs,
		RepositoryFuncs[*model.Politician]{GetFunc: entities.GetPolitician, UpdateFunc: entities.UpdatePolitician},
		Strategy[*model.Politician, *model.PoliticianExtractionResult]{
			EntityType: model.EntityTypePolitician,
			Apply:      applyPolitician,
		})
}

// NewSpeakerUpdater applies speaker classification extractions.
func NewSpeakerUpdater(logs LogRecorder, entities store.EntityStore) *SpeakerUpdater {
	return NewUpdater(logs,
		RepositoryFuncs[*model.Speaker]{GetFunc: entities.GetSpeaker, UpdateFunc: entities.UpdateSpeaker},
		Strategy[*model.Speaker, *model.SpeakerExtractionResult]{
			EntityType: model.EntityTypeSpeaker,
			Apply:      applySpeaker,
		})
}

// NewConferenceMemberUpdater applies conference member extractions.
func NewConferenceMemberUpdater(logs LogRecorder, entities store.EntityStore) *ConferenceMemberUpdater {
	return NewUpdater(logs,
		RepositoryFuncs[*model.ConferenceMember]{GetFunc: entities.GetConferenceMember, UpdateFunc: entities.UpdateConferenceMember},
		Strategy[*model.ConferenceMember, *model.ConferenceMemberExtractionResult]{
			EntityType: model.EntityTypeConferenceMember,
			Apply:      applyConferenceMember,
		})
}

// NewParliamentaryGroupMemberUpdater applies parliamentary group member extractions.
func NewParliamentaryGroupMemberUpdater(logs LogRecorder, entities store.EntityStore) *ParliamentaryGroupMemberUpdater {
	return NewUpdater(logs,
		RepositoryFuncs[*model.ParliamentaryGroupMember]{GetFunc: entities.GetParliamentaryGroupMember, UpdateFunc: entities.UpdateParliamentaryGroupMember},
		Strategy[*model.ParliamentaryGroupMember, *model.ParliamentaryGroupMemberExtractionResult]{
			EntityType: model.EntityTypeParliamentaryGroupMember,
			Apply:      applyParliamentaryGroupMember,
		})
}

// Required fields always overwrite. Optional fields overwrite only when the
// extraction produced a value.

func applyConversation(c *model.Conversation, r *model.ConversationExtractionResult) {
	c.Comment = r.Comment
	c.SequenceNumber = r.SequenceNumber
	setIfPresent(&c.SpeakerName, r.SpeakerName)
	setIfPresent(&c.SpeakerID, r.SpeakerID)
	setIfPresent(&c.ChapterNumber, r.ChapterNumber)
	setIfPresent(&c.SubChapterNumber, r.SubChapterNumber)
}

func applyPolitician(p *model.Politician, r *model.PoliticianExtractionResult) {
	p.Name = r.Name
	setIfPresent(&p.PoliticalPartyID, r.PoliticalPartyID)
	setIfPresent(&p.Furigana, r.Furigana)
	setIfPresent(&p.District, r.District)
	setIfPresent(&p.ProfilePageURL, r.ProfilePageURL)
	setIfPresent(&p.PartyPosition, r.PartyPosition)
}

func applySpeaker(s *model.Speaker, r *model.SpeakerExtractionResult) {
	s.Name = r.Name
	s.IsPolitician = r.IsPolitician
	setIfPresent(&s.Type, r.Type)
	setIfPresent(&s.PoliticalPartyName, r.PoliticalPartyName)
	setIfPresent(&s.Position, r.Position)
	setIfPresent(&s.PoliticianID, r.PoliticianID)
}

func applyConferenceMember(m *model.ConferenceMember, r *model.ConferenceMemberExtractionResult) {
	m.ExtractedName = r.ExtractedName
	m.SourceURL = r.SourceURL
	setIfPresent(&m.ExtractedRole, r.ExtractedRole)
	setIfPresent(&m.ExtractedPartyName, r.ExtractedPartyName)
	setIfPresent(&m.AdditionalData, r.AdditionalData)
}

func applyParliamentaryGroupMember(m *model.ParliamentaryGroupMember, r *model.ParliamentaryGroupMemberExtractionResult) {
	m.ExtractedName = r.ExtractedName
	m.SourceURL = r.SourceURL
	setIfPresent(&m.ExtractedRole, r.ExtractedRole)
	setIfPresent(&m.ExtractedPartyName, r.ExtractedPartyName)
	setIfPresent(&m.ExtractedDistrict, r.ExtractedDistrict)
	setIfPresent(&m.AdditionalInfo, r.AdditionalInfo)
}

func setIfPresent[T any](dst **T, v *T) {
	if v != nil {
		val := *v
		*dst = &val
	}
}
