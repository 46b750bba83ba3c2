package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/model"
)

// scannable is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// entityTable describes how one Gold entity maps onto its table. Both
// backends build their SQL from it so the column order lives in one place.
type entityTable[E any] struct {
	name       string
	entityType model.EntityType
	columns    []string // every column except id, in args order
	args       func(e *E) []any
	scan       func(row scannable) (*E, error)
	setID      func(e *E, id int64)
}

// selectColumns returns "id, col1, col2, ...".
func (t entityTable[E]) selectColumns() string {
	return "id, " + strings.Join(t.columns, ", ")
}

// placeholderFunc renders the n-th (1-based) bind parameter.
type placeholderFunc func(n int) string

func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func questionPlaceholder(int) string { return "?" }

func (t entityTable[E]) selectByIDSQL(ph placeholderFunc) string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", t.selectColumns(), t.name, ph(1))
}

func (t entityTable[E]) insertSQL(ph placeholderFunc) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), placeholders(len(t.columns), ph))
}

// verifiedColumn is written on insert and by SetVerified only. Leaving it out
// of full-row updates keeps a concurrent extraction from clearing a
// verification made after the entity was read.
const verifiedColumn = "is_manually_verified"

// updateColumns lists the columns a full-row update writes.
func (t entityTable[E]) updateColumns() []string {
	cols := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		if c != verifiedColumn {
			cols = append(cols, c)
		}
	}
	return cols
}

// updateArgs renders e in updateColumns order followed by id.
func (t entityTable[E]) updateArgs(e *E, id int64) []any {
	all := t.args(e)
	args := make([]any, 0, len(all)+1)
	for i, c := range t.columns {
		if c != verifiedColumn {
			args = append(args, all[i])
		}
	}
	return append(args, id)
}

// updateSQL sets every column but the verification flag; the id is the last
// bind parameter.
func (t entityTable[E]) updateSQL(ph placeholderFunc) string {
	cols := t.updateColumns()
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = %s", t.name, assignments(cols, ph), ph(len(cols)+1))
}

// placeholders renders n comma-separated bind parameters.
func placeholders(n int, ph placeholderFunc) string {
	marks := make([]string, n)
	for i := range marks {
		marks[i] = ph(i + 1)
	}
	return strings.Join(marks, ", ")
}

// assignments renders "col1 = $1, col2 = $2, ...".
func assignments(columns []string, ph placeholderFunc) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = " + ph(i+1)
	}
	return strings.Join(sets, ", ")
}

// verificationSQL flips only the verification flag of one row.
func verificationSQL(table string, ph placeholderFunc) string {
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE id = %s", table, verifiedColumn, ph(1), ph(2))
}

var conversationTable = entityTable[model.Conversation]{
	name:       "conversations",
	entityType: model.EntityTypeStatement,
	columns: []string{
		"comment", "sequence_number", "minutes_id", "speaker_id", "speaker_name",
		"chapter_number", "sub_chapter_number", "is_manually_verified", "latest_extraction_log_id",
	},
	args: func(c *model.Conversation) []any {
		return []any{
			c.Comment, c.SequenceNumber, c.MinutesID, c.SpeakerID, c.SpeakerName,
			c.ChapterNumber, c.SubChapterNumber, c.IsManuallyVerified, c.LatestExtractionLogID,
		}
	},
	scan: func(row scannable) (*model.Conversation, error) {
		var c model.Conversation
		err := row.Scan(&c.ID, &c.Comment, &c.SequenceNumber, &c.MinutesID, &c.SpeakerID, &c.SpeakerName,
			&c.ChapterNumber, &c.SubChapterNumber, &c.IsManuallyVerified, &c.LatestExtractionLogID)
		return &c, err
	},
	setID: func(c *model.Conversation, id int64) { c.ID = id },
}

var politicianTable = entityTable[model.Politician]{
	name:       "politicians",
	entityType: model.EntityTypePolitician,
	columns: []string{
		"name", "political_party_id", "furigana", "district", "profile_page_url",
		"party_position", "is_manually_verified", "latest_extraction_log_id",
	},
	args: func(p *model.Politician) []any {
		return []any{
			p.Name, p.PoliticalPartyID, p.Furigana, p.District, p.ProfilePageURL,
			p.PartyPosition, p.IsManuallyVerified, p.LatestExtractionLogID,
		}
	},
	scan: func(row scannable) (*model.Politician, error) {
		var p model.Politician
		err := row.Scan(&p.ID, &p.Name, &p.PoliticalPartyID, &p.Furigana, &p.District, &p.ProfilePageURL,
			&p.PartyPosition, &p.IsManuallyVerified, &p.LatestExtractionLogID)
		return &p, err
	},
	setID: func(p *model.Politician, id int64) { p.ID = id },
}

var speakerTable = entityTable[model.Speaker]{
	name:       "speakers",
	entityType: model.EntityTypeSpeaker,
	columns: []string{
		"name", "type", "political_party_name", "position", "is_politician", "politician_id",
		"is_manually_verified", "latest_extraction_log_id", "created_at", "updated_at",
	},
	args: func(s *model.Speaker) []any {
		return []any{
			s.Name, s.Type, s.PoliticalPartyName, s.Position, s.IsPolitician, s.PoliticianID,
			s.IsManuallyVerified, s.LatestExtractionLogID, s.CreatedAt, s.UpdatedAt,
		}
	},
	scan: func(row scannable) (*model.Speaker, error) {
		var s model.Speaker
		err := row.Scan(&s.ID, &s.Name, &s.Type, &s.PoliticalPartyName, &s.Position, &s.IsPolitician, &s.PoliticianID,
			&s.IsManuallyVerified, &s.LatestExtractionLogID, &s.CreatedAt, &s.UpdatedAt)
		return &s, err
	},
	setID: func(s *model.Speaker, id int64) { s.ID = id },
}

var conferenceMemberTable = entityTable[model.ConferenceMember]{
	name:       "conference_members",
	entityType: model.EntityTypeConferenceMember,
	columns: []string{
		"conference_id", "extracted_name", "source_url", "extracted_role", "extracted_party_name",
		"additional_data", "matched_politician_id", "extracted_at", "is_manually_verified", "latest_extraction_log_id",
	},
	args: func(m *model.ConferenceMember) []any {
		return []any{
			m.ConferenceID, m.ExtractedName, m.SourceURL, m.ExtractedRole, m.ExtractedPartyName,
			m.AdditionalData, m.MatchedPoliticianID, m.ExtractedAt, m.IsManuallyVerified, m.LatestExtractionLogID,
		}
	},
	scan: func(row scannable) (*model.ConferenceMember, error) {
		var m model.ConferenceMember
		err := row.Scan(&m.ID, &m.ConferenceID, &m.ExtractedName, &m.SourceURL, &m.ExtractedRole, &m.ExtractedPartyName,
			&m.AdditionalData, &m.MatchedPoliticianID, &m.ExtractedAt, &m.IsManuallyVerified, &m.LatestExtractionLogID)
		return &m, err
	},
	setID: func(m *model.ConferenceMember, id int64) { m.ID = id },
}

var parliamentaryGroupMemberTable = entityTable[model.ParliamentaryGroupMember]{
	name:       "parliamentary_group_members",
	entityType: model.EntityTypeParliamentaryGroupMember,
	columns: []string{
		"parliamentary_group_id", "extracted_name", "source_url", "extracted_role", "extracted_party_name",
		"extracted_district", "additional_info", "matched_politician_id", "extracted_at",
		"is_manually_verified", "latest_extraction_log_id",
	},
	args: func(m *model.ParliamentaryGroupMember) []any {
		return []any{
			m.ParliamentaryGroupID, m.ExtractedName, m.SourceURL, m.ExtractedRole, m.ExtractedPartyName,
			m.ExtractedDistrict, m.AdditionalInfo, m.MatchedPoliticianID, m.ExtractedAt,
			m.IsManuallyVerified, m.LatestExtractionLogID,
		}
	},
	scan: func(row scannable) (*model.ParliamentaryGroupMember, error) {
		var m model.ParliamentaryGroupMember
		err := row.Scan(&m.ID, &m.ParliamentaryGroupID, &m.ExtractedName, &m.SourceURL, &m.ExtractedRole, &m.ExtractedPartyName,
			&m.ExtractedDistrict, &m.AdditionalInfo, &m.MatchedPoliticianID, &m.ExtractedAt,
			&m.IsManuallyVerified, &m.LatestExtractionLogID)
		return &m, err
	},
	setID: func(m *model.ParliamentaryGroupMember, id int64) { m.ID = id },
}

// tableNameFor maps an entity type to its Gold table, for operations such as
// SetVerified that do not need the full row.
func tableNameFor(t model.EntityType) (string, error) {
	switch t {
	case model.EntityTypeStatement:
		return conversationTable.name, nil
	case model.EntityTypePolitician:
		return politicianTable.name, nil
	case model.EntityTypeSpeaker:
		return speakerTable.name, nil
	case model.EntityTypeConferenceMember:
		return conferenceMemberTable.name, nil
	case model.EntityTypeParliamentaryGroupMember:
		return parliamentaryGroupMemberTable.name, nil
	default:
		return "", eris.Errorf("store: unknown entity type %q", t)
	}
}

const extractionLogColumns = `id, entity_type, entity_id, pipeline_version, extracted_data, confidence_score,
	extraction_metadata, model_name, token_count_input, token_count_output, processing_time_ms, created_at, updated_at`

func scanExtractionLog(row scannable) (*model.ExtractionLog, error) {
	var l model.ExtractionLog
	var entityType string
	var data, meta []byte
	if err := row.Scan(&l.ID, &entityType, &l.EntityID, &l.PipelineVersion, &data, &l.ConfidenceScore,
		&meta, &l.ModelName, &l.TokenCountInput, &l.TokenCountOutput, &l.ProcessingTimeMS, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.EntityType = model.EntityType(entityType)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.ExtractedData); err != nil {
			return nil, eris.Wrap(err, "unmarshal extracted_data")
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &l.Metadata); err != nil {
			return nil, eris.Wrap(err, "unmarshal extraction_metadata")
		}
	}
	return &l, nil
}

const parliamentaryGroupColumns = `id, name, governing_body_id, chamber, url, description, is_active,
	political_party_id, start_date, end_date`

// groupColumns lists parliamentary_groups columns except id, in groupArgs order.
var groupColumns = []string{
	"name", "governing_body_id", "chamber", "url", "description", "is_active",
	"political_party_id", "start_date", "end_date",
}

// groupArgs renders g in groupColumns order; date encodes the optional bounds
// for the backend at hand.
func groupArgs(g *model.ParliamentaryGroup, date func(*time.Time) any) []any {
	return []any{
		g.Name, g.GoverningBodyID, g.Chamber, g.URL, g.Description, g.IsActive,
		g.PoliticalPartyID, date(g.StartDate), date(g.EndDate),
	}
}

// logColumns lists extraction_logs columns except id, in logArgs order.
var logColumns = []string{
	"entity_type", "entity_id", "pipeline_version", "extracted_data", "confidence_score",
	"extraction_metadata", "model_name", "token_count_input", "token_count_output",
	"processing_time_ms", "created_at", "updated_at",
}

func logArgs(l *model.ExtractionLog, data, meta any) []any {
	return []any{
		string(l.EntityType), l.EntityID, l.PipelineVersion, data, l.ConfidenceScore,
		meta, l.ModelName, l.TokenCountInput, l.TokenCountOutput,
		l.ProcessingTimeMS, l.CreatedAt, l.UpdatedAt,
	}
}

func scanParliamentaryGroup(row scannable) (*model.ParliamentaryGroup, error) {
	var g model.ParliamentaryGroup
	var start, end nullDate
	if err := row.Scan(&g.ID, &g.Name, &g.GoverningBodyID, &g.Chamber, &g.URL, &g.Description, &g.IsActive,
		&g.PoliticalPartyID, &start, &end); err != nil {
		return nil, err
	}
	g.StartDate = start.t
	g.EndDate = end.t
	return &g, nil
}

// nullDate scans a nullable DATE from either backend: pgx hands over
// time.Time, SQLite stores dates as YYYY-MM-DD text.
type nullDate struct {
	t *time.Time
}

func (d *nullDate) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.t = nil
		return nil
	case time.Time:
		t := model.TruncateDate(v)
		d.t = &t
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return eris.Errorf("store: cannot scan %T into date", src)
	}
}

func (d *nullDate) parse(s string) error {
	if len(s) > len(model.DateLayout) {
		s = s[:len(model.DateLayout)]
	}
	t, err := model.ParseDate(s)
	if err != nil {
		return err
	}
	d.t = &t
	return nil
}

// dateText renders an optional date for SQLite's text storage.
func dateText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(model.DateLayout)
}

// dateValue passes an optional date through for pgx.
func dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	d := model.TruncateDate(*t)
	return d
}
