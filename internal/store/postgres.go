package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sagebase/sagebase/internal/db"
	"github.com/sagebase/sagebase/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS extraction_logs (
	id                  BIGSERIAL PRIMARY KEY,
	entity_type         TEXT NOT NULL,
	entity_id           BIGINT NOT NULL,
	pipeline_version    TEXT NOT NULL,
	extracted_data      JSONB NOT NULL DEFAULT '{}',
	confidence_score    DOUBLE PRECISION,
	extraction_metadata JSONB NOT NULL DEFAULT '{}',
	model_name          TEXT,
	token_count_input   INTEGER,
	token_count_output  INTEGER,
	processing_time_ms  INTEGER,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT check_extraction_logs_entity_type CHECK (entity_type IN
		('statement', 'politician', 'speaker', 'conference_member', 'parliamentary_group_member')),
	CONSTRAINT check_extraction_logs_confidence CHECK (confidence_score IS NULL OR
		(confidence_score >= 0 AND confidence_score <= 1))
);

CREATE INDEX IF NOT EXISTS idx_extraction_logs_entity ON extraction_logs(entity_type, entity_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_pipeline_version ON extraction_logs(pipeline_version);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_created_at ON extraction_logs(created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id                       BIGSERIAL PRIMARY KEY,
	comment                  TEXT NOT NULL,
	sequence_number          INTEGER NOT NULL,
	minutes_id               BIGINT,
	speaker_id               BIGINT,
	speaker_name             TEXT,
	chapter_number           INTEGER,
	sub_chapter_number       INTEGER,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT false,
	latest_extraction_log_id BIGINT REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS politicians (
	id                       BIGSERIAL PRIMARY KEY,
	name                     TEXT NOT NULL,
	political_party_id       BIGINT,
	furigana                 TEXT,
	district                 TEXT,
	profile_page_url         TEXT,
	party_position           TEXT,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT false,
	latest_extraction_log_id BIGINT REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS speakers (
	id                       BIGSERIAL PRIMARY KEY,
	name                     TEXT NOT NULL,
	type                     TEXT,
	political_party_name     TEXT,
	position                 TEXT,
	is_politician            BOOLEAN NOT NULL DEFAULT false,
	politician_id            BIGINT,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT false,
	latest_extraction_log_id BIGINT REFERENCES extraction_logs(id),
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conference_members (
	id                       BIGSERIAL PRIMARY KEY,
	conference_id            BIGINT NOT NULL,
	extracted_name           TEXT NOT NULL,
	source_url               TEXT NOT NULL,
	extracted_role           TEXT,
	extracted_party_name     TEXT,
	additional_data          TEXT,
	matched_politician_id    BIGINT,
	extracted_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_manually_verified     BOOLEAN NOT NULL DEFAULT false,
	latest_extraction_log_id BIGINT REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS parliamentary_group_members (
	id                       BIGSERIAL PRIMARY KEY,
	parliamentary_group_id   BIGINT NOT NULL,
	extracted_name           TEXT NOT NULL,
	source_url               TEXT NOT NULL,
	extracted_role           TEXT,
	extracted_party_name     TEXT,
	extracted_district       TEXT,
	additional_info          TEXT,
	matched_politician_id    BIGINT,
	extracted_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	is_manually_verified     BOOLEAN NOT NULL DEFAULT false,
	latest_extraction_log_id BIGINT REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS parliamentary_groups (
	id                 BIGSERIAL PRIMARY KEY,
	name               TEXT NOT NULL,
	governing_body_id  BIGINT NOT NULL,
	chamber            TEXT NOT NULL DEFAULT '',
	url                TEXT,
	description        TEXT,
	is_active          BOOLEAN NOT NULL DEFAULT true,
	political_party_id BIGINT,
	start_date         DATE,
	end_date           DATE,
	CONSTRAINT uq_parliamentary_groups_name_gb_chamber UNIQUE (name, governing_body_id, chamber)
);

CREATE INDEX IF NOT EXISTS idx_parliamentary_groups_governing_body ON parliamentary_groups(governing_body_id);
CREATE INDEX IF NOT EXISTS idx_parliamentary_groups_period ON parliamentary_groups(start_date, end_date);
CREATE INDEX IF NOT EXISTS idx_parliamentary_groups_party ON parliamentary_groups(political_party_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return storageErr("postgres: ping", s.pool.Ping(ctx))
}

func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// --- Extraction logs ---

var pgInsertLogSQL = fmt.Sprintf("INSERT INTO extraction_logs (%s) VALUES (%s) RETURNING id",
	strings.Join(logColumns, ", "), placeholders(len(logColumns), dollarPlaceholder))

func (s *PostgresStore) RecordExtraction(ctx context.Context, l *model.ExtractionLog) (int64, error) {
	if err := prepareLog(l, time.Now().UTC()); err != nil {
		return 0, err
	}
	data, err := jsonObject(l.ExtractedData)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: extracted_data")
	}
	meta, err := jsonObject(l.Metadata)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: extraction_metadata")
	}

	var id int64
	if err := s.pool.QueryRow(ctx, pgInsertLogSQL, logArgs(l, data, meta)...).Scan(&id); err != nil {
		return 0, storageErr("postgres: insert extraction log", err)
	}
	l.ID = id
	return id, nil
}

// ImportExtractionLogs bulk-loads historical logs with COPY. Ids are assigned
// by the database and not reported back.
func (s *PostgresStore) ImportExtractionLogs(ctx context.Context, logs []model.ExtractionLog) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(logs))
	for i := range logs {
		l := &logs[i]
		if err := prepareLog(l, now); err != nil {
			return 0, eris.Wrapf(err, "postgres: import log %d", i)
		}
		data, err := jsonObject(l.ExtractedData)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import log %d", i)
		}
		meta, err := jsonObject(l.Metadata)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: import log %d", i)
		}
		rows = append(rows, logArgs(l, data, meta))
	}
	n, err := db.CopyFrom(ctx, s.pool, "extraction_logs", logColumns, rows)
	if err != nil {
		return 0, storageErr("postgres: import extraction logs", err)
	}
	return n, nil
}

func (s *PostgresStore) GetExtractionLog(ctx context.Context, id int64) (*model.ExtractionLog, error) {
	l, err := scanExtractionLog(s.pool.QueryRow(ctx,
		`SELECT `+extractionLogColumns+` FROM extraction_logs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("extraction log", id)
	}
	if err != nil {
		return nil, storageErr("postgres: get extraction log", err)
	}
	return l, nil
}

func (s *PostgresStore) ListExtractionLogsByEntity(ctx context.Context, entityType model.EntityType, entityID int64, limit, offset int) ([]model.ExtractionLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+extractionLogColumns+` FROM extraction_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		string(entityType), entityID, clampLimit(limit), max(offset, 0),
	)
	if err != nil {
		return nil, storageErr("postgres: list extraction logs", err)
	}
	return s.collectLogs(rows)
}

func (s *PostgresStore) SearchExtractionLogs(ctx context.Context, f model.ExtractionLogFilter) (*model.ExtractionLogPage, error) {
	w := logFilterWhere(f, dollarPlaceholder)

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM extraction_logs`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, storageErr("postgres: count extraction logs", err)
	}

	limit, offset := clampLimit(f.Limit), max(f.Offset, 0)
	query := fmt.Sprintf(`SELECT %s FROM extraction_logs%s ORDER BY created_at DESC, id DESC LIMIT %s OFFSET %s`,
		extractionLogColumns, w.String(), w.next(1), w.next(2))
	rows, err := s.pool.Query(ctx, query, append(w.args, limit, offset)...)
	if err != nil {
		return nil, storageErr("postgres: search extraction logs", err)
	}
	logs, err := s.collectLogs(rows)
	if err != nil {
		return nil, err
	}
	return &model.ExtractionLogPage{Logs: logs, TotalCount: total, PageSize: limit, Offset: offset}, nil
}

func (s *PostgresStore) collectLogs(rows pgx.Rows) ([]model.ExtractionLog, error) {
	defer rows.Close()
	logs := []model.ExtractionLog{}
	for rows.Next() {
		l, err := scanExtractionLog(rows)
		if err != nil {
			return nil, storageErr("postgres: scan extraction log", err)
		}
		logs = append(logs, *l)
	}
	return logs, storageErr("postgres: iterate extraction logs", rows.Err())
}

func (s *PostgresStore) ExtractionStatistics(ctx context.Context, f model.ExtractionLogFilter) (*model.ExtractionStatistics, error) {
	w := logFilterWhere(f, dollarPlaceholder)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(statsGroupSQL, w.String()), w.args...)
	if err != nil {
		return nil, storageErr("postgres: extraction statistics", err)
	}
	var groups []statsRow
	for rows.Next() {
		var r statsRow
		if err := rows.Scan(&r.entityType, &r.pipeline, &r.count, &r.confSum, &r.confCount); err != nil {
			rows.Close()
			return nil, storageErr("postgres: scan statistics", err)
		}
		groups = append(groups, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres: iterate statistics", err)
	}

	dayRows, err := s.pool.Query(ctx,
		`SELECT (created_at AT TIME ZONE 'UTC')::date AS day, count(*) FROM extraction_logs`+w.String()+` GROUP BY day ORDER BY day`,
		w.args...)
	if err != nil {
		return nil, storageErr("postgres: daily extraction counts", err)
	}
	defer dayRows.Close()
	var daily []model.DailyCount
	for dayRows.Next() {
		var day nullDate
		var n int
		if err := dayRows.Scan(&day, &n); err != nil {
			return nil, storageErr("postgres: scan daily count", err)
		}
		if day.t != nil {
			daily = append(daily, model.DailyCount{Date: *day.t, Count: n})
		}
	}
	if err := dayRows.Err(); err != nil {
		return nil, storageErr("postgres: iterate daily counts", err)
	}
	return buildStatistics(groups, daily), nil
}

// --- Gold entities ---

func pgCreate[E any](ctx context.Context, pool db.Pool, t entityTable[E], e *E) error {
	var id int64
	if err := pool.QueryRow(ctx, t.insertSQL(dollarPlaceholder)+" RETURNING id", t.args(e)...).Scan(&id); err != nil {
		return storageErr("postgres: insert "+t.name, err)
	}
	t.setID(e, id)
	return nil
}

func pgGet[E any](ctx context.Context, pool db.Pool, t entityTable[E], id int64) (*E, error) {
	e, err := t.scan(pool.QueryRow(ctx, t.selectByIDSQL(dollarPlaceholder), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(t.entityType, id)
	}
	if err != nil {
		return nil, storageErr("postgres: get "+t.name, err)
	}
	return e, nil
}

func pgUpdate[E any](ctx context.Context, pool db.Pool, t entityTable[E], e *E, id int64) error {
	tag, err := pool.Exec(ctx, t.updateSQL(dollarPlaceholder), t.updateArgs(e, id)...)
	if err != nil {
		return storageErr("postgres: update "+t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(t.entityType, id)
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	return pgCreate(ctx, s.pool, conversationTable, c)
}

func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	return pgGet(ctx, s.pool, conversationTable, id)
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	return pgUpdate(ctx, s.pool, conversationTable, c, c.ID)
}

func (s *PostgresStore) CreatePolitician(ctx context.Context, p *model.Politician) error {
	return pgCreate(ctx, s.pool, politicianTable, p)
}

func (s *PostgresStore) GetPolitician(ctx context.Context, id int64) (*model.Politician, error) {
	return pgGet(ctx, s.pool, politicianTable, id)
}

func (s *PostgresStore) UpdatePolitician(ctx context.Context, p *model.Politician) error {
	return pgUpdate(ctx, s.pool, politicianTable, p, p.ID)
}

func (s *PostgresStore) CreateSpeaker(ctx context.Context, sp *model.Speaker) error {
	touchSpeaker(sp, time.Now().UTC())
	return pgCreate(ctx, s.pool, speakerTable, sp)
}

func (s *PostgresStore) GetSpeaker(ctx context.Context, id int64) (*model.Speaker, error) {
	return pgGet(ctx, s.pool, speakerTable, id)
}

func (s *PostgresStore) UpdateSpeaker(ctx context.Context, sp *model.Speaker) error {
	touchSpeaker(sp, time.Now().UTC())
	return pgUpdate(ctx, s.pool, speakerTable, sp, sp.ID)
}

func (s *PostgresStore) CreateConferenceMember(ctx context.Context, m *model.ConferenceMember) error {
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	return pgCreate(ctx, s.pool, conferenceMemberTable, m)
}

func (s *PostgresStore) GetConferenceMember(ctx context.Context, id int64) (*model.ConferenceMember, error) {
	return pgGet(ctx, s.pool, conferenceMemberTable, id)
}

func (s *PostgresStore) UpdateConferenceMember(ctx context.Context, m *model.ConferenceMember) error {
	return pgUpdate(ctx, s.pool, conferenceMemberTable, m, m.ID)
}

func (s *PostgresStore) CreateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error {
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	return pgCreate(ctx, s.pool, parliamentaryGroupMemberTable, m)
}

func (s *PostgresStore) GetParliamentaryGroupMember(ctx context.Context, id int64) (*model.ParliamentaryGroupMember, error) {
	return pgGet(ctx, s.pool, parliamentaryGroupMemberTable, id)
}

func (s *PostgresStore) UpdateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error {
	return pgUpdate(ctx, s.pool, parliamentaryGroupMemberTable, m, m.ID)
}

func (s *PostgresStore) SetVerified(ctx context.Context, entityType model.EntityType, id int64, verified bool) error {
	table, err := tableNameFor(entityType)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, verificationSQL(table, dollarPlaceholder), verified, id)
	if err != nil {
		return storageErr("postgres: set verified on "+table, err)
	}
	if tag.RowsAffected() == 0 {
		return notFound(entityType, id)
	}
	return nil
}

// --- Parliamentary groups ---

var (
	pgInsertGroupSQL = fmt.Sprintf("INSERT INTO parliamentary_groups (%s) VALUES (%s) RETURNING id",
		strings.Join(groupColumns, ", "), placeholders(len(groupColumns), dollarPlaceholder))
	pgUpdateGroupSQL = fmt.Sprintf("UPDATE parliamentary_groups SET %s WHERE id = $%d",
		assignments(groupColumns, dollarPlaceholder), len(groupColumns)+1)
)

func (s *PostgresStore) CreateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error {
	if err := prepareGroup(g); err != nil {
		return err
	}
	var id int64
	if err := s.pool.QueryRow(ctx, pgInsertGroupSQL, groupArgs(g, dateValue)...).Scan(&id); err != nil {
		return storageErr("postgres: insert parliamentary group", err)
	}
	g.ID = id
	return nil
}

func (s *PostgresStore) UpdateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error {
	if err := prepareGroup(g); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, pgUpdateGroupSQL, append(groupArgs(g, dateValue), g.ID)...)
	if err != nil {
		return storageErr("postgres: update parliamentary group", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("parliamentary group", g.ID)
	}
	return nil
}

func (s *PostgresStore) GetParliamentaryGroup(ctx context.Context, id int64) (*model.ParliamentaryGroup, error) {
	g, err := scanParliamentaryGroup(s.pool.QueryRow(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("parliamentary group", id)
	}
	if err != nil {
		return nil, storageErr("postgres: get parliamentary group", err)
	}
	return g, nil
}

func (s *PostgresStore) GetParliamentaryGroupByName(ctx context.Context, name string, governingBodyID int64, chamber string) (*model.ParliamentaryGroup, error) {
	name = model.NormalizeGroupName(name)
	g, err := scanParliamentaryGroup(s.pool.QueryRow(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups
		WHERE name = $1 AND governing_body_id = $2 AND chamber = $3`, name, governingBodyID, chamber))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("parliamentary group", name)
	}
	if err != nil {
		return nil, storageErr("postgres: get parliamentary group by name", err)
	}
	return g, nil
}

func (s *PostgresStore) ListParliamentaryGroups(ctx context.Context, q GroupQuery) ([]model.ParliamentaryGroup, error) {
	w := groupQueryWhere(q, dollarPlaceholder, func(t time.Time) any { return t })
	rows, err := s.pool.Query(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups`+w.String()+` ORDER BY name, id`,
		w.args...)
	if err != nil {
		return nil, storageErr("postgres: list parliamentary groups", err)
	}
	defer rows.Close()

	groups := []model.ParliamentaryGroup{}
	for rows.Next() {
		g, err := scanParliamentaryGroup(rows)
		if err != nil {
			return nil, storageErr("postgres: scan parliamentary group", err)
		}
		groups = append(groups, *g)
	}
	return groups, storageErr("postgres: iterate parliamentary groups", rows.Err())
}

// UpsertParliamentaryGroups loads groups through a temp table and
// INSERT ... ON CONFLICT on (name, governing_body_id, chamber).
func (s *PostgresStore) UpsertParliamentaryGroups(ctx context.Context, groups []model.ParliamentaryGroup) (int64, error) {
	rows := make([][]any, 0, len(groups))
	for i := range groups {
		if err := prepareGroup(&groups[i]); err != nil {
			return 0, eris.Wrapf(err, "postgres: upsert group %q", groups[i].Name)
		}
		rows = append(rows, groupArgs(&groups[i], dateValue))
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "parliamentary_groups",
		Columns:      groupColumns,
		ConflictKeys: []string{"name", "governing_body_id", "chamber"},
	}, rows)
	if err != nil {
		return 0, storageErr("postgres: upsert parliamentary groups", err)
	}
	return n, nil
}
