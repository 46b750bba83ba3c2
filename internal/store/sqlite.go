package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sagebase/sagebase/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection: pragmas are per-connection and SQLite has a single writer.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS extraction_logs (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type         TEXT NOT NULL CHECK (entity_type IN
		('statement', 'politician', 'speaker', 'conference_member', 'parliamentary_group_member')),
	entity_id           INTEGER NOT NULL,
	pipeline_version    TEXT NOT NULL,
	extracted_data      TEXT NOT NULL DEFAULT '{}',
	confidence_score    REAL CHECK (confidence_score IS NULL OR (confidence_score >= 0 AND confidence_score <= 1)),
	extraction_metadata TEXT NOT NULL DEFAULT '{}',
	model_name          TEXT,
	token_count_input   INTEGER,
	token_count_output  INTEGER,
	processing_time_ms  INTEGER,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_extraction_logs_entity ON extraction_logs(entity_type, entity_id, created_at);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_pipeline_version ON extraction_logs(pipeline_version);
CREATE INDEX IF NOT EXISTS idx_extraction_logs_created_at ON extraction_logs(created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	comment                  TEXT NOT NULL,
	sequence_number          INTEGER NOT NULL,
	minutes_id               INTEGER,
	speaker_id               INTEGER,
	speaker_name             TEXT,
	chapter_number           INTEGER,
	sub_chapter_number       INTEGER,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT 0,
	latest_extraction_log_id INTEGER REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS politicians (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	name                     TEXT NOT NULL,
	political_party_id       INTEGER,
	furigana                 TEXT,
	district                 TEXT,
	profile_page_url         TEXT,
	party_position           TEXT,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT 0,
	latest_extraction_log_id INTEGER REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS speakers (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	name                     TEXT NOT NULL,
	type                     TEXT,
	political_party_name     TEXT,
	position                 TEXT,
	is_politician            BOOLEAN NOT NULL DEFAULT 0,
	politician_id            INTEGER,
	is_manually_verified     BOOLEAN NOT NULL DEFAULT 0,
	latest_extraction_log_id INTEGER REFERENCES extraction_logs(id),
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS conference_members (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	conference_id            INTEGER NOT NULL,
	extracted_name           TEXT NOT NULL,
	source_url               TEXT NOT NULL,
	extracted_role           TEXT,
	extracted_party_name     TEXT,
	additional_data          TEXT,
	matched_politician_id    INTEGER,
	extracted_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	is_manually_verified     BOOLEAN NOT NULL DEFAULT 0,
	latest_extraction_log_id INTEGER REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS parliamentary_group_members (
	id                       INTEGER PRIMARY KEY AUTOINCREMENT,
	parliamentary_group_id   INTEGER NOT NULL,
	extracted_name           TEXT NOT NULL,
	source_url               TEXT NOT NULL,
	extracted_role           TEXT,
	extracted_party_name     TEXT,
	extracted_district       TEXT,
	additional_info          TEXT,
	matched_politician_id    INTEGER,
	extracted_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	is_manually_verified     BOOLEAN NOT NULL DEFAULT 0,
	latest_extraction_log_id INTEGER REFERENCES extraction_logs(id)
);

CREATE TABLE IF NOT EXISTS parliamentary_groups (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	governing_body_id  INTEGER NOT NULL,
	chamber            TEXT NOT NULL DEFAULT '',
	url                TEXT,
	description        TEXT,
	is_active          BOOLEAN NOT NULL DEFAULT 1,
	political_party_id INTEGER,
	start_date         TEXT,
	end_date           TEXT,
	UNIQUE (name, governing_body_id, chamber)
);

CREATE INDEX IF NOT EXISTS idx_parliamentary_groups_governing_body ON parliamentary_groups(governing_body_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return storageErr("sqlite: ping", s.db.PingContext(ctx))
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Extraction logs ---

var sqliteInsertLogSQL = fmt.Sprintf("INSERT INTO extraction_logs (%s) VALUES (%s)",
	strings.Join(logColumns, ", "), placeholders(len(logColumns), questionPlaceholder))

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertLog(ctx context.Context, ex execer, l *model.ExtractionLog, now time.Time) (int64, error) {
	if err := prepareLog(l, now); err != nil {
		return 0, err
	}
	data, err := jsonObject(l.ExtractedData)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: extracted_data")
	}
	meta, err := jsonObject(l.Metadata)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: extraction_metadata")
	}
	res, err := ex.ExecContext(ctx, sqliteInsertLogSQL, logArgs(l, string(data), string(meta))...)
	if err != nil {
		return 0, storageErr("sqlite: insert extraction log", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("sqlite: extraction log id", err)
	}
	l.ID = id
	return id, nil
}

func (s *SQLiteStore) RecordExtraction(ctx context.Context, l *model.ExtractionLog) (int64, error) {
	return insertLog(ctx, s.db, l, time.Now().UTC())
}

// ImportExtractionLogs inserts all logs in one transaction.
func (s *SQLiteStore) ImportExtractionLogs(ctx context.Context, logs []model.ExtractionLog) (int64, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("sqlite: begin import", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for i := range logs {
		if _, err := insertLog(ctx, tx, &logs[i], now); err != nil {
			return 0, eris.Wrapf(err, "sqlite: import log %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("sqlite: commit import", err)
	}
	return int64(len(logs)), nil
}

func (s *SQLiteStore) GetExtractionLog(ctx context.Context, id int64) (*model.ExtractionLog, error) {
	l, err := scanExtractionLog(s.db.QueryRowContext(ctx,
		`SELECT `+extractionLogColumns+` FROM extraction_logs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("extraction log", id)
	}
	if err != nil {
		return nil, storageErr("sqlite: get extraction log", err)
	}
	return l, nil
}

func (s *SQLiteStore) ListExtractionLogsByEntity(ctx context.Context, entityType model.EntityType, entityID int64, limit, offset int) ([]model.ExtractionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+extractionLogColumns+` FROM extraction_logs
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		string(entityType), entityID, clampLimit(limit), max(offset, 0),
	)
	if err != nil {
		return nil, storageErr("sqlite: list extraction logs", err)
	}
	return collectSQLiteLogs(rows)
}

func (s *SQLiteStore) SearchExtractionLogs(ctx context.Context, f model.ExtractionLogFilter) (*model.ExtractionLogPage, error) {
	w := logFilterWhere(f, questionPlaceholder)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM extraction_logs`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, storageErr("sqlite: count extraction logs", err)
	}

	limit, offset := clampLimit(f.Limit), max(f.Offset, 0)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+extractionLogColumns+` FROM extraction_logs`+w.String()+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, storageErr("sqlite: search extraction logs", err)
	}
	logs, err := collectSQLiteLogs(rows)
	if err != nil {
		return nil, err
	}
	return &model.ExtractionLogPage{Logs: logs, TotalCount: total, PageSize: limit, Offset: offset}, nil
}

func collectSQLiteLogs(rows *sql.Rows) ([]model.ExtractionLog, error) {
	defer rows.Close() //nolint:errcheck
	logs := []model.ExtractionLog{}
	for rows.Next() {
		l, err := scanExtractionLog(rows)
		if err != nil {
			return nil, storageErr("sqlite: scan extraction log", err)
		}
		logs = append(logs, *l)
	}
	return logs, storageErr("sqlite: iterate extraction logs", rows.Err())
}

func (s *SQLiteStore) ExtractionStatistics(ctx context.Context, f model.ExtractionLogFilter) (*model.ExtractionStatistics, error) {
	w := logFilterWhere(f, questionPlaceholder)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(statsGroupSQL, w.String()), w.args...)
	if err != nil {
		return nil, storageErr("sqlite: extraction statistics", err)
	}
	var groups []statsRow
	for rows.Next() {
		var r statsRow
		if err := rows.Scan(&r.entityType, &r.pipeline, &r.count, &r.confSum, &r.confCount); err != nil {
			rows.Close() //nolint:errcheck
			return nil, storageErr("sqlite: scan statistics", err)
		}
		groups = append(groups, r)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return nil, storageErr("sqlite: iterate statistics", err)
	}

	// Timestamps are stored as "YYYY-MM-DD hh:mm:ss..." text in UTC.
	dayRows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, count(*) FROM extraction_logs`+w.String()+` GROUP BY day ORDER BY day`,
		w.args...)
	if err != nil {
		return nil, storageErr("sqlite: daily extraction counts", err)
	}
	defer dayRows.Close() //nolint:errcheck
	var daily []model.DailyCount
	for dayRows.Next() {
		var day nullDate
		var n int
		if err := dayRows.Scan(&day, &n); err != nil {
			return nil, storageErr("sqlite: scan daily count", err)
		}
		if day.t != nil {
			daily = append(daily, model.DailyCount{Date: *day.t, Count: n})
		}
	}
	if err := dayRows.Err(); err != nil {
		return nil, storageErr("sqlite: iterate daily counts", err)
	}
	return buildStatistics(groups, daily), nil
}

// --- Gold entities ---

func sqliteCreate[E any](ctx context.Context, db *sql.DB, t entityTable[E], e *E) error {
	res, err := db.ExecContext(ctx, t.insertSQL(questionPlaceholder), t.args(e)...)
	if err != nil {
		return storageErr("sqlite: insert "+t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("sqlite: "+t.name+" id", err)
	}
	t.setID(e, id)
	return nil
}

func sqliteGet[E any](ctx context.Context, db *sql.DB, t entityTable[E], id int64) (*E, error) {
	e, err := t.scan(db.QueryRowContext(ctx, t.selectByIDSQL(questionPlaceholder), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(t.entityType, id)
	}
	if err != nil {
		return nil, storageErr("sqlite: get "+t.name, err)
	}
	return e, nil
}

func sqliteUpdate[E any](ctx context.Context, db *sql.DB, t entityTable[E], e *E, id int64) error {
	res, err := db.ExecContext(ctx, t.updateSQL(questionPlaceholder), t.updateArgs(e, id)...)
	if err != nil {
		return storageErr("sqlite: update "+t.name, err)
	}
	return checkRowsAffected(res, t.entityType, id)
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, c *model.Conversation) error {
	return sqliteCreate(ctx, s.db, conversationTable, c)
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*model.Conversation, error) {
	return sqliteGet(ctx, s.db, conversationTable, id)
}

func (s *SQLiteStore) UpdateConversation(ctx context.Context, c *model.Conversation) error {
	return sqliteUpdate(ctx, s.db, conversationTable, c, c.ID)
}

func (s *SQLiteStore) CreatePolitician(ctx context.Context, p *model.Politician) error {
	return sqliteCreate(ctx, s.db, politicianTable, p)
}

func (s *SQLiteStore) GetPolitician(ctx context.Context, id int64) (*model.Politician, error) {
	return sqliteGet(ctx, s.db, politicianTable, id)
}

func (s *SQLiteStore) UpdatePolitician(ctx context.Context, p *model.Politician) error {
	return sqliteUpdate(ctx, s.db, politicianTable, p, p.ID)
}

func (s *SQLiteStore) CreateSpeaker(ctx context.Context, sp *model.Speaker) error {
	touchSpeaker(sp, time.Now().UTC())
	return sqliteCreate(ctx, s.db, speakerTable, sp)
}

func (s *SQLiteStore) GetSpeaker(ctx context.Context, id int64) (*model.Speaker, error) {
	return sqliteGet(ctx, s.db, speakerTable, id)
}

func (s *SQLiteStore) UpdateSpeaker(ctx context.Context, sp *model.Speaker) error {
	touchSpeaker(sp, time.Now().UTC())
	return sqliteUpdate(ctx, s.db, speakerTable, sp, sp.ID)
}

func (s *SQLiteStore) CreateConferenceMember(ctx context.Context, m *model.ConferenceMember) error {
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	return sqliteCreate(ctx, s.db, conferenceMemberTable, m)
}

func (s *SQLiteStore) GetConferenceMember(ctx context.Context, id int64) (*model.ConferenceMember, error) {
	return sqliteGet(ctx, s.db, conferenceMemberTable, id)
}

func (s *SQLiteStore) UpdateConferenceMember(ctx context.Context, m *model.ConferenceMember) error {
	return sqliteUpdate(ctx, s.db, conferenceMemberTable, m, m.ID)
}

func (s *SQLiteStore) CreateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error {
	if m.ExtractedAt.IsZero() {
		m.ExtractedAt = time.Now().UTC()
	}
	return sqliteCreate(ctx, s.db, parliamentaryGroupMemberTable, m)
}

func (s *SQLiteStore) GetParliamentaryGroupMember(ctx context.Context, id int64) (*model.ParliamentaryGroupMember, error) {
	return sqliteGet(ctx, s.db, parliamentaryGroupMemberTable, id)
}

func (s *SQLiteStore) UpdateParliamentaryGroupMember(ctx context.Context, m *model.ParliamentaryGroupMember) error {
	return sqliteUpdate(ctx, s.db, parliamentaryGroupMemberTable, m, m.ID)
}

func (s *SQLiteStore) SetVerified(ctx context.Context, entityType model.EntityType, id int64, verified bool) error {
	table, err := tableNameFor(entityType)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, verificationSQL(table, questionPlaceholder), verified, id)
	if err != nil {
		return storageErr("sqlite: set verified on "+table, err)
	}
	return checkRowsAffected(res, entityType, id)
}

// --- Parliamentary groups ---

var (
	sqliteInsertGroupSQL = fmt.Sprintf("INSERT INTO parliamentary_groups (%s) VALUES (%s)",
		strings.Join(groupColumns, ", "), placeholders(len(groupColumns), questionPlaceholder))
	sqliteUpdateGroupSQL = fmt.Sprintf("UPDATE parliamentary_groups SET %s WHERE id = ?",
		assignments(groupColumns, questionPlaceholder))
	sqliteUpsertGroupSQL = sqliteInsertGroupSQL + `
		ON CONFLICT (name, governing_body_id, chamber) DO UPDATE SET
			url = excluded.url,
			description = excluded.description,
			is_active = excluded.is_active,
			political_party_id = excluded.political_party_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date`
)

func (s *SQLiteStore) CreateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error {
	if err := prepareGroup(g); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, sqliteInsertGroupSQL, groupArgs(g, dateText)...)
	if err != nil {
		return storageErr("sqlite: insert parliamentary group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storageErr("sqlite: parliamentary group id", err)
	}
	g.ID = id
	return nil
}

func (s *SQLiteStore) UpdateParliamentaryGroup(ctx context.Context, g *model.ParliamentaryGroup) error {
	if err := prepareGroup(g); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, sqliteUpdateGroupSQL, append(groupArgs(g, dateText), g.ID)...)
	if err != nil {
		return storageErr("sqlite: update parliamentary group", err)
	}
	return checkRowsAffected(res, "parliamentary group", g.ID)
}

func (s *SQLiteStore) GetParliamentaryGroup(ctx context.Context, id int64) (*model.ParliamentaryGroup, error) {
	g, err := scanParliamentaryGroup(s.db.QueryRowContext(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("parliamentary group", id)
	}
	if err != nil {
		return nil, storageErr("sqlite: get parliamentary group", err)
	}
	return g, nil
}

func (s *SQLiteStore) GetParliamentaryGroupByName(ctx context.Context, name string, governingBodyID int64, chamber string) (*model.ParliamentaryGroup, error) {
	name = model.NormalizeGroupName(name)
	g, err := scanParliamentaryGroup(s.db.QueryRowContext(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups
		WHERE name = ? AND governing_body_id = ? AND chamber = ?`, name, governingBodyID, chamber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("parliamentary group", name)
	}
	if err != nil {
		return nil, storageErr("sqlite: get parliamentary group by name", err)
	}
	return g, nil
}

func (s *SQLiteStore) ListParliamentaryGroups(ctx context.Context, q GroupQuery) ([]model.ParliamentaryGroup, error) {
	w := groupQueryWhere(q, questionPlaceholder, func(t time.Time) any { return t.Format(model.DateLayout) })
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+parliamentaryGroupColumns+` FROM parliamentary_groups`+w.String()+` ORDER BY name, id`,
		w.args...)
	if err != nil {
		return nil, storageErr("sqlite: list parliamentary groups", err)
	}
	defer rows.Close() //nolint:errcheck

	groups := []model.ParliamentaryGroup{}
	for rows.Next() {
		g, err := scanParliamentaryGroup(rows)
		if err != nil {
			return nil, storageErr("sqlite: scan parliamentary group", err)
		}
		groups = append(groups, *g)
	}
	return groups, storageErr("sqlite: iterate parliamentary groups", rows.Err())
}

func (s *SQLiteStore) UpsertParliamentaryGroups(ctx context.Context, groups []model.ParliamentaryGroup) (int64, error) {
	if len(groups) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageErr("sqlite: begin upsert", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var n int64
	for i := range groups {
		g := &groups[i]
		if err := prepareGroup(g); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert group %q", g.Name)
		}
		res, err := tx.ExecContext(ctx, sqliteUpsertGroupSQL, groupArgs(g, dateText)...)
		if err != nil {
			return 0, storageErr("sqlite: upsert parliamentary group", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, storageErr("sqlite: rows affected", err)
		}
		n += affected
	}
	if err := tx.Commit(); err != nil {
		return 0, storageErr("sqlite: commit upsert", err)
	}
	return n, nil
}

func checkRowsAffected(res sql.Result, entity, id any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("sqlite: rows affected", err)
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
