package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Intended for local
// runs where a shared warehouse is not available.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS analysis_types (
	type_id       TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	system_prompt TEXT NOT NULL,
	is_active     INTEGER NOT NULL DEFAULT 1,
	version       INTEGER NOT NULL DEFAULT 1,
	metadata      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analyses (
	analysis_id    TEXT PRIMARY KEY,
	deal_id        TEXT NOT NULL,
	deal_name      TEXT NOT NULL DEFAULT '',
	analysis_type  TEXT NOT NULL,
	user_input     TEXT,
	system_prompt  TEXT,
	full_response  TEXT NOT NULL,
	prompt_version INTEGER NOT NULL DEFAULT 1,
	metadata       TEXT,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_analyses_deal_id ON analyses(deal_id);
CREATE INDEX IF NOT EXISTS idx_analyses_type ON analyses(analysis_type);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);

CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	analysis_id     TEXT NOT NULL,
	section_id      TEXT NOT NULL,
	section_title   TEXT,
	feedback        TEXT NOT NULL,
	feedback_reason TEXT,
	user_correction TEXT,
	prompt_version  INTEGER NOT NULL DEFAULT 1,
	metadata        TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (analysis_id, section_id)
);

CREATE INDEX IF NOT EXISTS idx_feedback_analysis_id ON feedback(analysis_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ListAnalysisTypes(ctx context.Context) ([]model.AnalysisType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type_id, name, description, system_prompt, is_active, version, metadata
		 FROM analysis_types WHERE is_active = 1 ORDER BY type_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list analysis types")
	}
	defer rows.Close()

	var types []model.AnalysisType
	for rows.Next() {
		t, err := scanSQLiteAnalysisType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, eris.Wrap(rows.Err(), "sqlite: list analysis types iterate")
}

func (s *SQLiteStore) GetAnalysisType(ctx context.Context, typeID string) (*model.AnalysisType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT type_id, name, description, system_prompt, is_active, version, metadata
		 FROM analysis_types WHERE type_id = ? AND is_active = 1`,
		typeID,
	)
	t, err := scanSQLiteAnalysisType(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get analysis type %s", typeID)
	}
	return t, nil
}

func (s *SQLiteStore) UpsertAnalysisType(ctx context.Context, t model.AnalysisType) error {
	metaJSON, err := marshalMetadata(t.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal type metadata")
	}

	version := t.Version
	if version <= 0 {
		version = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analysis_types (type_id, name, description, system_prompt, is_active, version, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (type_id) DO UPDATE SET
		   name = excluded.name,
		   description = excluded.description,
		   system_prompt = excluded.system_prompt,
		   is_active = excluded.is_active,
		   metadata = excluded.metadata,
		   version = analysis_types.version + 1,
		   updated_at = datetime('now')`,
		t.TypeID, t.Name, t.Description, t.SystemPrompt, boolToInt(t.IsActive), version, nullableBytes(metaJSON),
	)
	return eris.Wrapf(err, "sqlite: upsert analysis type %s", t.TypeID)
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	metaJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis metadata")
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.PromptVersion <= 0 {
		a.PromptVersion = 1
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses
		 (analysis_id, deal_id, deal_name, analysis_type, user_input, system_prompt, full_response, prompt_version, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AnalysisID, a.DealID, a.DealName, a.AnalysisType,
		a.UserInput, a.SystemPrompt, a.FullResponse, a.PromptVersion, nullableBytes(metaJSON), a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert analysis %s", a.AnalysisID)
}

func (s *SQLiteStore) SaveFeedback(ctx context.Context, fb *model.Feedback) (bool, error) {
	metaJSON, err := marshalMetadata(fb.Metadata)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: marshal feedback metadata")
	}

	if fb.PromptVersion <= 0 {
		fb.PromptVersion = 1
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO feedback
		 (id, analysis_id, section_id, section_title, feedback, feedback_reason, user_correction, prompt_version, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), fb.AnalysisID, fb.SectionID, fb.SectionTitle,
		fb.Feedback, fb.FeedbackReason, fb.UserCorrection, fb.PromptVersion,
		nullableBytes(metaJSON), time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert feedback %s/%s", fb.AnalysisID, fb.SectionID)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: feedback rows affected")
	}
	return affected > 0, nil
}

func (s *SQLiteStore) SearchAnalyses(ctx context.Context, f SearchFilter) ([]model.Analysis, error) {
	query := `SELECT a.analysis_id, a.deal_id, a.deal_name, a.analysis_type,
	                 COALESCE(t.name, a.analysis_type), a.full_response, a.created_at
	          FROM analyses a
	          LEFT JOIN analysis_types t ON a.analysis_type = t.type_id
	          WHERE 1=1`
	args := []any{}

	if f.Query != "" {
		query += ` AND (LOWER(a.deal_name) LIKE LOWER(?) OR a.deal_id LIKE ?)`
		pattern := "%" + f.Query + "%"
		args = append(args, pattern, pattern)
	}
	if f.AnalysisType != "" {
		query += ` AND a.analysis_type = ?`
		args = append(args, f.AnalysisType)
	}
	if f.DateFrom != "" {
		query += ` AND date(a.created_at) >= ?`
		args = append(args, f.DateFrom)
	}
	if f.DateTo != "" {
		query += ` AND date(a.created_at) <= ?`
		args = append(args, f.DateTo)
	}

	query += ` ORDER BY a.created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query += fmt.Sprintf(` LIMIT %d`, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		if err := rows.Scan(&a.AnalysisID, &a.DealID, &a.DealName, &a.AnalysisType,
			&a.TypeName, &a.FullResponse, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan analysis")
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "sqlite: search analyses iterate")
}

func (s *SQLiteStore) FeedbackStats(ctx context.Context) ([]model.FeedbackStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.analysis_id, a.analysis_type, COALESCE(t.name, a.analysis_type), a.full_response
		 FROM analyses a
		 LEFT JOIN analysis_types t ON a.analysis_type = t.type_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback stats analyses")
	}
	defer rows.Close()

	var rec []statsRecord
	for rows.Next() {
		var r statsRecord
		if err := rows.Scan(&r.analysisID, &r.typeID, &r.typeName, &r.fullResponse); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stats analysis")
		}
		rec = append(rec, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback stats analyses iterate")
	}

	fbRows, err := s.db.QueryContext(ctx,
		`SELECT analysis_id, COUNT(*)
		 FROM feedback
		 WHERE feedback = ? AND section_id <> ?
		 GROUP BY analysis_id`,
		model.FeedbackDown, overallSectionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback stats counts")
	}
	defer fbRows.Close()

	negative := map[string]int{}
	for fbRows.Next() {
		var id string
		var count int
		if err := fbRows.Scan(&id, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback count")
		}
		negative[id] = count
	}
	if err := fbRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: feedback stats counts iterate")
	}

	return aggregateStats(rec, negative), nil
}

func scanSQLiteAnalysisType(row rowScanner) (*model.AnalysisType, error) {
	var t model.AnalysisType
	var description sql.NullString
	var metaJSON sql.NullString
	var active int

	if err := row.Scan(&t.TypeID, &t.Name, &description, &t.SystemPrompt,
		&active, &t.Version, &metaJSON); err != nil {
		return nil, err
	}
	t.IsActive = active != 0
	t.Description = description.String
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &t.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal type metadata")
		}
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableBytes maps empty metadata to NULL rather than an empty blob.
func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
