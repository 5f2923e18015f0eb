package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/analysis"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/db"
	"github.com/HqOapp/hubspot-deal-analysis-extension/internal/model"
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

// preparedStatements lists queries to prepare on each new connection for
// the hottest store operations.
var preparedStatements = map[string]string{
	"insert_analysis": `INSERT INTO analyses
		(analysis_id, deal_id, deal_name, analysis_type, user_input, system_prompt, full_response, prompt_version, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"insert_feedback": `INSERT INTO feedback
		(id, analysis_id, section_id, section_title, feedback, feedback_reason, user_correction, prompt_version, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (analysis_id, section_id) DO NOTHING`,
	"get_analysis_type": `SELECT type_id, name, description, system_prompt, is_active, version, metadata
		FROM analysis_types WHERE type_id = $1 AND is_active`,
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

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

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

// NewPostgresWithPool wraps an existing pool. Used by tests to inject a mock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS analysis_types (
	type_id       TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	system_prompt TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT TRUE,
	version       INTEGER NOT NULL DEFAULT 1,
	metadata      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
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
	metadata       JSONB,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_deal_id ON analyses(deal_id);
CREATE INDEX IF NOT EXISTS idx_analyses_type ON analyses(analysis_type);
CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at DESC);

CREATE TABLE IF NOT EXISTS feedback (
	id              TEXT PRIMARY KEY,
	analysis_id     TEXT NOT NULL,
	section_id      TEXT NOT NULL,
	section_title   TEXT,
	feedback        TEXT NOT NULL,
	feedback_reason TEXT,
	user_correction TEXT,
	prompt_version  INTEGER NOT NULL DEFAULT 1,
	metadata        JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (analysis_id, section_id)
);

CREATE INDEX IF NOT EXISTS idx_feedback_analysis_id ON feedback(analysis_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListAnalysisTypes(ctx context.Context) ([]model.AnalysisType, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT type_id, name, description, system_prompt, is_active, version, metadata
		 FROM analysis_types WHERE is_active ORDER BY type_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list analysis types")
	}
	defer rows.Close()

	var types []model.AnalysisType
	for rows.Next() {
		t, err := scanAnalysisType(rows)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, eris.Wrap(rows.Err(), "postgres: list analysis types iterate")
}

func (s *PostgresStore) GetAnalysisType(ctx context.Context, typeID string) (*model.AnalysisType, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT type_id, name, description, system_prompt, is_active, version, metadata
		 FROM analysis_types WHERE type_id = $1 AND is_active`,
		typeID,
	)
	t, err := scanAnalysisType(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get analysis type %s", typeID)
	}
	return t, nil
}

func (s *PostgresStore) UpsertAnalysisType(ctx context.Context, t model.AnalysisType) error {
	metaJSON, err := marshalMetadata(t.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal type metadata")
	}

	version := t.Version
	if version <= 0 {
		version = 1
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analysis_types (type_id, name, description, system_prompt, is_active, version, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		 ON CONFLICT (type_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   system_prompt = EXCLUDED.system_prompt,
		   is_active = EXCLUDED.is_active,
		   metadata = EXCLUDED.metadata,
		   version = analysis_types.version + 1,
		   updated_at = now()`,
		t.TypeID, t.Name, t.Description, t.SystemPrompt, t.IsActive, version, metaJSON,
	)
	return eris.Wrapf(err, "postgres: upsert analysis type %s", t.TypeID)
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *model.Analysis) error {
	metaJSON, err := marshalMetadata(a.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis metadata")
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if a.PromptVersion <= 0 {
		a.PromptVersion = 1
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses
		 (analysis_id, deal_id, deal_name, analysis_type, user_input, system_prompt, full_response, prompt_version, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.AnalysisID, a.DealID, a.DealName, a.AnalysisType,
		a.UserInput, a.SystemPrompt, a.FullResponse, a.PromptVersion, metaJSON, a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert analysis %s", a.AnalysisID)
}

func (s *PostgresStore) SaveFeedback(ctx context.Context, fb *model.Feedback) (bool, error) {
	metaJSON, err := marshalMetadata(fb.Metadata)
	if err != nil {
		return false, eris.Wrap(err, "postgres: marshal feedback metadata")
	}

	if fb.PromptVersion <= 0 {
		fb.PromptVersion = 1
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO feedback
		 (id, analysis_id, section_id, section_title, feedback, feedback_reason, user_correction, prompt_version, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (analysis_id, section_id) DO NOTHING`,
		uuid.New().String(), fb.AnalysisID, fb.SectionID, fb.SectionTitle,
		fb.Feedback, fb.FeedbackReason, fb.UserCorrection, fb.PromptVersion,
		metaJSON, time.Now().UTC(),
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert feedback %s/%s", fb.AnalysisID, fb.SectionID)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SearchAnalyses(ctx context.Context, f SearchFilter) ([]model.Analysis, error) {
	query := `SELECT a.analysis_id, a.deal_id, a.deal_name, a.analysis_type,
	                 COALESCE(t.name, a.analysis_type), a.full_response, a.created_at
	          FROM analyses a
	          LEFT JOIN analysis_types t ON a.analysis_type = t.type_id
	          WHERE true`
	args := []any{}
	argIdx := 1

	if f.Query != "" {
		query += fmt.Sprintf(` AND (LOWER(a.deal_name) LIKE LOWER($%d) OR a.deal_id LIKE $%d)`, argIdx, argIdx)
		args = append(args, "%"+f.Query+"%")
		argIdx++
	}
	if f.AnalysisType != "" {
		query += fmt.Sprintf(` AND a.analysis_type = $%d`, argIdx)
		args = append(args, f.AnalysisType)
		argIdx++
	}
	if f.DateFrom != "" {
		query += fmt.Sprintf(` AND a.created_at::date >= $%d`, argIdx)
		args = append(args, f.DateFrom)
		argIdx++
	}
	if f.DateTo != "" {
		query += fmt.Sprintf(` AND a.created_at::date <= $%d`, argIdx)
		args = append(args, f.DateTo)
		argIdx++
	}

	query += ` ORDER BY a.created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search analyses")
	}
	defer rows.Close()

	var analyses []model.Analysis
	for rows.Next() {
		var a model.Analysis
		if err := rows.Scan(&a.AnalysisID, &a.DealID, &a.DealName, &a.AnalysisType,
			&a.TypeName, &a.FullResponse, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan analysis")
		}
		analyses = append(analyses, a)
	}
	return analyses, eris.Wrap(rows.Err(), "postgres: search analyses iterate")
}

func (s *PostgresStore) FeedbackStats(ctx context.Context) ([]model.FeedbackStat, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT a.analysis_id, a.analysis_type, COALESCE(t.name, a.analysis_type), a.full_response
		 FROM analyses a
		 LEFT JOIN analysis_types t ON a.analysis_type = t.type_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats analyses")
	}
	defer rows.Close()

	var rec []statsRecord
	for rows.Next() {
		var r statsRecord
		if err := rows.Scan(&r.analysisID, &r.typeID, &r.typeName, &r.fullResponse); err != nil {
			return nil, eris.Wrap(err, "postgres: scan stats analysis")
		}
		rec = append(rec, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats analyses iterate")
	}

	fbRows, err := s.pool.Query(ctx,
		`SELECT analysis_id, COUNT(*)
		 FROM feedback
		 WHERE feedback = $1 AND section_id <> $2
		 GROUP BY analysis_id`,
		model.FeedbackDown, overallSectionID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats counts")
	}
	defer fbRows.Close()

	negative := map[string]int{}
	for fbRows.Next() {
		var id string
		var count int
		if err := fbRows.Scan(&id, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback count")
		}
		negative[id] = count
	}
	if err := fbRows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: feedback stats counts iterate")
	}

	return aggregateStats(rec, negative), nil
}

// rowScanner covers both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysisType(row rowScanner) (*model.AnalysisType, error) {
	var t model.AnalysisType
	var description *string
	var metaJSON []byte

	if err := row.Scan(&t.TypeID, &t.Name, &description, &t.SystemPrompt,
		&t.IsActive, &t.Version, &metaJSON); err != nil {
		return nil, err
	}
	if description != nil {
		t.Description = *description
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal type metadata")
		}
	}
	return &t, nil
}

func marshalMetadata(meta map[string]any) ([]byte, error) {
	if meta == nil {
		return nil, nil
	}
	return json.Marshal(meta)
}

// overallSectionID marks whole-analysis feedback, which accuracy stats
// exclude: only per-section thumbs count against a prompt.
const overallSectionID = "overall"

type statsRecord struct {
	analysisID   string
	typeID       string
	typeName     string
	fullResponse string
}

// aggregateStats rolls per-analysis section counts and negative feedback up
// to per-type accuracy. Analyses whose response has no h2 sections are
// skipped. Unresponded sections count as good.
func aggregateStats(records []statsRecord, negative map[string]int) []model.FeedbackStat {
	byType := map[string]*model.FeedbackStat{}
	var order []string

	for _, r := range records {
		sections := analysis.CountSections(r.fullResponse)
		if sections == 0 {
			continue
		}
		st, ok := byType[r.typeID]
		if !ok {
			st = &model.FeedbackStat{TypeID: r.typeID, Name: r.typeName}
			byType[r.typeID] = st
			order = append(order, r.typeID)
		}
		st.TotalSections += sections
		st.NegativeFeedback += negative[r.analysisID]
		st.AnalysisCount++
	}

	stats := make([]model.FeedbackStat, 0, len(order))
	for _, id := range order {
		st := byType[id]
		st.Accuracy = accuracy(st.TotalSections, st.NegativeFeedback)
		stats = append(stats, *st)
	}
	sortStatsByUsage(stats)
	return stats
}

func accuracy(total, negative int) int {
	if total <= 0 {
		return 100
	}
	return int(float64(total-negative)/float64(total)*100 + 0.5)
}
