// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outreachkit/prospector/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TargetStoreConfig controls the Postgres connection pool used for
// target rows.
type TargetStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// TargetStore implements store.TargetRepository on Postgres. Each stage
// upsert replaces its own column group and fills identity columns only
// when the row does not already carry them.
type TargetStore struct {
	pool  dbPool
	table string
}

// NewTargetStore creates a Postgres-backed TargetStore using the
// provided config.
func NewTargetStore(ctx context.Context, cfg TargetStoreConfig) (*TargetStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "targets"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &TargetStore{pool: pool, table: table}, nil
}

// NewTargetStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewTargetStoreWithPool(pool dbPool, table string) (*TargetStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "targets"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &TargetStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *TargetStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// stageColumns maps each stage to the columns its upsert replaces.
var stageColumns = map[store.Stage][]string{
	store.StageBlogCheck: {
		"is_blog", "blog_score", "blog_indicators", "has_recent_content", "recent_reason",
	},
	store.StageEmailScrape: {
		"email", "email_2", "email_3", "phone",
		"linkedin", "instagram", "facebook", "contact_form",
	},
	store.StageEmailVerify: {
		"email_quality", "email_status", "email_notes", "email_verified",
		"email_2_quality", "email_2_status", "email_2_notes", "email_2_verified",
		"email_3_quality", "email_3_status", "email_3_notes", "email_3_verified",
		"best_email",
	},
}

// UpsertTargets writes one row per record under the stage's
// column-replacement rules. The chunk commits as a single transaction
// so a failed checkpoint never leaves a partial chunk behind.
func (s *TargetStore) UpsertTargets(ctx context.Context, stage store.Stage, records []store.TargetRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("target store is not configured")
	}
	columns, ok := stageColumns[stage]
	if !ok {
		return fmt.Errorf("unknown stage %q", stage)
	}
	query := s.upsertQuery(columns)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, rec := range records {
		if rec.UploadID == "" || rec.Website == "" {
			return fmt.Errorf("record requires upload id and website")
		}
		args := append([]any{rec.UploadID, rec.Website, rec.Company, rec.Name, rec.UpdatedAt},
			stageArgs(stage, rec)...)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert target %s: %w", rec.Website, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert transaction: %w", err)
	}
	return nil
}

func (s *TargetStore) upsertQuery(columns []string) string {
	all := append([]string{"upload_id", "website", "company", "name", "updated_at"}, columns...)
	placeholders := make([]string, len(all))
	for i := range all {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := []string{
		fmt.Sprintf("company = COALESCE(NULLIF(EXCLUDED.company, ''), %s.company)", s.table),
		fmt.Sprintf("name = COALESCE(NULLIF(EXCLUDED.name, ''), %s.name)", s.table),
		"updated_at = EXCLUDED.updated_at",
	}
	for _, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
ON CONFLICT (upload_id, website) DO UPDATE SET %s`,
		s.table,
		strings.Join(all, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(sets, ", "),
	)
}

func stageArgs(stage store.Stage, rec store.TargetRecord) []any {
	switch stage {
	case store.StageBlogCheck:
		return []any{rec.IsBlog, rec.BlogScore, rec.BlogIndicators, rec.HasRecentContent, rec.RecentReason}
	case store.StageEmailScrape:
		return []any{
			rec.Email, rec.Email2, rec.Email3, rec.Phone,
			rec.LinkedIn, rec.Instagram, rec.Facebook, rec.ContactForm,
		}
	case store.StageEmailVerify:
		return []any{
			rec.EmailQuality, rec.EmailStatus, rec.EmailNotes, rec.EmailVerified,
			rec.Email2Quality, rec.Email2Status, rec.Email2Notes, rec.Email2Verified,
			rec.Email3Quality, rec.Email3Status, rec.Email3Notes, rec.Email3Verified,
			rec.BestEmail,
		}
	default:
		return nil
	}
}

const selectColumns = `upload_id, website, company, name, updated_at,
is_blog, blog_score, blog_indicators, has_recent_content, recent_reason,
email, email_2, email_3, phone, linkedin, instagram, facebook, contact_form,
email_quality, email_status, email_notes, email_verified,
email_2_quality, email_2_status, email_2_notes, email_2_verified,
email_3_quality, email_3_status, email_3_notes, email_3_verified, best_email`

// GetTarget loads one row or returns store.ErrNotFound.
func (s *TargetStore) GetTarget(ctx context.Context, uploadID, website string) (store.TargetRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE upload_id = $1 AND website = $2`, selectColumns, s.table)
	rec, err := scanTarget(s.pool.QueryRow(ctx, query, uploadID, website))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.TargetRecord{}, store.ErrNotFound
		}
		return store.TargetRecord{}, fmt.Errorf("get target: %w", err)
	}
	return rec, nil
}

// ListTargets returns every row for an upload ordered by website.
func (s *TargetStore) ListTargets(ctx context.Context, uploadID string) ([]store.TargetRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE upload_id = $1 ORDER BY website`, selectColumns, s.table)
	rows, err := s.pool.Query(ctx, query, uploadID)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	defer rows.Close()

	var out []store.TargetRecord
	for rows.Next() {
		rec, err := scanTarget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan target row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate target rows: %w", err)
	}
	return out, nil
}

func scanTarget(row pgx.Row) (store.TargetRecord, error) {
	var rec store.TargetRecord
	err := row.Scan(
		&rec.UploadID, &rec.Website, &rec.Company, &rec.Name, &rec.UpdatedAt,
		&rec.IsBlog, &rec.BlogScore, &rec.BlogIndicators, &rec.HasRecentContent, &rec.RecentReason,
		&rec.Email, &rec.Email2, &rec.Email3, &rec.Phone,
		&rec.LinkedIn, &rec.Instagram, &rec.Facebook, &rec.ContactForm,
		&rec.EmailQuality, &rec.EmailStatus, &rec.EmailNotes, &rec.EmailVerified,
		&rec.Email2Quality, &rec.Email2Status, &rec.Email2Notes, &rec.Email2Verified,
		&rec.Email3Quality, &rec.Email3Status, &rec.Email3Notes, &rec.Email3Verified, &rec.BestEmail,
	)
	return rec, err
}
