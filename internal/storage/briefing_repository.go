package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperDigest/internal/domain"
)

// BriefingRepository persists generated briefings, one per paper.
type BriefingRepository struct {
	db *sql.DB
}

// NewBriefingRepository wires a sql.DB implementation.
func NewBriefingRepository(db *sql.DB) *BriefingRepository {
	return &BriefingRepository{db: db}
}

// Create stores a briefing for the paper unless one already exists. The
// pre-selection anti-join is race-prone under concurrent generation runs, so
// the UNIQUE index on paper_id is what actually enforces one-per-paper.
// Returns the briefing on record and whether this call created it.
func (r *BriefingRepository) Create(ctx context.Context, paperID int64, content, model string) (domain.Briefing, bool, error) {
	query, args, err := sq.Insert("briefings").
		Columns("paper_id", "content", "model", "created_at").
		Values(paperID, content, model, time.Now().Unix()).
		Suffix("ON CONFLICT (paper_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("insert briefing: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Briefing{}, false, fmt.Errorf("rows affected: %w", err)
	}

	briefing, err := r.ByPaperID(ctx, paperID)
	if err != nil {
		return domain.Briefing{}, false, err
	}

	return briefing, affected > 0, nil
}

// ByPaperID fetches the briefing for a paper or ErrNotFound.
func (r *BriefingRepository) ByPaperID(ctx context.Context, paperID int64) (domain.Briefing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, paper_id, content, model, created_at FROM briefings WHERE paper_id = ?`, paperID)
	return scanBriefing(row)
}

// Count returns the total number of briefings.
func (r *BriefingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM briefings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count briefings: %w", err)
	}
	return n, nil
}

func scanBriefing(row rowScanner) (domain.Briefing, error) {
	var (
		briefing  domain.Briefing
		createdAt int64
	)

	err := row.Scan(&briefing.ID, &briefing.PaperID, &briefing.Content, &briefing.Model, &createdAt)
	if err == sql.ErrNoRows {
		return domain.Briefing{}, ErrNotFound
	}
	if err != nil {
		return domain.Briefing{}, fmt.Errorf("scan briefing: %w", err)
	}

	briefing.CreatedAt = time.Unix(createdAt, 0).UTC()
	return briefing, nil
}
