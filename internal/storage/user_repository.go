package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperDigest/internal/domain"
)

// UserRepository persists users, research fields and their association.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository wires a sql.DB implementation.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// SeedFields inserts reference fields that are not present yet, matching by
// name. Existing rows are left untouched.
func (r *UserRepository) SeedFields(ctx context.Context, fields []domain.ResearchField) error {
	now := time.Now().Unix()
	for _, f := range fields {
		query, args, err := sq.Insert("research_fields").
			Columns("name", "display_name", "keywords", "categories", "is_active", "created_at").
			Values(f.Name, f.DisplayName, f.Keywords, f.Categories, true, now).
			Suffix("ON CONFLICT (name) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("build field insert: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("seed field %s: %w", f.Name, err)
		}
	}
	return nil
}

// ActiveFields lists all active research fields.
func (r *UserRepository) ActiveFields(ctx context.Context) ([]domain.ResearchField, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, display_name, keywords, categories, is_active
		 FROM research_fields WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query fields: %w", err)
	}
	defer rows.Close()

	return scanFields(rows)
}

// GetOrCreate returns the user with the given external id, creating it with
// default settings on first contact. Revisits refresh username and
// last-active time.
func (r *UserRepository) GetOrCreate(ctx context.Context, externalID, username string) (domain.User, error) {
	now := time.Now().Unix()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (external_id, username, created_at, last_active_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE
		 SET username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
		     last_active_at = excluded.last_active_at`,
		externalID, username, now, now)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user: %w", err)
	}

	return r.ByExternalID(ctx, externalID)
}

// ByExternalID fetches a user with fields eagerly loaded, or ErrNotFound.
func (r *UserRepository) ByExternalID(ctx context.Context, externalID string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, userSelect+` WHERE external_id = ?`, externalID)

	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, err
	}

	user.Fields, err = r.fieldsForUser(ctx, user.ID)
	if err != nil {
		return domain.User{}, err
	}

	return user, nil
}

// ActiveUsers lists all users with delivery enabled, fields eagerly loaded.
func (r *UserRepository) ActiveUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect+` WHERE is_active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	for i := range users {
		users[i].Fields, err = r.fieldsForUser(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
	}

	return users, nil
}

// SetFields replaces the user's subscribed fields and marks onboarding done.
func (r *UserRepository) SetFields(ctx context.Context, userID int64, fieldIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_research_fields WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear fields: %w", err)
	}

	for _, fieldID := range fieldIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_research_fields (user_id, field_id) VALUES (?, ?)`, userID, fieldID); err != nil {
			return fmt.Errorf("link field %d: %w", fieldID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET onboarding_completed = 1 WHERE id = ?`, userID); err != nil {
		return fmt.Errorf("mark onboarded: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Settings carries optional user setting updates; nil fields are unchanged.
type Settings struct {
	DailyLimit  *int
	HistoryDays *int
	Active      *bool
}

// UpdateSettings applies the provided settings with clamping: daily limit
// 1..50, history depth 1..30 days.
func (r *UserRepository) UpdateSettings(ctx context.Context, userID int64, s Settings) error {
	builder := sq.Update("users").Where(sq.Eq{"id": userID})
	changed := false

	if s.DailyLimit != nil {
		builder = builder.Set("daily_paper_limit", clamp(*s.DailyLimit, 1, 50))
		changed = true
	}
	if s.HistoryDays != nil {
		builder = builder.Set("history_days", clamp(*s.HistoryDays, 1, 30))
		changed = true
	}
	if s.Active != nil {
		builder = builder.Set("is_active", *s.Active)
		changed = true
	}
	if !changed {
		return nil
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user and everything hanging off it. The cascade is
// explicit here rather than delegated to the schema.
func (r *UserRepository) Delete(ctx context.Context, userID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM user_briefings WHERE user_id = ?`,
		`DELETE FROM user_research_fields WHERE user_id = ?`,
		`DELETE FROM users WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, userID); err != nil {
			return fmt.Errorf("cascade delete: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const userSelect = `SELECT id, external_id, username, daily_paper_limit, history_days,
	is_active, onboarding_completed, created_at, last_active_at FROM users`

func scanUser(row rowScanner) (domain.User, error) {
	var (
		user         domain.User
		createdAt    int64
		lastActiveAt int64
	)

	err := row.Scan(&user.ID, &user.ExternalID, &user.Username, &user.DailyLimit,
		&user.HistoryDays, &user.Active, &user.Onboarded, &createdAt, &lastActiveAt)
	if err == sql.ErrNoRows {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	user.LastActiveAt = time.Unix(lastActiveAt, 0).UTC()
	return user, nil
}

func (r *UserRepository) fieldsForUser(ctx context.Context, userID int64) ([]domain.ResearchField, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT f.id, f.name, f.display_name, f.keywords, f.categories, f.is_active
		 FROM research_fields f
		 JOIN user_research_fields uf ON uf.field_id = f.id
		 WHERE uf.user_id = ? ORDER BY f.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user fields: %w", err)
	}
	defer rows.Close()

	return scanFields(rows)
}

func scanFields(rows *sql.Rows) ([]domain.ResearchField, error) {
	var fields []domain.ResearchField
	for rows.Next() {
		var f domain.ResearchField
		if err := rows.Scan(&f.ID, &f.Name, &f.DisplayName, &f.Keywords, &f.Categories, &f.Active); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return fields, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
