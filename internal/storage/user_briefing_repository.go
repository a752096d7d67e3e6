package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperDigest/internal/domain"
)

// UserBriefingRepository persists per-user delivery state for briefings.
type UserBriefingRepository struct {
	db *sql.DB
}

// NewUserBriefingRepository wires a sql.DB implementation.
func NewUserBriefingRepository(db *sql.DB) *UserBriefingRepository {
	return &UserBriefingRepository{db: db}
}

// UnassignedBriefingIDs returns briefings not yet assigned to the user,
// filtered by field keywords when present, ordered by the underlying paper's
// publish date descending.
func (r *UserBriefingRepository) UnassignedBriefingIDs(ctx context.Context, userID int64, keywords []string, limit int) ([]int64, error) {
	builder := sq.Select("b.id").
		From("briefings b").
		Join("papers p ON p.id = b.paper_id").
		Where("b.id NOT IN (SELECT briefing_id FROM user_briefings WHERE user_id = ?)", userID).
		OrderBy("p.publish_date DESC", "b.id ASC").
		Limit(uint64(limit))

	if filter := keywordFilter("p", keywords); filter != nil {
		builder = builder.Where(filter)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return ids, nil
}

// CreatePending inserts unsent assignment rows for the user. The UNIQUE index
// on (user_id, briefing_id) silently rejects duplicates, so concurrent fanout
// calls for the same user are safe. Returns how many rows were created.
func (r *UserBriefingRepository) CreatePending(ctx context.Context, userID int64, briefingIDs []int64) (int, error) {
	now := time.Now().Unix()
	created := 0

	for _, briefingID := range briefingIDs {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO user_briefings (user_id, briefing_id, created_at) VALUES (?, ?, ?)
			 ON CONFLICT (user_id, briefing_id) DO NOTHING`,
			userID, briefingID, now)
		if err != nil {
			return created, fmt.Errorf("insert user briefing: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			created++
		}
	}

	return created, nil
}

// Pending lists the user's unsent briefings with briefing and paper assembled
// eagerly, newest assignment first.
func (r *UserBriefingRepository) Pending(ctx context.Context, userID int64, limit int) ([]domain.BriefingItem, error) {
	return r.listItems(ctx, userID, false, limit)
}

// SentHistory lists the user's delivered briefings, most recent send first.
func (r *UserBriefingRepository) SentHistory(ctx context.Context, userID int64, limit int) ([]domain.BriefingItem, error) {
	return r.listItems(ctx, userID, true, limit)
}

// CountPending returns the user's unsent backlog size.
func (r *UserBriefingRepository) CountPending(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_briefings WHERE user_id = ? AND is_sent = 0`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// Get fetches a single assignment row or ErrNotFound.
func (r *UserBriefingRepository) Get(ctx context.Context, id int64) (domain.UserBriefing, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, briefing_id, is_sent, sent_at, is_read, read_at, is_interested, created_at
		 FROM user_briefings WHERE id = ?`, id)
	return scanUserBriefing(row)
}

// MarkSent sets the sent flag and timestamp. Sent is monotonic: repeat calls
// keep the first timestamp and never reset the flag.
func (r *UserBriefingRepository) MarkSent(ctx context.Context, id int64) error {
	return r.flagUpdate(ctx, id,
		`UPDATE user_briefings SET is_sent = 1, sent_at = COALESCE(sent_at, ?) WHERE id = ?`)
}

// MarkRead sets the read flag; a second call is a no-op and read_at keeps the
// value captured by the first.
func (r *UserBriefingRepository) MarkRead(ctx context.Context, id int64) error {
	return r.flagUpdate(ctx, id,
		`UPDATE user_briefings SET is_read = 1, read_at = COALESCE(read_at, ?) WHERE id = ?`)
}

// MarkInterested sets the interested flag. No timestamp is recorded.
func (r *UserBriefingRepository) MarkInterested(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_briefings SET is_interested = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark interested: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserBriefingRepository) flagUpdate(ctx context.Context, id int64, query string) error {
	res, err := r.db.ExecContext(ctx, query, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("update flag: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserBriefingRepository) listItems(ctx context.Context, userID int64, sent bool, limit int) ([]domain.BriefingItem, error) {
	order := "ub.created_at DESC, ub.id DESC"
	if sent {
		order = "ub.sent_at DESC, ub.id DESC"
	}

	builder := sq.Select(
		"ub.id", "ub.user_id", "ub.briefing_id", "ub.is_sent", "ub.sent_at",
		"ub.is_read", "ub.read_at", "ub.is_interested", "ub.created_at",
		"b.id", "b.paper_id", "b.content", "b.model", "b.created_at").
		Columns(prefixColumns("p", paperColumns)).
		From("user_briefings ub").
		Join("briefings b ON b.id = ub.briefing_id").
		Join("papers p ON p.id = b.paper_id").
		Where(sq.Eq{"ub.user_id": userID, "ub.is_sent": sent}).
		OrderBy(order)

	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build items query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []domain.BriefingItem
	for rows.Next() {
		var (
			item             domain.BriefingItem
			sentAt, readAt   sql.NullInt64
			stateCreated     int64
			briefingCreated  int64
			paperPublishDate sql.NullInt64
			paperCreated     int64
		)

		err := rows.Scan(
			&item.State.ID, &item.State.UserID, &item.State.BriefingID, &item.State.Sent, &sentAt,
			&item.State.Read, &readAt, &item.State.Interested, &stateCreated,
			&item.Briefing.ID, &item.Briefing.PaperID, &item.Briefing.Content, &item.Briefing.Model, &briefingCreated,
			&item.Paper.ID, &item.Paper.ExternalID, &item.Paper.Source, &item.Paper.Title,
			&item.Paper.Authors, &item.Paper.Abstract, &item.Paper.Keywords, &paperPublishDate,
			&item.Paper.Venue, &item.Paper.PDFURL, &item.Paper.SourceURL, &paperCreated)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		if sentAt.Valid {
			item.State.SentAt = time.Unix(sentAt.Int64, 0).UTC()
		}
		if readAt.Valid {
			item.State.ReadAt = time.Unix(readAt.Int64, 0).UTC()
		}
		if paperPublishDate.Valid {
			item.Paper.PublishDate = time.Unix(paperPublishDate.Int64, 0).UTC()
		}
		item.State.CreatedAt = time.Unix(stateCreated, 0).UTC()
		item.Briefing.CreatedAt = time.Unix(briefingCreated, 0).UTC()
		item.Paper.CreatedAt = time.Unix(paperCreated, 0).UTC()

		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return items, nil
}

func scanUserBriefing(row rowScanner) (domain.UserBriefing, error) {
	var (
		ub             domain.UserBriefing
		sentAt, readAt sql.NullInt64
		createdAt      int64
	)

	err := row.Scan(&ub.ID, &ub.UserID, &ub.BriefingID, &ub.Sent, &sentAt,
		&ub.Read, &readAt, &ub.Interested, &createdAt)
	if err == sql.ErrNoRows {
		return domain.UserBriefing{}, ErrNotFound
	}
	if err != nil {
		return domain.UserBriefing{}, fmt.Errorf("scan user briefing: %w", err)
	}

	if sentAt.Valid {
		ub.SentAt = time.Unix(sentAt.Int64, 0).UTC()
	}
	if readAt.Valid {
		ub.ReadAt = time.Unix(readAt.Int64, 0).UTC()
	}
	ub.CreatedAt = time.Unix(createdAt, 0).UTC()

	return ub, nil
}
