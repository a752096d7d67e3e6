package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"PaperDigest/internal/domain"
)

// PaperRepository persists deduplicated papers.
type PaperRepository struct {
	db *sql.DB
}

// NewPaperRepository wires a sql.DB implementation.
func NewPaperRepository(db *sql.DB) *PaperRepository {
	return &PaperRepository{db: db}
}

const paperColumns = `id, external_id, source, title, authors, abstract, keywords,
	publish_date, venue, pdf_url, source_url, created_at`

// InsertIfNew stores a normalized record unless a paper with the same
// (source, external_id) already exists. The uniqueness index makes this safe
// under concurrent ingestion; repeat ingestion is a no-op. Returns the stored
// paper and whether this call created it.
func (r *PaperRepository) InsertIfNew(ctx context.Context, rec domain.SourceRecord) (domain.Paper, bool, error) {
	now := time.Now().Unix()

	query, args, err := sq.Insert("papers").
		Columns("external_id", "source", "title", "authors", "abstract", "keywords",
			"publish_date", "venue", "pdf_url", "source_url", "created_at", "updated_at").
		Values(rec.ExternalID, rec.Source, rec.Title, rec.JoinedAuthors(), rec.Abstract,
			rec.JoinedKeywords(), nullableUnix(rec.PublishDate), rec.Venue, rec.PDFURL,
			rec.SourceURL, now, now).
		Suffix("ON CONFLICT (source, external_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.Paper{}, false, fmt.Errorf("build insert: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Paper{}, false, fmt.Errorf("insert paper: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Paper{}, false, fmt.Errorf("rows affected: %w", err)
	}

	paper, err := r.byIdentity(ctx, rec.Source, rec.ExternalID)
	if err != nil {
		return domain.Paper{}, false, err
	}

	return paper, affected > 0, nil
}

// ByID fetches a single paper or ErrNotFound.
func (r *PaperRepository) ByID(ctx context.Context, id int64) (domain.Paper, error) {
	query, args, err := sq.Select(paperColumns).From("papers").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.Paper{}, fmt.Errorf("build select: %w", err)
	}
	return r.scanOne(ctx, query, args)
}

// CandidatesWithoutBriefing returns papers lacking a briefing, published since
// the given time, optionally restricted by field keywords, newest first with
// id ascending as the tie-break.
func (r *PaperRepository) CandidatesWithoutBriefing(ctx context.Context, keywords []string, since time.Time, limit int) ([]domain.Paper, error) {
	builder := sq.Select(prefixColumns("p", paperColumns)).
		From("papers p").
		LeftJoin("briefings b ON b.paper_id = p.id").
		Where("b.id IS NULL").
		Where(sq.GtOrEq{"p.publish_date": since.Unix()}).
		OrderBy("p.publish_date DESC", "p.id ASC").
		Limit(uint64(limit))

	if filter := keywordFilter("p", keywords); filter != nil {
		builder = builder.Where(filter)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidates query: %w", err)
	}

	return r.scanAll(ctx, query, args)
}

// Search finds papers whose text matches the query string, newest first.
func (r *PaperRepository) Search(ctx context.Context, text string, limit int) ([]domain.Paper, error) {
	query, args, err := sq.Select(paperColumns).
		From("papers").
		Where(keywordFilter("", []string{text})).
		OrderBy("publish_date DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	return r.scanAll(ctx, query, args)
}

// CountBySource reports how many papers each source has contributed.
func (r *PaperRepository) CountBySource(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM papers GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("count by source: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return counts, nil
}

func (r *PaperRepository) byIdentity(ctx context.Context, source, externalID string) (domain.Paper, error) {
	query, args, err := sq.Select(paperColumns).
		From("papers").
		Where(sq.Eq{"source": source, "external_id": externalID}).
		ToSql()
	if err != nil {
		return domain.Paper{}, fmt.Errorf("build select: %w", err)
	}
	return r.scanOne(ctx, query, args)
}

func (r *PaperRepository) scanOne(ctx context.Context, query string, args []interface{}) (domain.Paper, error) {
	paper, err := scanPaper(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return domain.Paper{}, ErrNotFound
	}
	if err != nil {
		return domain.Paper{}, fmt.Errorf("scan paper: %w", err)
	}
	return paper, nil
}

func (r *PaperRepository) scanAll(ctx context.Context, query string, args []interface{}) ([]domain.Paper, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query papers: %w", err)
	}
	defer rows.Close()

	var papers []domain.Paper
	for rows.Next() {
		paper, err := scanPaper(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		papers = append(papers, paper)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return papers, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPaper(row rowScanner) (domain.Paper, error) {
	var (
		paper       domain.Paper
		publishDate sql.NullInt64
		createdAt   int64
	)

	err := row.Scan(&paper.ID, &paper.ExternalID, &paper.Source, &paper.Title,
		&paper.Authors, &paper.Abstract, &paper.Keywords, &publishDate,
		&paper.Venue, &paper.PDFURL, &paper.SourceURL, &createdAt)
	if err != nil {
		return domain.Paper{}, err
	}

	if publishDate.Valid {
		paper.PublishDate = time.Unix(publishDate.Int64, 0).UTC()
	}
	paper.CreatedAt = time.Unix(createdAt, 0).UTC()

	return paper, nil
}

// keywordFilter builds the disjunctive LIKE filter over title, abstract and
// keywords. Wildcard characters in keywords are escaped, so a keyword only
// ever matches as a literal substring. A nil result means no filtering
// (empty keyword set).
func keywordFilter(alias string, keywords []string) sq.Sqlizer {
	prefix := ""
	if alias != "" {
		prefix = alias + "."
	}

	var conditions sq.Or
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		pattern := "%" + escapeLike(kw) + "%"
		for _, col := range []string{"title", "abstract", "keywords"} {
			conditions = append(conditions, sq.Expr(prefix+col+` LIKE ? ESCAPE '\'`, pattern))
		}
	}
	if len(conditions) == 0 {
		return nil
	}
	return conditions
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// prefixColumns rewrites the shared column list with a table alias so joined
// queries keep the same scan order as plain selects.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, col := range parts {
		parts[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(parts, ", ")
}

func nullableUnix(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}
