package fanout

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "digest.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func seedBriefings(t *testing.T, db *sql.DB, n int) {
	t.Helper()

	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	ctx := context.Background()

	for i := 0; i < n; i++ {
		paper, _, err := papers.InsertIfNew(ctx, domain.SourceRecord{
			ExternalID:  fmt.Sprintf("2501.%05d", i),
			Source:      "arxiv",
			Title:       fmt.Sprintf("Paper %d", i),
			Abstract:    "An abstract.",
			PublishDate: time.Now().Add(-time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("seed paper %d: %v", i, err)
		}
		if _, _, err := briefings.Create(ctx, paper.ID, "digest", "test"); err != nil {
			t.Fatalf("seed briefing %d: %v", i, err)
		}
	}
}

func TestAssignFillsBacklogUpToFactor(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	userBriefings := storage.NewUserBriefingRepository(db)
	users := storage.NewUserRepository(db)
	assigner := NewAssigner(userBriefings, nil)
	ctx := context.Background()

	seedBriefings(t, db, 20)
	user, err := users.GetOrCreate(ctx, "chat-1", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.DailyLimit = 5

	created, err := assigner.Assign(ctx, user)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if want := 5 * BacklogFactor; created != want {
		t.Fatalf("expected %d assignments, got %d", want, created)
	}

	// The remaining briefings top the queue off; after that the well is dry.
	created, err = assigner.Assign(ctx, user)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if created != 5 {
		t.Fatalf("expected the 5 leftover briefings, got %d", created)
	}

	created, err = assigner.Assign(ctx, user)
	if err != nil {
		t.Fatalf("third assign: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected idempotent no-op, created %d", created)
	}
}

func TestAssignFiltersByUserKeywords(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	userBriefings := storage.NewUserBriefingRepository(db)
	users := storage.NewUserRepository(db)
	assigner := NewAssigner(userBriefings, nil)
	ctx := context.Background()

	titles := []string{"A Transformer Model", "Protein Folding Advances"}
	for i, title := range titles {
		paper, _, err := papers.InsertIfNew(ctx, domain.SourceRecord{
			ExternalID:  fmt.Sprintf("2501.1%04d", i),
			Source:      "arxiv",
			Title:       title,
			PublishDate: time.Now(),
		})
		if err != nil {
			t.Fatalf("seed paper: %v", err)
		}
		if _, _, err := briefings.Create(ctx, paper.ID, "digest", "test"); err != nil {
			t.Fatalf("seed briefing: %v", err)
		}
	}

	user, err := users.GetOrCreate(ctx, "chat-2", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.Fields = []domain.ResearchField{{Name: "nlp", Keywords: "transformer"}}

	created, err := assigner.Assign(ctx, user)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected only the matching briefing, got %d", created)
	}
}

func TestAssignTreatsKeywordWildcardsAsLiterals(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	userBriefings := storage.NewUserBriefingRepository(db)
	users := storage.NewUserRepository(db)
	assigner := NewAssigner(userBriefings, nil)
	ctx := context.Background()

	titles := []string{"The 100 things that are accurate", "Models that are 100% accurate"}
	for i, title := range titles {
		paper, _, err := papers.InsertIfNew(ctx, domain.SourceRecord{
			ExternalID:  fmt.Sprintf("2501.2%04d", i),
			Source:      "arxiv",
			Title:       title,
			PublishDate: time.Now(),
		})
		if err != nil {
			t.Fatalf("seed paper: %v", err)
		}
		if _, _, err := briefings.Create(ctx, paper.ID, "digest", "test"); err != nil {
			t.Fatalf("seed briefing: %v", err)
		}
	}

	user, err := users.GetOrCreate(ctx, "chat-3", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.Fields = []domain.ResearchField{{Name: "odd", Keywords: "100% accurate"}}

	created, err := assigner.Assign(ctx, user)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if created != 1 {
		t.Fatalf("%% in keyword must match literally, not as a wildcard: created %d", created)
	}

	items, err := userBriefings.Pending(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(items) != 1 || items[0].Paper.Title != "Models that are 100% accurate" {
		t.Fatalf("wrong briefing assigned: %+v", items)
	}
}

func TestAssignZeroLimitIsNoop(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	assigner := NewAssigner(storage.NewUserBriefingRepository(db), nil)

	created, err := assigner.Assign(context.Background(), domain.User{ID: 1, DailyLimit: 0})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected no assignments for zero limit, got %d", created)
	}
}
