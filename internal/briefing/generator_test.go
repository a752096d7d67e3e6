package briefing

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
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

func seedPaper(t *testing.T, papers *storage.PaperRepository, externalID, title, abstract string) domain.Paper {
	t.Helper()

	paper, _, err := papers.InsertIfNew(context.Background(), domain.SourceRecord{
		ExternalID:  externalID,
		Source:      "arxiv",
		Title:       title,
		Abstract:    abstract,
		PublishDate: time.Now().Add(-2 * time.Hour),
	})
	if err != nil {
		t.Fatalf("seed paper %s: %v", externalID, err)
	}
	return paper
}

type failingClient struct{}

func (failingClient) GenerateBriefing(ctx context.Context, title, authors, abstract, venue string) (string, error) {
	return "", errors.New("backend down")
}

func TestGenerateFallsBackWithoutClient(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	gen := NewGenerator(papers, briefings, nil, "", nil)

	seedPaper(t, papers, "2501.00001", "Paper One", "Short abstract.")
	seedPaper(t, papers, "2501.00002", "Paper Two", "Another abstract.")
	seedPaper(t, papers, "2501.00003", "Paper Three", "Third abstract.")

	created, err := gen.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 briefings, got %d", len(created))
	}
	for _, b := range created {
		if !strings.Contains(b.Content, FallbackMarker) {
			t.Fatalf("fallback marker missing from briefing %d", b.ID)
		}
		if b.Model != "fallback" {
			t.Fatalf("expected fallback model tag, got %q", b.Model)
		}
	}

	again, err := gen.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("second generate: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("briefed papers generated again: %d", len(again))
	}
}

func TestGenerateFallsBackOnClientFailure(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	gen := NewGenerator(papers, briefings, failingClient{}, "gpt-test", nil)

	paper := seedPaper(t, papers, "2501.00010", "Resilient Paper", "Abstract text.")

	created, err := gen.Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected 1 briefing despite client failure, got %d", len(created))
	}

	stored, err := briefings.ByPaperID(context.Background(), paper.ID)
	if err != nil {
		t.Fatalf("load briefing: %v", err)
	}
	if !strings.Contains(stored.Content, FallbackMarker) || stored.Model != "fallback" {
		t.Fatalf("client failure did not fall back: %+v", stored)
	}
}

func TestGenerateHonorsFieldKeywords(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	gen := NewGenerator(papers, briefings, nil, "", nil)

	seedPaper(t, papers, "2501.00020", "A Transformer Model", "Sequence modeling.")
	seedPaper(t, papers, "2501.00021", "Protein Folding", "Biology topic.")

	fields := []domain.ResearchField{{Name: "nlp", Keywords: "transformer,language model"}}
	created, err := gen.Generate(context.Background(), fields)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("expected only the matching paper, got %d briefings", len(created))
	}
}

func TestFallbackSummaryTruncatesAbstract(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 600)
	got := FallbackSummary("Long Paper", long)

	if !strings.Contains(got, strings.Repeat("a", 500)+"...") {
		t.Fatal("abstract not truncated at 500 characters")
	}
	if strings.Contains(got, strings.Repeat("a", 501)) {
		t.Fatal("truncation kept more than 500 characters")
	}
	if !strings.HasPrefix(got, "Long Paper\n\n") {
		t.Fatalf("title missing from summary: %q", got[:30])
	}
	if !strings.HasSuffix(got, FallbackMarker) {
		t.Fatal("fallback marker missing")
	}

	short := FallbackSummary("Short Paper", "tiny")
	if strings.Contains(short, "...") {
		t.Fatalf("short abstract should not be truncated: %q", short)
	}
}
