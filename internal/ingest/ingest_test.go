package ingest

import (
	"context"
	"database/sql"
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

func record(externalID, title string) domain.SourceRecord {
	return domain.SourceRecord{
		ExternalID:  externalID,
		Source:      "arxiv",
		Title:       title,
		Abstract:    "An abstract.",
		PublishDate: time.Now().Add(-time.Hour),
	}
}

func TestIngestReturnsOnlyNewPapers(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	svc := NewService(storage.NewPaperRepository(db), nil)
	ctx := context.Background()

	batch := []domain.SourceRecord{
		record("2501.00001", "First"),
		record("2501.00002", "Second"),
	}

	inserted, err := svc.Ingest(ctx, batch)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 new papers, got %d", len(inserted))
	}

	again, err := svc.Ingest(ctx, append(batch, record("2501.00003", "Third")))
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if len(again) != 1 || again[0].ExternalID != "2501.00003" {
		t.Fatalf("expected only the unseen paper, got %+v", again)
	}
}

func TestIngestDropsRecordsWithoutIdentity(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	papers := storage.NewPaperRepository(db)
	svc := NewService(papers, nil)
	ctx := context.Background()

	noID := record("", "No Identifier")
	noSource := record("2501.00009", "No Source")
	noSource.Source = ""

	inserted, err := svc.Ingest(ctx, []domain.SourceRecord{noID, noSource, record("2501.00010", "Valid")})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(inserted) != 1 || inserted[0].ExternalID != "2501.00010" {
		t.Fatalf("expected only the identified record, got %+v", inserted)
	}

	counts, err := papers.CountBySource(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts["arxiv"] != 1 {
		t.Fatalf("expected 1 stored paper, got %d", counts["arxiv"])
	}
}
