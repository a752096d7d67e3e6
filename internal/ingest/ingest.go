// Package ingest turns raw source records into deduplicated papers.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/storage"
)

// Service persists distinct papers from normalized source records.
type Service struct {
	papers *storage.PaperRepository
	logger *slog.Logger
}

// NewService wires the paper repository.
func NewService(papers *storage.PaperRepository, logger *slog.Logger) *Service {
	return &Service{papers: papers, logger: logger}
}

// Ingest stores the records of a single source and returns only the papers
// this call created. Records already known by (source, external_id) are
// skipped without touching the existing row.
func (s *Service) Ingest(ctx context.Context, records []domain.SourceRecord) ([]domain.Paper, error) {
	var inserted []domain.Paper
	skipped := 0

	for _, rec := range records {
		if rec.ExternalID == "" || rec.Source == "" {
			s.warn("record without identity dropped", "title", rec.Title)
			continue
		}

		paper, created, err := s.papers.InsertIfNew(ctx, rec)
		if err != nil {
			return inserted, fmt.Errorf("ingest %s/%s: %w", rec.Source, rec.ExternalID, err)
		}
		if !created {
			skipped++
			continue
		}
		inserted = append(inserted, paper)
	}

	if skipped > 0 {
		s.debug("skipped existing papers", "count", skipped)
	}

	return inserted, nil
}

func (s *Service) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Service) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
