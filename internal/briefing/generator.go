// Package briefing generates exactly one briefing per paper, falling back to
// a truncated abstract when no generation backend answers.
package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/match"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/storage"
)

const (
	// fallbackAbstractLimit bounds how much of the abstract the fallback
	// summary carries.
	fallbackAbstractLimit = 500

	// FallbackMarker annotates briefings produced without a generation
	// backend.
	FallbackMarker = "AI service unavailable; original abstract shown."

	fallbackModel = "fallback"
)

// Generator selects papers lacking a briefing and produces one for each.
type Generator struct {
	papers    *storage.PaperRepository
	briefings *storage.BriefingRepository
	client    ports.BriefingClient
	model     string
	logger    *slog.Logger

	// RecencyWindow bounds how far back candidates may have been published.
	RecencyWindow time.Duration
	// MaxPerRun caps candidates per invocation.
	MaxPerRun int
}

// NewGenerator wires repositories and the optional generation collaborator.
// A nil client means every briefing uses the fallback summary.
func NewGenerator(papers *storage.PaperRepository, briefings *storage.BriefingRepository,
	client ports.BriefingClient, model string, logger *slog.Logger) *Generator {
	return &Generator{
		papers:        papers,
		briefings:     briefings,
		client:        client,
		model:         model,
		logger:        logger,
		RecencyWindow: 7 * 24 * time.Hour,
		MaxPerRun:     10,
	}
}

// Generate creates briefings for candidate papers, optionally restricted to
// papers matching the union of keywords across the given fields. Generation
// failures never skip a paper; the fallback summary is stored instead. The
// briefing-per-paper invariant is enforced by the storage layer, so a
// concurrent run racing on the same candidate simply loses the insert.
func (g *Generator) Generate(ctx context.Context, fields []domain.ResearchField) ([]domain.Briefing, error) {
	keywords := fieldKeywords(fields)
	since := time.Now().Add(-g.RecencyWindow)

	candidates, err := g.papers.CandidatesWithoutBriefing(ctx, keywords, since, g.MaxPerRun)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}

	var created []domain.Briefing
	for _, paper := range candidates {
		// LIKE narrows in the database (ASCII-only case folding); the
		// predicate decides.
		if !match.Matches(match.PaperText(paper.Title, paper.Abstract, paper.Keywords), keywords) {
			continue
		}

		content, model := g.contentFor(ctx, paper)

		briefing, isNew, err := g.briefings.Create(ctx, paper.ID, content, model)
		if err != nil {
			return created, fmt.Errorf("store briefing for paper %d: %w", paper.ID, err)
		}
		if !isNew {
			g.debug("briefing already exists", "paper_id", paper.ID)
			continue
		}
		created = append(created, briefing)
	}

	g.debug("generation run done", "candidates", len(candidates), "created", len(created))
	return created, nil
}

func (g *Generator) contentFor(ctx context.Context, paper domain.Paper) (string, string) {
	if g.client == nil {
		return FallbackSummary(paper.Title, paper.Abstract), fallbackModel
	}

	content, err := g.client.GenerateBriefing(ctx, paper.Title, paper.Authors, paper.Abstract, paper.Venue)
	if err != nil || content == "" {
		if err != nil {
			g.warn("generation failed, using fallback", "paper_id", paper.ID, "error", err)
		}
		return FallbackSummary(paper.Title, paper.Abstract), fallbackModel
	}

	return content, g.model
}

// FallbackSummary builds the deterministic substitute briefing: title plus
// the first 500 characters of the abstract, with an explicit truncation
// marker and an AI-unavailable note.
func FallbackSummary(title, abstract string) string {
	truncated := abstract
	if runes := []rune(truncated); len(runes) > fallbackAbstractLimit {
		truncated = string(runes[:fallbackAbstractLimit]) + "..."
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, truncated, FallbackMarker)
}

func fieldKeywords(fields []domain.ResearchField) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fields {
		for _, kw := range f.KeywordList() {
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

func (g *Generator) debug(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}

func (g *Generator) warn(msg string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Warn(msg, args...)
	}
}
