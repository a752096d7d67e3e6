package parser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/scanner"
)

// SiteSource binds one configured source to its scanner strategy. The fetch
// stage asks every SiteSource independently, so one broken source never
// blocks the others.
type SiteSource struct {
	registry *scanner.Registry
	site     config.SourceConfig
	logger   *slog.Logger
}

var _ ports.PaperSource = (*SiteSource)(nil)

// NewSiteSources builds one source per configured site.
func NewSiteSources(reg *scanner.Registry, sites []config.SourceConfig, log *slog.Logger) []ports.PaperSource {
	sources := make([]ports.PaperSource, 0, len(sites))
	for _, site := range sites {
		sources = append(sources, &SiteSource{
			registry: reg,
			site:     site,
			logger:   log,
		})
	}
	return sources
}

// Name returns the configured site name.
func (s *SiteSource) Name() string {
	return s.site.Name
}

// Fetch resolves the scanner strategy and runs it over the categories this
// site serves. The requested superset of categories is narrowed to the
// site's configured ones; when nothing overlaps the configured list is used
// as-is (the caller's union may only contain categories of other sources).
func (s *SiteSource) Fetch(ctx context.Context, requested []string, since time.Time) ([]domain.SourceRecord, error) {
	strategy, err := s.registry.Resolve(s.site.Scanner)
	if err != nil {
		return nil, fmt.Errorf("site %s: %w", s.site.Name, err)
	}

	categories := intersect(requested, s.site.Categories)
	if len(categories) == 0 {
		categories = s.site.Categories
	}

	s.debug("scan site", "site", s.site.Name, "scanner", s.site.Scanner,
		"categories", len(categories), "since", since.Format("2006-01-02"))

	records, err := strategy.Scan(ctx, scanner.Request{
		Categories: categories,
		Since:      since,
		Options:    s.site.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("scan site %s: %w", s.site.Name, err)
	}

	for i := range records {
		if records[i].Source == "" {
			records[i].Source = s.site.Name
		}
	}

	s.debug("site produced records", "site", s.site.Name, "count", len(records))
	return records, nil
}

func intersect(requested, configured []string) []string {
	allowed := map[string]struct{}{}
	for _, c := range configured {
		allowed[c] = struct{}{}
	}

	var out []string
	for _, r := range requested {
		if _, ok := allowed[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

func (s *SiteSource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
