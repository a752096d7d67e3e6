package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PaperDigest/internal/config"
	"PaperDigest/internal/scanner"
)

func TestOpenReviewScannerFiltersBySince(t *testing.T) {
	t.Parallel()

	cutoff := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("term") != "ICLR" {
			t.Errorf("unexpected search term: %s", r.URL.Query().Get("term"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notes": [
			{"id": "fresh123", "cdate": 1736640000000, "content": {
				"title": "Fresh Submission", "authors": ["Jane Doe"],
				"abstract": "New work.", "keywords": ["deep learning"],
				"pdf": "/pdf/fresh123.pdf"}},
			{"id": "old456", "cdate": 1704067200000, "content": {
				"title": "Old Submission", "abstract": "Stale work."}}
		]}`))
	}))
	defer server.Close()

	sc := NewOpenReviewScanner(server.Client())
	sc.baseURL = server.URL

	records, err := sc.Scan(context.Background(), scanner.Request{
		Categories: []string{"ICLR"},
		Since:      cutoff,
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("expected 1 record after the cutoff, got %d", len(records))
	}

	rec := records[0]
	if rec.ExternalID != "fresh123" || rec.Source != "openreview" {
		t.Fatalf("unexpected identity: %+v", rec)
	}
	if rec.Venue != "ICLR" {
		t.Fatalf("expected venue fallback to the requested category, got %q", rec.Venue)
	}
	if rec.SourceURL != "https://openreview.net/forum?id=fresh123" {
		t.Fatalf("unexpected source url: %s", rec.SourceURL)
	}
	if rec.PDFURL != "https://api.openreview.net/pdf/fresh123.pdf" {
		t.Fatalf("relative pdf path not resolved: %s", rec.PDFURL)
	}
}

func TestSiteSourceNarrowsCategories(t *testing.T) {
	t.Parallel()

	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("term"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"notes": []}`))
	}))
	defer server.Close()

	sc := NewOpenReviewScanner(server.Client())
	sc.baseURL = server.URL

	reg := scanner.NewRegistry()
	reg.Register(sc)

	sources := NewSiteSources(reg, []config.SourceConfig{{
		Name:       "openreview",
		Scanner:    "openreview",
		Categories: []string{"ICLR", "NeurIPS"},
	}}, nil)
	if len(sources) != 1 {
		t.Fatalf("expected one source, got %d", len(sources))
	}

	// Categories of other sources must not leak into this site's scan.
	_, err := sources[0].Fetch(context.Background(), []string{"cs.AI", "ICLR"}, time.Now())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(seen) != 1 || seen[0] != "ICLR" {
		t.Fatalf("expected only the overlapping venue to be scanned, got %v", seen)
	}

	// With no overlap at all, the configured list is the scan scope.
	seen = nil
	if _, err := sources[0].Fetch(context.Background(), []string{"cs.AI"}, time.Now()); err != nil {
		t.Fatalf("fetch without overlap: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected both configured venues, got %v", seen)
	}
}
