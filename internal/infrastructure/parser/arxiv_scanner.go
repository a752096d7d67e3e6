package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/scanner"
)

const (
	arxivBaseURL = "https://arxiv.org"
	arxivSource  = "arxiv"
)

var dateExpr = regexp.MustCompile(`\d{1,2} [A-Za-z]{3} \d{4}`)

// ArxivScanner crawls category listing pages and extracts papers published
// since the requested time.
type ArxivScanner struct {
	client   *http.Client
	baseURL  string
	pageSize int
}

// NewArxivScanner wires an HTTP client; pageSize defaults to 200.
func NewArxivScanner(client *http.Client) *ArxivScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArxivScanner{client: client, baseURL: arxivBaseURL, pageSize: 200}
}

// Name identifies the strategy inside the registry.
func (a *ArxivScanner) Name() string {
	return arxivSource
}

// Scan walks each category's recent listing and returns all papers published
// at or after req.Since. Listings are newest-first, so the walk stops at the
// first older entry.
func (a *ArxivScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.SourceRecord, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no categories provided")
	}

	since := req.Since.UTC().Truncate(24 * time.Hour)
	results := make([]domain.SourceRecord, 0)
	seen := map[string]struct{}{}

	for _, cat := range req.Categories {
		skip := 0
		for {
			pageURL, err := buildPageURL(a.baseURL+"/list/"+cat+"/recent", skip, a.pageSize)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat, err)
			}

			doc, err := a.fetchDocument(ctx, pageURL)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", cat, err)
			}

			pageRecords, shouldContinue := a.extractRecords(doc, since, cat)
			for _, rec := range pageRecords {
				if _, ok := seen[rec.ExternalID]; ok {
					continue
				}
				seen[rec.ExternalID] = struct{}{}
				results = append(results, rec)
			}

			if !shouldContinue {
				break
			}
			skip += a.pageSize
		}
	}

	return results, nil
}

func (a *ArxivScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PaperDigest/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

func (a *ArxivScanner) extractRecords(doc *goquery.Document, since time.Time, category string) ([]domain.SourceRecord, bool) {
	var (
		collected    []domain.SourceRecord
		continueScan = true
		processed    int
	)

	doc.Find("dl > dt").EachWithBreak(func(i int, dt *goquery.Selection) bool {
		dd := dt.Next()
		processed++

		rec, err := parseEntry(dt, dd, category)
		if err != nil {
			return true
		}

		day := rec.PublishDate.UTC().Truncate(24 * time.Hour)
		if day.Before(since) {
			continueScan = false
			return false
		}
		collected = append(collected, rec)

		return true
	})

	if processed < a.pageSize {
		continueScan = false
	}

	return collected, continueScan
}

func parseEntry(dt, dd *goquery.Selection, category string) (domain.SourceRecord, error) {
	id := strings.TrimSpace(dt.Find("a[href*=\"/abs/\"]").First().Text())
	if id == "" {
		if href, exists := dt.Find("a[href*=\"/abs/\"]").First().Attr("href"); exists {
			id = strings.TrimPrefix(href, "/abs/")
		}
	}
	id = strings.TrimPrefix(id, "arXiv:")

	link := dt.Find("a[href*=\"/abs/\"]").First()
	href, _ := link.Attr("href")
	if !strings.HasPrefix(href, "http") {
		href = strings.TrimSuffix(arxivBaseURL, "/") + href
	}

	title := strings.TrimSpace(dd.Find(".list-title").First().Text())
	title = strings.TrimSpace(strings.TrimPrefix(title, "Title:"))

	// Titles carry class="list-title mathjax" too; only the abstract lives in
	// a <p>.
	abstract := dd.Find("p.mathjax").First().Text()
	abstract = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(abstract), "Abstract:"))

	var authors []string
	dd.Find(".list-authors a").Each(func(i int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			authors = append(authors, name)
		}
	})

	dateText := strings.TrimSpace(dd.Find(".list-date").First().Text())
	if dateText == "" {
		dateText = strings.TrimSpace(dd.Find(".list-dateline").First().Text())
	}

	publishedAt := time.Now().UTC()
	if match := dateExpr.FindString(dateText); match != "" {
		if parsed, err := time.Parse("2 Jan 2006", match); err == nil {
			publishedAt = parsed
		}
	}

	if id == "" {
		return domain.SourceRecord{}, fmt.Errorf("entry without identifier")
	}

	return domain.SourceRecord{
		ExternalID:  id,
		Source:      arxivSource,
		Title:       title,
		Authors:     authors,
		Abstract:    abstract,
		Keywords:    []string{category},
		PublishDate: publishedAt,
		Venue:       "arXiv",
		PDFURL:      strings.Replace(href, "/abs/", "/pdf/", 1),
		SourceURL:   href,
	}, nil
}

func buildPageURL(base string, skip, pageSize int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid listing url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("skip", strconv.Itoa(skip))
	query.Set("show", strconv.Itoa(pageSize))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
