package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/scanner"
)

const (
	openReviewBaseURL = "https://api.openreview.net"
	openReviewSource  = "openreview"
)

// OpenReviewScanner pulls conference submissions from the OpenReview API.
// Categories are venue names (ICLR, NeurIPS, ...).
type OpenReviewScanner struct {
	client     *http.Client
	baseURL    string
	maxResults int
}

// NewOpenReviewScanner wires an HTTP client; maxResults defaults to 50 per venue.
func NewOpenReviewScanner(client *http.Client) *OpenReviewScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &OpenReviewScanner{client: client, baseURL: openReviewBaseURL, maxResults: 50}
}

// Name identifies the strategy inside the registry.
func (o *OpenReviewScanner) Name() string {
	return openReviewSource
}

type openReviewNote struct {
	ID      string `json:"id"`
	CDate   int64  `json:"cdate"`
	Content struct {
		Title    string   `json:"title"`
		Authors  []string `json:"authors"`
		Abstract string   `json:"abstract"`
		Keywords []string `json:"keywords"`
		Venue    string   `json:"venue"`
		PDF      string   `json:"pdf"`
	} `json:"content"`
}

type openReviewResponse struct {
	Notes []openReviewNote `json:"notes"`
}

// Scan queries each venue and returns submissions created at or after
// req.Since.
func (o *OpenReviewScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.SourceRecord, error) {
	if len(req.Categories) == 0 {
		return nil, fmt.Errorf("no venues provided")
	}

	var results []domain.SourceRecord
	for _, venue := range req.Categories {
		notes, err := o.fetchVenue(ctx, venue)
		if err != nil {
			return nil, fmt.Errorf("venue %s: %w", venue, err)
		}

		for _, note := range notes {
			created := time.UnixMilli(note.CDate).UTC()
			if created.Before(req.Since) {
				continue
			}
			results = append(results, noteToRecord(note, venue, created))
		}
	}

	return results, nil
}

func (o *OpenReviewScanner) fetchVenue(ctx context.Context, venue string) ([]openReviewNote, error) {
	endpoint := o.baseURL + "/notes/search?" + url.Values{
		"term":    []string{venue},
		"content": []string{"all"},
		"limit":   []string{strconv.Itoa(o.maxResults)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "PaperDigest/1.0")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request notes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openreview returned %s", resp.Status)
	}

	var payload openReviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode notes: %w", err)
	}

	return payload.Notes, nil
}

func noteToRecord(note openReviewNote, venue string, created time.Time) domain.SourceRecord {
	recordVenue := note.Content.Venue
	if recordVenue == "" {
		recordVenue = venue
	}

	pdfURL := note.Content.PDF
	if pdfURL != "" && pdfURL[0] == '/' {
		pdfURL = openReviewBaseURL + pdfURL
	}

	return domain.SourceRecord{
		ExternalID:  note.ID,
		Source:      openReviewSource,
		Title:       note.Content.Title,
		Authors:     note.Content.Authors,
		Abstract:    note.Content.Abstract,
		Keywords:    note.Content.Keywords,
		PublishDate: created,
		Venue:       recordVenue,
		PDFURL:      pdfURL,
		SourceURL:   "https://openreview.net/forum?id=" + note.ID,
	}
}
