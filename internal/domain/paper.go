package domain

import (
	"strings"
	"time"
)

// listSeparator joins author and keyword lists when papers are persisted.
const listSeparator = ", "

// SourceRecord is the normalized shape every source adapter produces before
// ingestion. Adapters map their provider-specific payloads into this one
// variant; nothing downstream sees raw source data.
type SourceRecord struct {
	ExternalID  string
	Source      string
	Title       string
	Authors     []string
	Abstract    string
	Keywords    []string
	PublishDate time.Time
	Venue       string
	PDFURL      string
	SourceURL   string
}

// JoinedAuthors renders the author list in persisted form.
func (r SourceRecord) JoinedAuthors() string {
	return strings.Join(r.Authors, listSeparator)
}

// JoinedKeywords renders the keyword list in persisted form.
func (r SourceRecord) JoinedKeywords() string {
	return strings.Join(r.Keywords, listSeparator)
}

// Paper is a deduplicated academic paper. Content fields are immutable once
// the row exists; identity is (Source, ExternalID).
type Paper struct {
	ID          int64
	ExternalID  string
	Source      string
	Title       string
	Authors     string
	Abstract    string
	Keywords    string
	PublishDate time.Time
	Venue       string
	PDFURL      string
	SourceURL   string
	CreatedAt   time.Time
}

// Briefing is the generated digest for a paper, at most one per paper.
type Briefing struct {
	ID        int64
	PaperID   int64
	Content   string
	Model     string
	CreatedAt time.Time
}

// UserBriefing tracks delivery state of one briefing for one user.
// Sent is monotonic: once set it is never reverted.
type UserBriefing struct {
	ID         int64
	UserID     int64
	BriefingID int64
	Sent       bool
	SentAt     time.Time
	Read       bool
	ReadAt     time.Time
	Interested bool
	CreatedAt  time.Time
}

// BriefingItem is the eagerly assembled DTO handed to delivery and the chat
// surface: the join row plus the briefing and paper it points at.
type BriefingItem struct {
	State    UserBriefing
	Briefing Briefing
	Paper    Paper
}

// ResearchField is static reference data describing a subscribable topic.
type ResearchField struct {
	ID          int64
	Name        string
	DisplayName string
	Keywords    string
	Categories  string
	Active      bool
}

// KeywordList splits the comma-separated keyword column.
func (f ResearchField) KeywordList() []string {
	return splitList(f.Keywords)
}

// CategoryList splits the comma-separated source-category column.
func (f ResearchField) CategoryList() []string {
	return splitList(f.Categories)
}

// User is a digest recipient identified by an external chat id.
type User struct {
	ID           int64
	ExternalID   string
	Username     string
	DailyLimit   int
	HistoryDays  int
	Active       bool
	Onboarded    bool
	Fields       []ResearchField
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// FieldKeywords returns the union of keywords across the user's fields.
func (u User) FieldKeywords() []string {
	return unionLists(u.Fields, ResearchField.KeywordList)
}

// FieldCategories returns the union of source categories across the user's fields.
func (u User) FieldCategories() []string {
	return unionLists(u.Fields, ResearchField.CategoryList)
}

func unionLists(fields []ResearchField, pick func(ResearchField) []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, f := range fields {
		for _, v := range pick(f) {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func splitList(joined string) []string {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
