package ports

import (
	"context"
	"time"

	"PaperDigest/internal/domain"
)

// PaperSource pulls fresh paper records from one upstream provider. Sources
// are invoked independently; a failing source must not take down the others.
type PaperSource interface {
	Name() string
	Fetch(ctx context.Context, categories []string, since time.Time) ([]domain.SourceRecord, error)
}

// BriefingClient generates briefing prose for a single paper. Failures are
// absorbed by the caller, which substitutes a deterministic fallback summary.
type BriefingClient interface {
	GenerateBriefing(ctx context.Context, title, authors, abstract, venue string) (string, error)
}

// Notifier delivers one formatted message to a user's chat endpoint.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Scheduler drives a recurring job at a fixed cadence.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
