package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"PaperDigest/internal/briefing"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/ingest"
	"PaperDigest/internal/ports"
	"PaperDigest/internal/storage"
)

// arXiv publishes with a delay (US-Eastern afternoon), so a one-day window
// routinely misses papers. Fetch windows are widened to at least this many
// days.
const minFetchDays = 2

// Assigner queues existing briefings for one user.
type Assigner interface {
	Assign(ctx context.Context, user domain.User) (int, error)
}

// StateMachine applies delivery-state transitions.
type StateMachine interface {
	MarkSent(ctx context.Context, id int64) error
}

// PipelineDeps wires all collaborators into the orchestration pipeline.
type PipelineDeps struct {
	Sources       []ports.PaperSource
	Ingest        *ingest.Service
	Users         *storage.UserRepository
	UserBriefings *storage.UserBriefingRepository
	Generator     *briefing.Generator
	Assigner      Assigner
	State         StateMachine
	Notifier      ports.Notifier
	PacingDelay   time.Duration
	Logger        *slog.Logger
}

// Pipeline implements the three independently idempotent stages: fetch,
// generate, send. Each stage can run standalone or on its own timer; their
// correctness rests on storage uniqueness constraints, not on mutual
// exclusion between overlapping runs.
type Pipeline struct {
	sources       []ports.PaperSource
	ingest        *ingest.Service
	users         *storage.UserRepository
	userBriefings *storage.UserBriefingRepository
	generator     *briefing.Generator
	assigner      Assigner
	state         StateMachine
	notifier      ports.Notifier
	pacingDelay   time.Duration
	logger        *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		sources:       deps.Sources,
		ingest:        deps.Ingest,
		users:         deps.Users,
		userBriefings: deps.UserBriefings,
		generator:     deps.Generator,
		assigner:      deps.Assigner,
		state:         deps.State,
		notifier:      deps.Notifier,
		pacingDelay:   deps.PacingDelay,
		logger:        deps.Logger,
	}
}

// RunFetch performs one shared ingestion pass per source, covering the union
// of all active users' field categories and the deepest configured history
// window. Per-source failures are logged and skipped; the other sources
// still ingest.
func (p *Pipeline) RunFetch(ctx context.Context) error {
	users, err := p.users.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("load active users: %w", err)
	}

	categories, maxDays := fetchScope(users)
	if len(categories) == 0 {
		p.warn("no research fields configured for any user, skipping fetch")
		return nil
	}

	since := time.Now().AddDate(0, 0, -maxDays)
	total := 0

	for _, source := range p.sources {
		records, err := source.Fetch(ctx, categories, since)
		if err != nil {
			p.warn("source fetch failed", "source", source.Name(), "error", err)
			continue
		}

		inserted, err := p.ingest.Ingest(ctx, records)
		if err != nil {
			p.warn("source ingestion failed", "source", source.Name(), "error", err)
			continue
		}

		p.info("source ingested", "source", source.Name(), "fetched", len(records), "new", len(inserted))
		total += len(inserted)
	}

	p.info("fetch stage done", "new_papers", total, "days", maxDays)
	return nil
}

// RunGenerate produces briefings for the union of all active users'
// subscribed fields, capped per run by the generator.
func (p *Pipeline) RunGenerate(ctx context.Context) error {
	users, err := p.users.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("load active users: %w", err)
	}

	fields := fieldUnion(users)
	created, err := p.generator.Generate(ctx, fields)
	if err != nil {
		return fmt.Errorf("generate briefings: %w", err)
	}

	p.info("generate stage done", "created", len(created), "fields", len(fields))
	return nil
}

// RunSend delivers pending briefings to every active user, up to each user's
// daily limit, pacing consecutive messages. A failure for one user is logged
// and does not abort the remaining users.
func (p *Pipeline) RunSend(ctx context.Context) error {
	users, err := p.users.ActiveUsers(ctx)
	if err != nil {
		return fmt.Errorf("load active users: %w", err)
	}

	for _, user := range users {
		if err := p.sendToUser(ctx, user); err != nil {
			p.warn("send failed for user", "user", user.ExternalID, "error", err)
		}
	}

	p.info("send stage done", "users", len(users))
	return nil
}

func (p *Pipeline) sendToUser(ctx context.Context, user domain.User) error {
	pending, err := p.userBriefings.CountPending(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("count backlog: %w", err)
	}

	if pending == 0 {
		if _, err := p.assigner.Assign(ctx, user); err != nil {
			return fmt.Errorf("refill backlog: %w", err)
		}
	}

	items, err := p.userBriefings.Pending(ctx, user.ID, user.DailyLimit)
	if err != nil {
		return fmt.Errorf("load pending: %w", err)
	}
	if len(items) == 0 {
		p.debug("nothing to deliver", "user", user.ExternalID)
		return nil
	}

	for i, item := range items {
		if err := p.notifier.SendMessage(ctx, user.ExternalID, FormatBriefing(item)); err != nil {
			return fmt.Errorf("deliver briefing %d: %w", item.State.ID, err)
		}

		if err := p.state.MarkSent(ctx, item.State.ID); err != nil {
			return fmt.Errorf("mark sent %d: %w", item.State.ID, err)
		}

		if i < len(items)-1 && p.pacingDelay > 0 {
			time.Sleep(p.pacingDelay)
		}
	}

	p.info("delivered briefings", "user", user.ExternalID, "count", len(items))
	return nil
}

// RunOnce executes one or all stages by name: fetch, generate, send, all.
func (p *Pipeline) RunOnce(ctx context.Context, stage string) error {
	switch stage {
	case "fetch":
		return p.RunFetch(ctx)
	case "generate":
		return p.RunGenerate(ctx)
	case "send":
		return p.RunSend(ctx)
	case "all", "":
		if err := p.RunFetch(ctx); err != nil {
			return err
		}
		if err := p.RunGenerate(ctx); err != nil {
			return err
		}
		return p.RunSend(ctx)
	default:
		return fmt.Errorf("unknown stage %q", stage)
	}
}

// FormatBriefing renders one briefing item as a chat message.
func FormatBriefing(item domain.BriefingItem) string {
	msg := "*Daily Paper Briefing*\n\n" + item.Briefing.Content
	if item.Paper.SourceURL != "" {
		msg += "\n\n[Source](" + item.Paper.SourceURL + ")"
		if item.Paper.PDFURL != "" {
			msg += " | [PDF](" + item.Paper.PDFURL + ")"
		}
	}
	return msg
}

// fetchScope computes the union of field categories across users and the
// largest history depth, widened to the minimum fetch window.
func fetchScope(users []domain.User) ([]string, int) {
	seen := map[string]struct{}{}
	var categories []string
	maxDays := 1

	for _, user := range users {
		for _, cat := range user.FieldCategories() {
			if _, ok := seen[cat]; ok {
				continue
			}
			seen[cat] = struct{}{}
			categories = append(categories, cat)
		}
		if user.HistoryDays > maxDays {
			maxDays = user.HistoryDays
		}
	}

	if maxDays < minFetchDays {
		maxDays = minFetchDays
	}
	return categories, maxDays
}

func fieldUnion(users []domain.User) []domain.ResearchField {
	seen := map[int64]struct{}{}
	var fields []domain.ResearchField
	for _, user := range users {
		for _, f := range user.Fields {
			if _, ok := seen[f.ID]; ok {
				continue
			}
			seen[f.ID] = struct{}{}
			fields = append(fields, f)
		}
	}
	return fields
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
