package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"PaperDigest/internal/delivery"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/session"
	"PaperDigest/internal/storage"
	"PaperDigest/internal/usecase"
)

// Assigner queues existing briefings for one user on demand.
type Assigner interface {
	Assign(ctx context.Context, user domain.User) (int, error)
}

// BotDeps wires the services the command surface invokes.
type BotDeps struct {
	Token       string
	PollTimeout time.Duration
	Users       *storage.UserRepository
	Briefings   *storage.UserBriefingRepository
	Papers      *storage.PaperRepository
	Assigner    Assigner
	State       *delivery.StateMachine
	Sessions    *session.Store
	Notifier    *Notifier
	Logger      *slog.Logger
}

// Bot long-polls the Telegram API and maps chat commands onto the pipeline's
// public operations. It only consumes and produces formatted messages; all
// state lives behind the services it calls.
type Bot struct {
	token       string
	apiBase     string
	pollTimeout time.Duration
	client      *http.Client
	users       *storage.UserRepository
	briefings   *storage.UserBriefingRepository
	papers      *storage.PaperRepository
	assigner    Assigner
	state       *delivery.StateMachine
	sessions    *session.Store
	notifier    *Notifier
	logger      *slog.Logger
}

// NewBot builds the command surface.
func NewBot(deps BotDeps) *Bot {
	timeout := deps.PollTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Bot{
		token:       deps.Token,
		apiBase:     defaultAPIBase,
		pollTimeout: timeout,
		client:      &http.Client{Timeout: timeout + 10*time.Second},
		users:       deps.Users,
		briefings:   deps.Briefings,
		papers:      deps.Papers,
		assigner:    deps.Assigner,
		state:       deps.State,
		sessions:    deps.Sessions,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls for updates until ctx is done. Handler failures are reported to
// the user and logged; they never stop the loop.
func (b *Bot) Run(ctx context.Context) {
	var offset int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("poll updates failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, upd := range updates {
			offset = upd.UpdateID + 1
			if upd.Message == nil || upd.Message.Text == "" {
				continue
			}

			chatID := strconv.FormatInt(upd.Message.Chat.ID, 10)
			reply, err := b.handleCommand(ctx, chatID, upd.Message.From.Username, upd.Message.Text)
			if err != nil {
				b.logger.Warn("command failed", "chat", chatID, "error", err)
				reply = "Something went wrong, please try again."
			}
			if reply != "" {
				if err := b.notifier.SendMessage(ctx, chatID, reply); err != nil {
					b.logger.Warn("reply failed", "chat", chatID, "error", err)
				}
			}
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context, offset int64) ([]update, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates?%s", b.apiBase, b.token, url.Values{
		"offset":  []string{strconv.FormatInt(offset, 10)},
		"timeout": []string{strconv.Itoa(int(b.pollTimeout.Seconds()))},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram error: %s", resp.Status)
	}

	var payload struct {
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}

	return payload.Result, nil
}

func (b *Bot) handleCommand(ctx context.Context, chatID, username, text string) (string, error) {
	command, arg := splitCommand(text)

	user, err := b.users.GetOrCreate(ctx, chatID, username)
	if err != nil {
		return "", fmt.Errorf("load user: %w", err)
	}

	switch command {
	case "/start":
		return "Welcome to PaperDigest. Use /fields to pick research fields, /next for your next briefing, /search <query> to find papers.", nil
	case "/fields":
		return b.startFieldSelection(ctx, user)
	case "/pick":
		return b.pickField(ctx, user, arg)
	case "/done":
		return b.commitFieldSelection(ctx, user)
	case "/cancel":
		b.sessions.End(user.ExternalID)
		return "Selection cancelled.", nil
	case "/next":
		return b.nextBriefing(ctx, user)
	case "/read":
		return b.markFlag(ctx, arg, b.state.MarkRead, "Marked as read.")
	case "/interested":
		return b.markFlag(ctx, arg, b.state.MarkInterested, "Noted, thanks!")
	case "/search":
		return b.search(ctx, arg)
	case "/history":
		return b.history(ctx, user)
	case "/limit":
		return b.updateLimit(ctx, user, arg)
	case "/days":
		return b.updateHistoryDays(ctx, user, arg)
	case "/pause":
		return b.setActive(ctx, user, false)
	case "/resume":
		return b.setActive(ctx, user, true)
	default:
		return "Unknown command. Try /fields, /next, /search, /history.", nil
	}
}

func (b *Bot) startFieldSelection(ctx context.Context, user domain.User) (string, error) {
	fields, err := b.users.ActiveFields(ctx)
	if err != nil {
		return "", fmt.Errorf("load fields: %w", err)
	}

	current := make([]int64, 0, len(user.Fields))
	for _, f := range user.Fields {
		current = append(current, f.ID)
	}
	b.sessions.Begin(user.ExternalID, current)

	var sb strings.Builder
	sb.WriteString("Pick fields with /pick <number>, then /done:\n")
	for i, f := range fields {
		mark := " "
		if containsID(current, f.ID) {
			mark = "x"
		}
		name := f.DisplayName
		if name == "" {
			name = f.Name
		}
		fmt.Fprintf(&sb, "[%s] %d. %s\n", mark, i+1, name)
	}
	return sb.String(), nil
}

func (b *Bot) pickField(ctx context.Context, user domain.User, arg string) (string, error) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return "Usage: /pick <number>", nil
	}

	fields, err := b.users.ActiveFields(ctx)
	if err != nil {
		return "", fmt.Errorf("load fields: %w", err)
	}
	if index < 1 || index > len(fields) {
		return fmt.Sprintf("Pick a number between 1 and %d.", len(fields)), nil
	}

	selected, ok := b.sessions.Toggle(user.ExternalID, fields[index-1].ID)
	if !ok {
		return "No selection in progress. Start with /fields.", nil
	}
	return fmt.Sprintf("%d field(s) selected. /done to save.", len(selected)), nil
}

func (b *Bot) commitFieldSelection(ctx context.Context, user domain.User) (string, error) {
	selected, ok := b.sessions.Get(user.ExternalID)
	if !ok {
		return "No selection in progress. Start with /fields.", nil
	}

	if err := b.users.SetFields(ctx, user.ID, selected); err != nil {
		return "", fmt.Errorf("save fields: %w", err)
	}
	b.sessions.End(user.ExternalID)

	return fmt.Sprintf("Saved %d field(s). You will get briefings matching them.", len(selected)), nil
}

func (b *Bot) nextBriefing(ctx context.Context, user domain.User) (string, error) {
	items, err := b.briefings.Pending(ctx, user.ID, 1)
	if err != nil {
		return "", fmt.Errorf("load pending: %w", err)
	}

	if len(items) == 0 {
		if _, err := b.assigner.Assign(ctx, user); err != nil {
			return "", fmt.Errorf("refill backlog: %w", err)
		}
		items, err = b.briefings.Pending(ctx, user.ID, 1)
		if err != nil {
			return "", fmt.Errorf("load pending: %w", err)
		}
	}
	if len(items) == 0 {
		return "No briefings available right now, check back later.", nil
	}

	item := items[0]
	msg := usecase.FormatBriefing(item) + fmt.Sprintf("\n\n/read %d | /interested %d", item.State.ID, item.State.ID)

	// Deliver first; a briefing is consumed only once it actually reached the
	// chat.
	if err := b.notifier.SendMessage(ctx, user.ExternalID, msg); err != nil {
		return "", fmt.Errorf("deliver briefing: %w", err)
	}
	if err := b.state.MarkSent(ctx, item.State.ID); err != nil {
		return "", fmt.Errorf("mark sent: %w", err)
	}

	return "", nil
}

func (b *Bot) markFlag(ctx context.Context, arg string, mark func(context.Context, int64) error, okReply string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return "Usage: /read <id> or /interested <id>", nil
	}

	if err := mark(ctx, id); err != nil {
		if errors.Is(err, delivery.ErrUnknownBriefing) {
			return "No briefing with that id.", nil
		}
		return "", err
	}
	return okReply, nil
}

func (b *Bot) search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "Usage: /search <query>", nil
	}

	papers, err := b.papers.Search(ctx, query, 5)
	if err != nil {
		return "", fmt.Errorf("search papers: %w", err)
	}
	if len(papers) == 0 {
		return "No papers found.", nil
	}

	var sb strings.Builder
	sb.WriteString("Results:\n")
	for _, p := range papers {
		fmt.Fprintf(&sb, "- %s\n  %s\n", p.Title, p.SourceURL)
	}
	return sb.String(), nil
}

func (b *Bot) history(ctx context.Context, user domain.User) (string, error) {
	items, err := b.briefings.SentHistory(ctx, user.ID, 10)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	if len(items) == 0 {
		return "No delivered briefings yet.", nil
	}

	var sb strings.Builder
	sb.WriteString("Recently delivered:\n")
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s (%s)\n", item.Paper.Title, item.State.SentAt.Format("2006-01-02"))
	}
	return sb.String(), nil
}

func (b *Bot) updateLimit(ctx context.Context, user domain.User, arg string) (string, error) {
	limit, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return "Usage: /limit <papers per day>", nil
	}

	if err := b.users.UpdateSettings(ctx, user.ID, storage.Settings{DailyLimit: &limit}); err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	return "Daily limit updated.", nil
}

func (b *Bot) updateHistoryDays(ctx context.Context, user domain.User, arg string) (string, error) {
	days, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return "Usage: /days <history depth in days>", nil
	}

	if err := b.users.UpdateSettings(ctx, user.ID, storage.Settings{HistoryDays: &days}); err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	return "History depth updated.", nil
}

func (b *Bot) setActive(ctx context.Context, user domain.User, active bool) (string, error) {
	if err := b.users.UpdateSettings(ctx, user.ID, storage.Settings{Active: &active}); err != nil {
		return "", fmt.Errorf("update settings: %w", err)
	}
	if active {
		return "Daily briefings resumed.", nil
	}
	return "Daily briefings paused. /resume to turn them back on.", nil
}

func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, " ", 2)
	command := strings.ToLower(parts[0])
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}
	if len(parts) == 2 {
		return command, parts[1]
	}
	return command, ""
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
