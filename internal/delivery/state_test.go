package delivery

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/storage"
)

func newStateMachine(t *testing.T) (*StateMachine, int64) {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "digest.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	users := storage.NewUserRepository(db)
	papers := storage.NewPaperRepository(db)
	briefings := storage.NewBriefingRepository(db)
	userBriefings := storage.NewUserBriefingRepository(db)

	user, err := users.GetOrCreate(ctx, "chat-1", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	paper, _, err := papers.InsertIfNew(ctx, domain.SourceRecord{
		ExternalID:  "2501.00001",
		Source:      "arxiv",
		Title:       "State Paper",
		PublishDate: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed paper: %v", err)
	}
	briefing, _, err := briefings.Create(ctx, paper.ID, "digest", "test")
	if err != nil {
		t.Fatalf("seed briefing: %v", err)
	}
	if _, err := userBriefings.CreatePending(ctx, user.ID, []int64{briefing.ID}); err != nil {
		t.Fatalf("seed assignment: %v", err)
	}

	items, err := userBriefings.Pending(ctx, user.ID, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("load pending: %v (%d items)", err, len(items))
	}

	return NewStateMachine(userBriefings), items[0].State.ID
}

func TestMarkReadIsIdempotent(t *testing.T) {
	t.Parallel()

	sm, id := newStateMachine(t)
	ctx := context.Background()

	if err := sm.MarkRead(ctx, id); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	first, err := sm.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !first.Read || first.ReadAt.IsZero() {
		t.Fatalf("read state not recorded: %+v", first)
	}

	if err := sm.MarkRead(ctx, id); err != nil {
		t.Fatalf("repeat mark read: %v", err)
	}
	second, err := sm.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after repeat: %v", err)
	}
	if !second.ReadAt.Equal(first.ReadAt) {
		t.Fatalf("read timestamp changed on repeat: %v vs %v", first.ReadAt, second.ReadAt)
	}
}

func TestReadAllowedBeforeSent(t *testing.T) {
	t.Parallel()

	sm, id := newStateMachine(t)
	ctx := context.Background()

	if err := sm.MarkRead(ctx, id); err != nil {
		t.Fatalf("mark read before send: %v", err)
	}

	state, err := sm.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Sent {
		t.Fatal("read must not imply sent")
	}
	if !state.Read {
		t.Fatal("read flag missing")
	}
}

func TestMarkInterestedHasNoTimestamp(t *testing.T) {
	t.Parallel()

	sm, id := newStateMachine(t)
	ctx := context.Background()

	if err := sm.MarkInterested(ctx, id); err != nil {
		t.Fatalf("mark interested: %v", err)
	}

	state, err := sm.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !state.Interested {
		t.Fatal("interested flag missing")
	}
	if !state.ReadAt.IsZero() || !state.SentAt.IsZero() {
		t.Fatalf("interested must not touch other timestamps: %+v", state)
	}
}

func TestUnknownBriefingIsReported(t *testing.T) {
	t.Parallel()

	sm, _ := newStateMachine(t)
	ctx := context.Background()

	if err := sm.MarkSent(ctx, 9999); !errors.Is(err, ErrUnknownBriefing) {
		t.Fatalf("expected ErrUnknownBriefing from MarkSent, got %v", err)
	}
	if err := sm.MarkRead(ctx, 9999); !errors.Is(err, ErrUnknownBriefing) {
		t.Fatalf("expected ErrUnknownBriefing from MarkRead, got %v", err)
	}
	if _, err := sm.Get(ctx, 9999); !errors.Is(err, ErrUnknownBriefing) {
		t.Fatalf("expected ErrUnknownBriefing from Get, got %v", err)
	}
}
