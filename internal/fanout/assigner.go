// Package fanout assigns existing briefings to individual users' delivery
// queues.
package fanout

import (
	"context"
	"fmt"
	"log/slog"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/storage"
)

// BacklogFactor sizes the per-user queue relative to the daily delivery
// limit, giving the send stage multi-day runway without re-running fanout.
const BacklogFactor = 3

// Assigner creates pending user-briefing rows for one user at a time.
type Assigner struct {
	userBriefings *storage.UserBriefingRepository
	logger        *slog.Logger
}

// NewAssigner wires the user-briefing repository.
func NewAssigner(userBriefings *storage.UserBriefingRepository, logger *slog.Logger) *Assigner {
	return &Assigner{userBriefings: userBriefings, logger: logger}
}

// Assign queues up to DailyLimit×BacklogFactor briefings the user does not
// have yet, filtered by the union of the user's field keywords (no filter
// when the user has none). Created rows start unsent; delivery state is not
// touched here. Duplicate pairs are rejected by the storage uniqueness
// constraint, so concurrent calls for the same user are idempotent. Returns
// how many rows were created.
func (a *Assigner) Assign(ctx context.Context, user domain.User) (int, error) {
	limit := user.DailyLimit * BacklogFactor
	if limit <= 0 {
		return 0, nil
	}

	candidates, err := a.userBriefings.UnassignedBriefingIDs(ctx, user.ID, user.FieldKeywords(), limit)
	if err != nil {
		return 0, fmt.Errorf("select candidates for user %d: %w", user.ID, err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	created, err := a.userBriefings.CreatePending(ctx, user.ID, candidates)
	if err != nil {
		return created, fmt.Errorf("assign briefings to user %d: %w", user.ID, err)
	}

	if a.logger != nil {
		a.logger.Debug("fanout done", "user", user.ExternalID, "candidates", len(candidates), "created", created)
	}
	return created, nil
}
