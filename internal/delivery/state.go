// Package delivery owns per-(user,briefing) delivery status transitions.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/storage"
)

// ErrUnknownBriefing is returned for state transitions on identifiers that do
// not exist. Callers surface this to the user; it is never fatal.
var ErrUnknownBriefing = errors.New("delivery: unknown user briefing")

// StateMachine applies delivery-state transitions. Read and interested may be
// set regardless of sent status; the data layer is deliberately permissive
// here (a briefing can be marked read via a direct reference without ever
// being delivered).
type StateMachine struct {
	userBriefings *storage.UserBriefingRepository
}

// NewStateMachine wires the user-briefing repository.
func NewStateMachine(userBriefings *storage.UserBriefingRepository) *StateMachine {
	return &StateMachine{userBriefings: userBriefings}
}

// MarkSent records delivery. Idempotent; sent is monotonic and the first
// timestamp wins.
func (m *StateMachine) MarkSent(ctx context.Context, id int64) error {
	return m.translate(m.userBriefings.MarkSent(ctx, id))
}

// MarkRead records that the user read the briefing. A repeat call is a safe
// no-op that keeps the original read_at.
func (m *StateMachine) MarkRead(ctx context.Context, id int64) error {
	return m.translate(m.userBriefings.MarkRead(ctx, id))
}

// MarkInterested flags the briefing. No timestamp is captured, matching the
// asymmetry with read in the delivery model.
func (m *StateMachine) MarkInterested(ctx context.Context, id int64) error {
	return m.translate(m.userBriefings.MarkInterested(ctx, id))
}

// Get loads the current state of one assignment.
func (m *StateMachine) Get(ctx context.Context, id int64) (domain.UserBriefing, error) {
	ub, err := m.userBriefings.Get(ctx, id)
	if err != nil {
		return domain.UserBriefing{}, m.translate(err)
	}
	return ub, nil
}

func (m *StateMachine) translate(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownBriefing
	}
	if err != nil {
		return fmt.Errorf("delivery state: %w", err)
	}
	return nil
}
