package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"secret-santa-bot/internal/domain"

	"go.uber.org/zap"
)

// Authorizer decides who may run admin operations.
type Authorizer interface {
	IsAdmin(userID int64) bool
}

// AdminPolicy authorizes a fixed set of user ids.
type AdminPolicy map[int64]struct{}

func NewAdminPolicy(ids []int64) AdminPolicy {
	p := make(AdminPolicy, len(ids))
	for _, id := range ids {
		p[id] = struct{}{}
	}
	return p
}

func (p AdminPolicy) IsAdmin(userID int64) bool {
	_, ok := p[userID]
	return ok
}

type DrawReport struct {
	Assignments []domain.Assignment
	Delivery    DeliveryReport
}

type ResultLine struct {
	Giver    domain.Participant
	Receiver domain.Participant
}

// DeleteOutcome describes what DeleteParticipant or ConfirmDelete did.
// NeedsConfirmation means nothing changed yet and the admin must confirm.
type DeleteOutcome struct {
	Target            domain.Participant
	NeedsConfirmation bool
	Deleted           bool
	DrawDiscarded     bool
}

type pendingDelete struct {
	targetID  int64
	expiresAt time.Time
}

// AdminController gates and orchestrates every privileged operation.
type AdminController struct {
	auth     Authorizer
	registry *ParticipantRegistry
	engine   *AssignmentEngine
	notifier *Notifier
	log      *zap.Logger

	confirmTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingDelete
}

func NewAdminController(
	auth Authorizer,
	registry *ParticipantRegistry,
	engine *AssignmentEngine,
	notifier *Notifier,
	confirmTTL time.Duration,
	log *zap.Logger,
) *AdminController {
	return &AdminController{
		auth:       auth,
		registry:   registry,
		engine:     engine,
		notifier:   notifier,
		log:        log,
		confirmTTL: confirmTTL,
		now:        time.Now,
		pending:    make(map[int64]pendingDelete),
	}
}

func (a *AdminController) IsAdmin(userID int64) bool {
	return a.auth.IsAdmin(userID)
}

func (a *AdminController) authorize(actorID int64, op string) error {
	if a.auth.IsAdmin(actorID) {
		return nil
	}
	a.log.Warn("admin operation denied", zap.Int64("actor_id", actorID), zap.String("op", op))
	return domain.ErrNotAdmin
}

func (a *AdminController) ListParticipants(ctx context.Context, actorID int64) ([]domain.ParticipantSummary, error) {
	if err := a.authorize(actorID, "list"); err != nil {
		return nil, err
	}
	return a.registry.List(ctx)
}

// Draw runs the draw over the current participants and notifies every giver.
func (a *AdminController) Draw(ctx context.Context, actorID int64) (*DrawReport, error) {
	if err := a.authorize(actorID, "draw"); err != nil {
		return nil, err
	}

	var (
		participants []*domain.Participant
		assignments  []domain.Assignment
	)
	err := a.engine.withLock(func() error {
		var err error
		participants, err = a.registry.Participants(ctx)
		if err != nil {
			return err
		}
		ids := make([]int64, len(participants))
		for i, p := range participants {
			ids[i] = p.UserID
		}
		assignments, err = a.engine.drawLocked(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("draw requested", zap.Int64("actor_id", actorID), zap.Int("pairs", len(assignments)))
	return &DrawReport{
		Assignments: assignments,
		Delivery:    a.notifier.Dispatch(ctx, assignments, byID(participants)),
	}, nil
}

// Resend delivers the existing draw again.
func (a *AdminController) Resend(ctx context.Context, actorID int64) (*DrawReport, error) {
	if err := a.authorize(actorID, "resend"); err != nil {
		return nil, err
	}

	current, err := a.engine.Results(ctx)
	if err != nil {
		return nil, err
	}
	participants, err := a.registry.Participants(ctx)
	if err != nil {
		return nil, err
	}

	assignments := sortedAssignments(current)
	return &DrawReport{
		Assignments: assignments,
		Delivery:    a.notifier.Dispatch(ctx, assignments, byID(participants)),
	}, nil
}

// Results resolves the current draw to names, ordered by giver name.
func (a *AdminController) Results(ctx context.Context, actorID int64) ([]ResultLine, error) {
	if err := a.authorize(actorID, "results"); err != nil {
		return nil, err
	}

	current, err := a.engine.Results(ctx)
	if err != nil {
		return nil, err
	}
	participants, err := a.registry.Participants(ctx)
	if err != nil {
		return nil, err
	}
	known := byID(participants)

	lines := make([]ResultLine, 0, len(current))
	for _, assignment := range sortedAssignments(current) {
		lines = append(lines, ResultLine{
			Giver:    lookup(known, assignment.GiverID),
			Receiver: lookup(known, assignment.ReceiverID),
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].Giver.Name < lines[j].Giver.Name
	})
	return lines, nil
}

func (a *AdminController) Reset(ctx context.Context, actorID int64) error {
	if err := a.authorize(actorID, "reset"); err != nil {
		return err
	}
	if err := a.engine.Reset(ctx); err != nil {
		return err
	}
	a.log.Info("draw reset by admin", zap.Int64("actor_id", actorID))
	return nil
}

// DeleteParticipant removes the target at once when there is no draw.
// Otherwise it records a pending confirmation and changes nothing.
func (a *AdminController) DeleteParticipant(ctx context.Context, actorID, targetID int64) (*DeleteOutcome, error) {
	if err := a.authorize(actorID, "delete"); err != nil {
		return nil, err
	}

	var outcome *DeleteOutcome
	err := a.engine.withLock(func() error {
		target, err := a.registry.Get(ctx, targetID)
		if err != nil {
			return err
		}
		outcome = &DeleteOutcome{Target: *target}

		drawn, err := a.engine.hasDrawLocked(ctx)
		if err != nil {
			return err
		}
		if drawn {
			a.setPending(actorID, targetID)
			outcome.NeedsConfirmation = true
			return nil
		}

		if err := a.registry.Remove(ctx, targetID); err != nil {
			return err
		}
		outcome.Deleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome.Deleted {
		a.log.Info("participant deleted", zap.Int64("actor_id", actorID), zap.Int64("target_id", targetID))
	}
	return outcome, nil
}

// ConfirmDelete discards the whole draw and then deletes the target. It only
// accepts the target of this admin's live pending confirmation.
func (a *AdminController) ConfirmDelete(ctx context.Context, actorID, targetID int64) (*DeleteOutcome, error) {
	if err := a.authorize(actorID, "confirm_delete"); err != nil {
		return nil, err
	}
	if !a.takePending(actorID, targetID) {
		return nil, domain.ErrNoPendingConfirmation
	}

	var outcome *DeleteOutcome
	err := a.engine.withLock(func() error {
		target, err := a.registry.Get(ctx, targetID)
		if err != nil {
			return err
		}
		outcome = &DeleteOutcome{Target: *target}

		drawn, err := a.engine.hasDrawLocked(ctx)
		if err != nil {
			return err
		}
		if drawn {
			if err := a.engine.resetLocked(ctx); err != nil {
				return err
			}
			outcome.DrawDiscarded = true
		}

		if err := a.registry.Remove(ctx, targetID); err != nil {
			return err
		}
		outcome.Deleted = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("participant deleted with draw reset",
		zap.Int64("actor_id", actorID),
		zap.Int64("target_id", targetID),
		zap.Bool("draw_discarded", outcome.DrawDiscarded))
	return outcome, nil
}

// CancelDelete drops the pending confirmation, if any. Nothing else changes.
func (a *AdminController) CancelDelete(actorID int64) error {
	if err := a.authorize(actorID, "cancel_delete"); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.pending, actorID)
	a.mu.Unlock()
	return nil
}

// setPending supersedes any earlier prompt of the same admin.
func (a *AdminController) setPending(actorID, targetID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[actorID] = pendingDelete{
		targetID:  targetID,
		expiresAt: a.now().Add(a.confirmTTL),
	}
}

func (a *AdminController) takePending(actorID, targetID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, ok := a.pending[actorID]
	if !ok || p.targetID != targetID {
		return false
	}
	delete(a.pending, actorID)
	return a.now().Before(p.expiresAt)
}

// Status is available to everyone: participant count and whether a draw exists.
func (a *AdminController) Status(ctx context.Context) (int, bool, error) {
	participants, err := a.registry.Participants(ctx)
	if err != nil {
		return 0, false, err
	}
	_, err = a.engine.Results(ctx)
	switch {
	case errors.Is(err, domain.ErrNoDraw):
		return len(participants), false, nil
	case err != nil:
		return 0, false, err
	}
	return len(participants), true, nil
}

func byID(participants []*domain.Participant) map[int64]*domain.Participant {
	m := make(map[int64]*domain.Participant, len(participants))
	for _, p := range participants {
		m[p.UserID] = p
	}
	return m
}

func lookup(known map[int64]*domain.Participant, userID int64) domain.Participant {
	if p, ok := known[userID]; ok {
		return *p
	}
	return domain.Participant{UserID: userID}
}

func sortedAssignments(current map[int64]int64) []domain.Assignment {
	assignments := make([]domain.Assignment, 0, len(current))
	for giverID, receiverID := range current {
		assignments = append(assignments, domain.Assignment{GiverID: giverID, ReceiverID: receiverID})
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].GiverID < assignments[j].GiverID
	})
	return assignments
}
