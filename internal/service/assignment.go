package service

import (
	"context"
	"math/rand"
	"sync"

	"secret-santa-bot/internal/domain"

	"go.uber.org/zap"
)

// Derange shuffles ids until no position keeps its original element and
// returns the attempt count. ids must hold at least two distinct values.
func Derange(ctx context.Context, ids []int64, rng *rand.Rand) ([]int64, int, error) {
	receivers := make([]int64, len(ids))
	copy(receivers, ids)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, attempt - 1, err
		}

		rng.Shuffle(len(receivers), func(i, j int) {
			receivers[i], receivers[j] = receivers[j], receivers[i]
		})

		valid := true
		for i := range ids {
			if ids[i] == receivers[i] {
				valid = false
				break
			}
		}
		if valid {
			return receivers, attempt, nil
		}
	}
}

// AssignmentEngine owns the draw. Every read-then-write on the assignment
// set runs under mu.
type AssignmentEngine struct {
	storage domain.Storage
	log     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewAssignmentEngine(storage domain.Storage, rng *rand.Rand, log *zap.Logger) *AssignmentEngine {
	return &AssignmentEngine{
		storage: storage,
		rng:     rng,
		log:     log,
	}
}

// Draw pairs every id with another one and persists the result. It refuses
// to run while a draw already exists.
func (e *AssignmentEngine) Draw(ctx context.Context, participants []int64) ([]domain.Assignment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drawLocked(ctx, participants)
}

func (e *AssignmentEngine) drawLocked(ctx context.Context, participants []int64) ([]domain.Assignment, error) {
	if len(participants) < domain.MinParticipants {
		return nil, domain.ErrInsufficientParticipants
	}

	drawn, err := e.hasDrawLocked(ctx)
	if err != nil {
		return nil, err
	}
	if drawn {
		return nil, domain.ErrAlreadyDrawn
	}

	receivers, attempts, err := Derange(ctx, participants, e.rng)
	if err != nil {
		return nil, err
	}

	assignments := make([]domain.Assignment, len(participants))
	for i, giverID := range participants {
		assignments[i] = domain.Assignment{GiverID: giverID, ReceiverID: receivers[i]}
	}

	if err := e.storage.ReplaceAssignments(ctx, assignments); err != nil {
		return nil, err
	}

	e.log.Info("draw completed", zap.Int("participants", len(participants)), zap.Int("attempts", attempts))
	return assignments, nil
}

// Reset clears the draw. Clearing an empty draw succeeds.
func (e *AssignmentEngine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resetLocked(ctx)
}

func (e *AssignmentEngine) resetLocked(ctx context.Context) error {
	if err := e.storage.DeleteAllAssignments(ctx); err != nil {
		return err
	}
	e.log.Info("draw reset")
	return nil
}

// Results returns the current draw or domain.ErrNoDraw.
func (e *AssignmentEngine) Results(ctx context.Context) (map[int64]int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.storage.GetAllAssignments(ctx)
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return nil, domain.ErrNoDraw
	}
	return current, nil
}

func (e *AssignmentEngine) hasDrawLocked(ctx context.Context) (bool, error) {
	current, err := e.storage.GetAllAssignments(ctx)
	if err != nil {
		return false, err
	}
	return len(current) > 0, nil
}

// withLock runs fn while holding the draw lock. fn may use the *Locked methods.
func (e *AssignmentEngine) withLock(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}
