package service

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type WishState int

const (
	Idle WishState = iota
	AwaitingWishText
)

func (s WishState) String() string {
	switch s {
	case AwaitingWishText:
		return "awaiting_wish_text"
	default:
		return "idle"
	}
}

// WishFlow tracks, per participant, whether the next free-text message is a wish.
type WishFlow struct {
	registry *ParticipantRegistry
	log      *zap.Logger

	mu     sync.Mutex
	states map[int64]WishState
}

func NewWishFlow(registry *ParticipantRegistry, log *zap.Logger) *WishFlow {
	return &WishFlow{
		registry: registry,
		log:      log,
		states:   make(map[int64]WishState),
	}
}

func (f *WishFlow) State(userID int64) WishState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[userID]
}

func (f *WishFlow) setState(userID int64, state WishState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if state == Idle {
		delete(f.states, userID)
		return
	}
	f.states[userID] = state
}

// Begin registers the user if needed and waits for their wish text.
func (f *WishFlow) Begin(ctx context.Context, userID int64, name string) error {
	if err := f.registry.Ensure(ctx, userID, name); err != nil {
		return err
	}
	f.setState(userID, AwaitingWishText)
	f.log.Debug("awaiting wish", zap.Int64("user_id", userID))
	return nil
}

// Submit handles free text while awaiting a wish. On a validation error the
// user stays in AwaitingWishText; on success they return to Idle.
func (f *WishFlow) Submit(ctx context.Context, userID int64, text string) (string, error) {
	wish := strings.TrimSpace(text)
	if err := f.registry.SetWish(ctx, userID, wish); err != nil {
		f.log.Info("wish rejected", zap.Int64("user_id", userID), zap.Error(err))
		return "", err
	}
	f.setState(userID, Idle)
	return wish, nil
}

// Cancel leaves AwaitingWishText without saving. It reports whether the user was waiting.
func (f *WishFlow) Cancel(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.states[userID] != AwaitingWishText {
		return false
	}
	delete(f.states, userID)
	return true
}
