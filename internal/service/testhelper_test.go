package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"secret-santa-bot/internal/domain"
	"secret-santa-bot/internal/storage"

	"github.com/alicebob/miniredis/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID int64 = 1000

// fakeAPI records everything the bot sends. Messages to chats in failFor fail.
type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failFor  map[int64]bool
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{failFor: make(map[int64]bool)}
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok && f.failFor[m.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

// messagesTo returns the texts of new messages sent to chatID.
func (f *fakeAPI) messagesTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, c := range f.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

func (f *fakeAPI) lastMessageTo(chatID int64) tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if m, ok := f.sent[i].(tgbotapi.MessageConfig); ok && m.ChatID == chatID {
			return m
		}
	}
	return tgbotapi.MessageConfig{}
}

func (f *fakeAPI) lastEdit() tgbotapi.EditMessageTextConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if e, ok := f.sent[i].(tgbotapi.EditMessageTextConfig); ok {
			return e
		}
	}
	return tgbotapi.EditMessageTextConfig{}
}

func (f *fakeAPI) lastCallbackAnswer() tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if cb, ok := f.requests[i].(tgbotapi.CallbackConfig); ok {
			return cb
		}
	}
	return tgbotapi.CallbackConfig{}
}

type testEnv struct {
	ctx      context.Context
	store    domain.Storage
	api      *fakeAPI
	registry *ParticipantRegistry
	wishes   *WishFlow
	engine   *AssignmentEngine
	admin    *AdminController
	bot      *SecretSantaBot
}

func newTestStorage(t *testing.T) domain.Storage {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := storage.NewRedis(context.Background(), mr.Host(), mr.Port(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	store := newTestStorage(t)
	api := newFakeAPI()

	registry := NewParticipantRegistry(store, log)
	wishes := NewWishFlow(registry, log)
	engine := NewAssignmentEngine(store, rand.New(rand.NewSource(1)), log)
	notifier := NewNotifier(NewTelegramMessenger(api), log)
	admin := NewAdminController(NewAdminPolicy([]int64{adminID}), registry, engine, notifier, 5*time.Minute, log)

	return &testEnv{
		ctx:      context.Background(),
		store:    store,
		api:      api,
		registry: registry,
		wishes:   wishes,
		engine:   engine,
		admin:    admin,
		bot:      NewSecretSantaBot(api, registry, wishes, admin, log),
	}
}

// join registers participants 1..n named "P1".."Pn".
func (e *testEnv) join(t *testing.T, names map[int64]string) {
	t.Helper()
	for id, name := range names {
		require.NoError(t, e.registry.Upsert(e.ctx, id, name))
	}
}

func (e *testEnv) assignments(t *testing.T) map[int64]int64 {
	t.Helper()
	got, err := e.store.GetAllAssignments(e.ctx)
	require.NoError(t, err)
	return got
}

func (e *testEnv) participantIDs(t *testing.T) []int64 {
	t.Helper()
	all, err := e.registry.Participants(e.ctx)
	require.NoError(t, err)
	ids := make([]int64, len(all))
	for i, p := range all {
		ids[i] = p.UserID
	}
	return ids
}

func threeFriends() map[int64]string {
	return map[int64]string{1: "A", 2: "B", 3: "C"}
}
