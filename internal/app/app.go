package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"secret-santa-bot/config"
	"secret-santa-bot/internal/domain"
	"secret-santa-bot/internal/health"
	"secret-santa-bot/internal/service"
	"secret-santa-bot/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	zcfg := zap.NewProductionConfig()
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func OpenStorage(ctx context.Context, cfg *config.Config) (domain.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return storage.NewRedis(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	}
}

type components struct {
	registry *service.ParticipantRegistry
	wishes   *service.WishFlow
	admin    *service.AdminController
	bot      *service.SecretSantaBot
}

func wire(cfg *config.Config, api service.BotAPI, store domain.Storage, rng *rand.Rand, log *zap.Logger) *components {
	registry := service.NewParticipantRegistry(store, log.Named("registry"))
	wishes := service.NewWishFlow(registry, log.Named("wishes"))
	engine := service.NewAssignmentEngine(store, rng, log.Named("engine"))
	notifier := service.NewNotifier(service.NewTelegramMessenger(api), log.Named("notifier"))
	admin := service.NewAdminController(
		service.NewAdminPolicy(cfg.Telegram.Admins),
		registry, engine, notifier,
		cfg.ConfirmTTL,
		log.Named("admin"),
	)
	return &components{
		registry: registry,
		wishes:   wishes,
		admin:    admin,
		bot:      service.NewSecretSantaBot(api, registry, wishes, admin, log.Named("bot")),
	}
}

// Run serves the bot until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	store, err := OpenStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	c := wire(cfg, api, store, rand.New(rand.NewSource(time.Now().UnixNano())), log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	healthDone := startHealth(runCtx, cfg.HealthAddr, health.NewHandler(store, c.admin), log.Named("health"))

	log.Info("bot started",
		zap.String("username", api.Self.UserName),
		zap.String("storage", cfg.Storage.Driver),
		zap.Int("admins", len(cfg.Telegram.Admins)))

	runBot(runCtx, api, c.bot, cfg.Telegram.PollTimeout)

	// storage stays open until the health server has drained
	cancel()
	<-healthDone

	log.Info("bot stopped")
	return nil
}

// startHealth serves the health endpoints in the background when addr is
// set. The returned channel is closed once the server has shut down.
func startHealth(ctx context.Context, addr string, h *health.Handler, log *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if addr == "" {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		if err := health.Serve(ctx, addr, h, log); err != nil {
			log.Error("health server stopped", zap.Error(err))
		}
	}()
	return done
}

// runBot handles updates one at a time, which serialises all state changes.
func runBot(ctx context.Context, api *tgbotapi.BotAPI, bot *service.SecretSantaBot, timeout int) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeout

	updates := api.GetUpdatesChan(u)
	defer api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			bot.HandleUpdate(ctx, update)
		}
	}
}
