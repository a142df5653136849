package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"luminar-api/config"
	"luminar-api/database"
	"luminar-api/handlers"
	"luminar-api/logger"
	"luminar-api/models"
	"luminar-api/services"
	"luminar-api/utils"
	"luminar-api/workers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server with its background jobs",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database, cfg.Debug)
	if err != nil {
		return err
	}
	if err := models.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	rdb, err := database.OpenRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
	}

	identity, challenge, payout, err := gates(cfg)
	if err != nil {
		return err
	}
	store, packDir, err := packStore(ctx, cfg)
	if err != nil {
		return err
	}

	claims := services.NewClaimService(db, payout, cfg.Solana.ConfirmTimeout)
	chapters := services.NewChapterService(db, store)
	deps := handlers.Deps{
		Identity:      identity,
		Challenge:     challenge,
		Replay:        replayGuard(rdb, cfg.Turnstile.ReplayTTL),
		Users:         services.NewUserService(db, identity),
		Clues:         services.NewClueService(db, cfg.Game.AnswerCooldown),
		Qualification: services.NewQualificationService(db),
		Claims:        claims,
		Chapters:      chapters,
		Progress:      services.NewProgressService(db),
		PackDir:       packDir,
	}

	scheduler := services.NewScheduler(chapters, cfg.Scheduler.Interval, cfg.Scheduler.AutoEnd, cfg.Scheduler.PoolSize)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	reconciler := workers.NewClaimReconciler(claims, cfg.Scheduler.ReconcileInterval, cfg.Game.ClaimGrace)
	reconciler.Start(ctx)

	app := handlers.NewApp(cfg)
	handlers.SetupRoutes(app, cfg, deps)

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- app.Listen(cfg.Server.Address())
	}()
	logger.Info("✅ Server running",
		zap.String("address", cfg.Server.Address()),
		zap.Bool("dev_mode", cfg.DevMode),
		zap.Bool("coming_soon", cfg.ComingSoon),
	)

	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if err != nil {
			logger.Error("Server error", err)
		}
		stop()
	}

	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Server shutdown failed", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("Scheduler shutdown failed", err)
	}
	<-reconciler.Done()
	return nil
}

// gates picks the identity, bot-check and payout implementations. Dev mode
// uses local stand-ins that need no credentials.
func gates(cfg *config.Config) (services.IdentityProvider, services.ChallengeVerifier, services.Payout, error) {
	if cfg.DevMode {
		logger.Warn("⚠️  Dev mode: identity, bot check and payouts are simulated")
		return services.DevIdentityProvider{}, services.DevChallengeVerifier{}, services.DevPayout{}, nil
	}

	identity, err := services.NewPrivyIdentityProvider(cfg.Auth, utils.HTTPClient)
	if err != nil {
		return nil, nil, nil, err
	}
	payout, err := services.NewSolanaPayout(cfg.Solana)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Info("Payout vault loaded", zap.String("address", payout.VaultAddress()))
	return identity, services.NewTurnstileVerifier(cfg.Turnstile, utils.HTTPClient), payout, nil
}

// packStore returns where chapter packs are published, plus the local
// directory to serve when packs are kept on disk
func packStore(ctx context.Context, cfg *config.Config) (services.ObjectStore, string, error) {
	if cfg.Storage.Bucket != "" {
		store, err := utils.NewR2Storage(ctx, cfg.Storage)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	}
	if !cfg.DevMode {
		return nil, "", errors.New("storage.bucket is required")
	}

	baseURL := cfg.Storage.PublicBaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%d/uploads", cfg.Server.Port)
	}
	store, err := utils.NewDiskStorage(cfg.Storage.LocalDir, baseURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Root(), nil
}

func replayGuard(rdb *redis.Client, ttl time.Duration) services.ReplayGuard {
	if rdb == nil {
		logger.Warn("⚠️  redis.address not set, challenge tokens are not checked for reuse")
		return nil
	}
	return services.NewRedisReplayGuard(rdb, ttl)
}
