// Package main wires the nutrition bot and serves it over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/franckalain/nutritionbot/internal/bot"
	"github.com/franckalain/nutritionbot/internal/config"
	"github.com/franckalain/nutritionbot/internal/conversation"
	"github.com/franckalain/nutritionbot/internal/database"
	"github.com/franckalain/nutritionbot/internal/ledger"
	"github.com/franckalain/nutritionbot/internal/logger"
	"github.com/franckalain/nutritionbot/internal/meals"
	"github.com/franckalain/nutritionbot/internal/ml"
	"github.com/franckalain/nutritionbot/internal/providers"
	"github.com/franckalain/nutritionbot/internal/resolver"
	"github.com/franckalain/nutritionbot/internal/server"
	"github.com/franckalain/nutritionbot/internal/storage"
)

// Run is the testable entrypoint for the application.
func Run(ctx context.Context, configPath string) error {
	if !logger.IsProduction(os.Getenv("ENV")) {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.Env)
	defer func() { _ = log.Sync() }()
	log.Info("starting nutrition bot",
		zap.String("env", cfg.Env),
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("ml_type", cfg.ML.Type),
	)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	ldg, err := ledger.New(store, cfg.Ledger.DayStartHour, log.Named("ledger"), ledger.WithLocation(loc))
	if err != nil {
		return err
	}

	estimator, err := ml.NewEstimator(ctx, cfg.ML)
	if err != nil {
		return fmt.Errorf("failed to create estimator: %w", err)
	}
	defer estimator.Close()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	off := providers.NewOpenFoodFacts(providers.OpenFoodFactsConfig{BaseURL: cfg.Providers.OFFBaseURL}, httpClient)
	usda := providers.NewUSDA(cfg.Providers.USDAEndpoint, cfg.Providers.USDAAPIKey, httpClient)

	res := resolver.New(off, []resolver.NameProvider{off, usda}, estimator, resolver.Config{
		ProviderTimeout:  cfg.ProviderTimeout(),
		EstimatorTimeout: cfg.EstimatorTimeout(),
	}, log.Named("resolver"))

	deps := bot.Deps{
		Users:         store,
		Ledger:        ldg,
		Meals:         meals.NewRegistry(store, ldg, log.Named("meals")),
		Resolver:      res,
		Conversations: conversation.NewMemoryStore(),
		Logger:        log.Named("bot"),
	}
	if cfg.Storage.Enabled() {
		photos, err := storage.NewS3PhotoStore(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create photo store: %w", err)
		}
		deps.Photos = photos
	}

	srv := server.New(bot.NewService(deps), validator.New(), log.Named("server"))
	return srv.Start(ctx, cfg.Server.Port)
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (database.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return database.NewPostgresDB(ctx, cfg.Database.URL, log.Named("postgres"))
	case "memory":
		return database.NewMemoryDB(), nil
	default:
		return database.NewSQLiteDB(cfg.Database.Path, log.Named("sqlite"))
	}
}

func main() {
	configPath := flag.String("config", config.GetConfigPath(), "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := Run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
