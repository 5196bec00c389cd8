// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/config"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/handler"
	"github.com/olegiv/natours-go/internal/handler/api"
	"github.com/olegiv/natours-go/internal/logging"
	"github.com/olegiv/natours-go/internal/mail"
	"github.com/olegiv/natours-go/internal/model"
	"github.com/olegiv/natours-go/internal/scheduler"
	"github.com/olegiv/natours-go/internal/service"
	"github.com/olegiv/natours-go/internal/transfer"
	"github.com/olegiv/natours-go/internal/version"
)

// requestTimeout bounds every API request.
const requestTimeout = 30 * time.Second

// dataFlags selects a dev-data command instead of serving.
type dataFlags struct {
	importDir string
	exportDir string
	deleteAll bool
	dryRun    bool
}

func (f dataFlags) any() bool {
	return f.importDir != "" || f.exportDir != "" || f.deleteAll
}

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	var data dataFlags
	flag.StringVar(&data.importDir, "import", "", "Import tours.json, users.json and reviews.json from `dir` and exit")
	flag.StringVar(&data.exportDir, "export", "", "Export the tours, users and reviews collections to `dir` and exit")
	flag.BoolVar(&data.deleteAll, "delete", false, "Delete every tour, user and review and exit")
	flag.BoolVar(&data.dryRun, "dry-run", false, "With -import, validate the files without writing")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "natours - tour booking REST API\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_JWT_SECRET     Token signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_STORE          Document store: mongo|memory (default: mongo)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_MONGO_URI      MongoDB connection string (default: mongodb://localhost:27017)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_SERVER_PORT    Server port (default: 3000)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_ENV            Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_REDIS_URL      Redis URL for the response cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NATOURS_SMTP_HOST      SMTP relay; mail is logged when unset (optional)\n")
	}

	flag.Parse()

	// Handle -h/-help flag
	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	// Handle -v/-version flag
	if *showVersion {
		_, _ = fmt.Printf("natours %s\n", version.Get())
		os.Exit(0)
	}

	if err := run(data); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(data dataFlags) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := parseLevel(cfg.LogLevel)
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(textHandler))

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			slog.Error("error closing document store", "error", err)
		}
	}()

	hasher := auth.NewHasher(cfg.BcryptCost)
	catalog, err := model.OpenCatalog(ctx, store,
		model.NewTours(),
		model.NewUsers(model.UserOptions{Hasher: hasher}),
		model.NewReviews(),
		model.NewEvents(),
	)
	if err != nil {
		return fmt.Errorf("opening collections: %w", err)
	}

	// Upgrade logger to also write WARN and ERROR logs to the events collection
	logger := slog.New(logging.NewEventLogHandler(textHandler, catalog.Collection(model.Events)))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	if data.any() {
		return runData(ctx, catalog, logger, data)
	}

	responseCache, err := cache.New(ctx, cache.Config{
		RedisURL:        cfg.RedisURL,
		Prefix:          cfg.CachePrefix,
		DefaultTTL:      time.Duration(cfg.CacheTTL) * time.Second,
		MaxEntries:      10000,
		CleanupInterval: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("initializing cache: %w", err)
	}
	defer func() { _ = responseCache.Close() }()
	responses := cache.NewResponses(responseCache, time.Duration(cfg.CacheTTL)*time.Second)
	ratings := service.NewRatingService(catalog.Collection(model.Reviews), catalog.Collection(model.Tours), responses)

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	events := service.NewEventService(catalog.Collection(model.Events))
	users := catalog.Collection(model.Users)
	sessions := auth.NewSessionCodec(cfg.JWTSecret, cfg.JWTExpiresIn)

	h := api.NewHandler(api.Options{
		Catalog: catalog,
		Auth: service.NewAuthService(users, catalog.Resource(model.Users), service.AuthOptions{
			Sessions: sessions,
			Resets:   auth.NewResetTokens(cfg.ResetKey, cfg.ResetTokenExpiresIn),
			Hasher:   hasher,
			Mailer:   mailer,
			Events:   events,
		}),
		Profiles:     service.NewUserService(users, catalog.Resource(model.Users), responses),
		Tours:        service.NewTourService(catalog.Collection(model.Tours), catalog.Resource(model.Tours)),
		Ratings:      ratings,
		Events:       events,
		Responses:    responses,
		CookieTTL:    cfg.CookieTTL(),
		SecureCookie: cfg.IsProduction(),
		Development:  cfg.IsDevelopment(),
	})

	router := api.NewRouter(h, api.RouterConfig{
		Development:    cfg.IsDevelopment(),
		Port:           cfg.ServerPort,
		TrustedOrigins: cfg.CSRFTrustedOrigins,
		CSRFKey:        []byte(cfg.JWTSecret)[:config.MinSecretLength],
		RequestTimeout: requestTimeout,
		Health:         handler.NewHealthHandler(store, responseCache),
	})

	jobs := scheduler.New(logger)
	if err := jobs.AddReconciler(cfg.ReconcileSchedule, ratings, events); err != nil {
		return fmt.Errorf("scheduling rating reconciliation: %w", err)
	}
	jobs.Start()
	defer jobs.Stop()

	// Create server with appropriate timeouts
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", version.Short())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (docstore.Store, error) {
	if cfg.Store == config.StoreMemory {
		slog.Warn("using in-memory document store; data is lost on exit")
		return docstore.NewMemoryStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	slog.Info("connecting to mongodb", "database", cfg.MongoDatabase)
	store, err := docstore.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := store.Ping(connectCtx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}
	slog.Info("document store ready")
	return store, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (mail.Mailer, error) {
	if !cfg.SMTPEnabled() {
		slog.Info("SMTP not configured, mail is written to the log")
		return mail.NewLogMailer(logger, cfg.MailFrom), nil
	}
	m, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring smtp: %w", err)
	}
	return m, nil
}

func runData(ctx context.Context, catalog *model.Catalog, logger *slog.Logger, data dataFlags) error {
	ratings := service.NewRatingService(catalog.Collection(model.Reviews), catalog.Collection(model.Tours), nil)
	importer := transfer.NewImporter(catalog, ratings, logger)

	if data.deleteAll {
		removed, err := importer.DeleteAll(ctx)
		if err != nil {
			return err
		}
		logger.Info("data successfully deleted", "removed", removed)
	}

	if data.importDir != "" {
		result, err := importer.ImportDir(ctx, data.importDir, transfer.ImportOptions{DryRun: data.dryRun})
		if err != nil {
			return err
		}
		for _, e := range result.Errors {
			logger.Warn("document rejected", "collection", e.Collection, "index", e.Index, "id", e.ID, "error", e.Message)
		}
		logger.Info("data successfully loaded", "batch", result.Batch, "documents", result.Total(), "dry_run", result.DryRun)
	}

	if data.exportDir != "" {
		manifest, err := transfer.NewExporter(catalog, logger).ExportDir(ctx, data.exportDir)
		if err != nil {
			return err
		}
		logger.Info("data successfully exported", "dir", data.exportDir, "batch", manifest.Batch)
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
