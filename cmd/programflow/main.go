package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"

	"github.com/neomorfeo/programflow/internal/adapter/filestore"
	"github.com/neomorfeo/programflow/internal/adapter/fsm"
	"github.com/neomorfeo/programflow/internal/adapter/otel"
	"github.com/neomorfeo/programflow/internal/adapter/river"
	"github.com/neomorfeo/programflow/internal/adapter/sqlite"
	"github.com/neomorfeo/programflow/internal/app"
	"github.com/neomorfeo/programflow/internal/domain"

	handler "github.com/neomorfeo/programflow/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("programflow: %v", err)
	}
}

func run() error {
	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "programflow.db")
	filesDir := envOrDefault("FILES_DIR", "uploads")
	baseURL := envOrDefault("BASE_URL", "http://localhost:"+port)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Error("otel shutdown", "error", err)
		}
	}()

	// --- Adapters (out) ---
	db, err := otel.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	store, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	queue, err := river.Setup(ctx, db, river.LogSender{})
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Stop(stopCtx); err != nil {
			logger.Error("river stop", "error", err)
		}
	}()

	files, err := filestore.New(filesDir, baseURL+"/files")
	if err != nil {
		return fmt.Errorf("file store: %w", err)
	}

	programs := otel.NewTracingRepository(store.Programs)
	notifier := otel.NewTracingNotifier(river.NewNotifier(queue))

	// --- Application ---
	svc := app.NewProgramService(programs, store.Users, notifier, fsm.New())

	if os.Getenv("SEED_DEMO_USERS") == "1" {
		seedDemoUsers(ctx, store.Users, logger)
	}

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(otelchi.Middleware("programflow", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("programflow", "0.1.0"))
	handler.Register(api, svc, files)

	fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(filesDir)))
	router.Handle("/files/*", fileServer)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("programflow listening", "port", port, "docs", "http://localhost:"+port+"/docs")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}

	logger.Info("stopped")
	return nil
}

// seedDemoUsers creates one user per role for local development. Safe
// to run repeatedly: existing emails are skipped.
func seedDemoUsers(ctx context.Context, users domain.UserRepository, logger *slog.Logger) {
	demo := []domain.User{
		{ID: "demo-sales", Name: "Sam Sales", Email: "sales@example.com", Role: domain.RoleSales},
		{ID: "demo-ops", Name: "Olive Ops", Email: "ops@example.com", Role: domain.RoleOps},
		{ID: "demo-finance", Name: "Fin Finance", Email: "finance@example.com", Role: domain.RoleFinance},
		{ID: "demo-admin", Name: "Ada Admin", Email: "admin@example.com", Role: domain.RoleAdmin},
	}
	for _, u := range demo {
		u.CreatedAt = time.Now().UTC()
		if err := users.Create(ctx, u); err != nil {
			var conflict *domain.EmailConflictError
			if errors.As(err, &conflict) {
				continue
			}
			logger.Warn("seeding demo user", "email", u.Email, "error", err)
		}
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
