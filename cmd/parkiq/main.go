package main

import (
	"context"
	"fmt"
	"log"
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

	"github.com/parkiq/parkiq/internal/adapter/fsm"
	"github.com/parkiq/parkiq/internal/adapter/otel"
	"github.com/parkiq/parkiq/internal/adapter/river"
	"github.com/parkiq/parkiq/internal/adapter/sqlite"
	"github.com/parkiq/parkiq/internal/app"

	handler "github.com/parkiq/parkiq/internal/adapter/http"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("parkiq: %v", err)
	}
}

func run() error {
	port := envOrDefault("PORT", "8080")
	dbPath := envOrDefault("DATABASE_PATH", "parkiq.db")

	ctx := context.Background()

	// --- Observability ---
	providers, err := otel.Setup(ctx, otel.ConfigFromEnv())
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}

	// --- Adapters (out) ---
	db, err := otel.OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	repo, err := sqlite.NewFromDB(db)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer repo.Close()

	queue, err := river.Setup(ctx, db)
	if err != nil {
		return fmt.Errorf("river: %w", err)
	}
	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("river start: %w", err)
	}

	publisher := otel.NewTracingPublisher(river.NewPublisher(queue))
	tracedRepo := otel.NewTracingRepository(repo)

	// --- Application ---
	facilities := app.NewFacilityService(tracedRepo, publisher)
	tickets := app.NewTicketService(tracedRepo, publisher, fsm.New())
	stats := app.NewStatsService(tracedRepo)

	// --- Adapters (in) ---
	router := chi.NewMux()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(otelchi.Middleware("parkiq", otelchi.WithChiRoutes(router)))

	api := humachi.New(router, huma.DefaultConfig("parkiq", "0.1.0"))
	handler.Register(api, facilities, tickets, stats)

	// --- Server ---
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("parkiq listening on :%s", port)
		log.Printf("API docs: http://localhost:%s/docs", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server: %w", err)
	case <-done:
	}
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Printf("river stop error: %v", err)
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown error: %v", err)
	}

	log.Println("stopped")
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
