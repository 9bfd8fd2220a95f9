// Package server orchestrates all components: database, CRM client, chat
// transport, COMMS jobs and events, and the HTTP surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/wookiee/ai-assistant/internal/config"
	"github.com/wookiee/ai-assistant/pkg/assistant"
	"github.com/wookiee/ai-assistant/pkg/chat"
	"github.com/wookiee/ai-assistant/pkg/commsutil"
	"github.com/wookiee/ai-assistant/pkg/db"
	"github.com/wookiee/ai-assistant/pkg/dedup"
	"github.com/wookiee/ai-assistant/pkg/digest"
	"github.com/wookiee/ai-assistant/pkg/dispatcher"
	"github.com/wookiee/ai-assistant/pkg/events"
	"github.com/wookiee/ai-assistant/pkg/jobs"
)

const logPrefix = "server:server"

const shutdownTimeout = 15 * time.Second

// Server is the ai-assistant orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server

	health     healthChecker
	dispatcher commandDispatcher
	sender     chat.Sender
	dedup      dedup.Store
	runner     digestRunner
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting ai-assistant", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}
	defer s.close()

	// Step 1: Connect to database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseSchema)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	// Step 1b: Run migrations if enabled
	if cfg.RunMigrations {
		if err := db.EnsureSchema(ctx, pool, cfg.DatabaseSchema); err != nil {
			return fmt.Errorf("%s - failed to create schema: %w", logPrefix, err)
		}
		migrationSQL, err := db.LoadMigrationFiles(cfg.MigrationPath)
		if err != nil {
			return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, migrationSQL); err != nil {
			return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}
	repo := db.NewRepository(pool)

	// Step 2: CRM client and chat transport
	crmClient, err := NewCRMClient(cfg)
	if err != nil {
		return err
	}
	sender, err := NewSender(cfg)
	if err != nil {
		return err
	}
	s.sender = sender

	// Step 3: Update de-duplication
	store, err := NewDedupStore(ctx, cfg)
	if err != nil {
		return err
	}
	s.dedup = store

	// Step 4: Connect to NATS (optional)
	var publisher events.EventPublisher = &events.NoOpPublisher{}
	if cfg.COMMSEnabled {
		nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
		if err != nil {
			return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
		}
		s.nc = nc
		publisher = events.NewCommsPublisher(nc, &events.CommsPublisherOpts{Subject: cfg.EventsSubject})
		slog.Info(fmt.Sprintf("%s - Connected to NATS at %s", logPrefix, commsutil.RedactURL(cfg.COMMSURL)))
	} else {
		slog.Info(fmt.Sprintf("%s - COMMS disabled; events are not published", logPrefix))
	}

	// Step 5: Use cases
	composer := digest.NewComposer(crmClient, repo, cfg.DefaultTimezone)
	asst := assistant.NewAssistant(assistant.NewAssistantParams{
		Store:     repo,
		Directory: crmClient,
		Composer:  composer,
		Publisher: publisher,
		Config: assistant.Config{
			OTPLength:       cfg.OTPLength,
			OTPTTL:          cfg.OTPTTL,
			OTPMaxAttempts:  cfg.OTPMaxAttempts,
			DefaultTimezone: cfg.DefaultTimezone,
		},
	})
	runner := digest.NewRunner(digest.RunnerParams{
		Users:     repo,
		Composer:  composer,
		Sender:    sender,
		Publisher: publisher,
		SendRate:  cfg.DigestSendRate,
	})
	s.health = asst
	s.dispatcher = dispatcher.NewDispatcher(asst)
	s.runner = runner

	// Step 6: Subscribe to jobs
	if s.nc != nil {
		sub, err := jobs.Subscribe(ctx, s.nc, cfg.JobsSubject, jobs.NewRouter(runner, asst).WithBatchTimeout(cfg.DigestBatchTimeout), cfg.RequestTimeout)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()
	}

	// Step 7: Start HTTP server
	httpAddr := cfg.ListenAddr()
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info(fmt.Sprintf("%s - ai-assistant is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))
	case err := <-errCh:
		return fmt.Errorf("%s - HTTP server error: %w", logPrefix, err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	return nil
}

// close releases connections in reverse start order.
func (s *Server) close() {
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.dedup != nil {
		s.dedup.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
}
