// Package main is the entry point for the support-desk API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/baodeli/support-desk/internal/config"
	"github.com/baodeli/support-desk/internal/handler"
	"github.com/baodeli/support-desk/internal/middleware"
	natsstore "github.com/baodeli/support-desk/internal/nats"
	"github.com/baodeli/support-desk/internal/responder"
	"github.com/baodeli/support-desk/internal/session"
	"github.com/baodeli/support-desk/internal/store"
	"github.com/baodeli/support-desk/pkg/logger"
	"github.com/baodeli/support-desk/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-desk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Select the session store: NATS JetStream when configured, otherwise
	// the in-memory store for single-node development.
	var (
		sessionStore store.SessionStore
		readiness    handler.ReadyChecker
	)
	if cfg.NATSURL != "" {
		natsClient, err := natsstore.Connect(natsstore.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		js, err := natsstore.NewStore(ctx, natsClient)
		if err != nil {
			log.Error("failed to set up JetStream store", zap.Error(err))
			os.Exit(1)
		}
		sessionStore = js
		readiness = natsClient
	} else {
		log.Warn("NATS_URL not set, using in-memory session store")
		sessionStore = store.NewMemoryStore()
	}

	// Initialize the hand-off engine and the timeout reclaimer
	engine := session.NewEngine(
		sessionStore,
		responder.New(responder.Default()),
		session.SystemClock{},
		cfg.HumanIdleThreshold,
		log,
	)

	reclaimCtx, stopReclaimer := context.WithCancel(ctx)
	defer stopReclaimer()
	go session.NewReclaimer(engine, cfg.SweepInterval, log).Run(reclaimCtx)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(readiness)
	chatHandler := handler.NewChatHandler(engine, sessionStore, log)
	adminHandler := handler.NewAdminHandler(engine, sessionStore, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1/chat", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		// Visitor endpoints; auth is optional so anonymous visitors can chat.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWTSecret))
			r.Post("/session", chatHandler.OpenSession)
			r.Post("/message", chatHandler.SendMessage)
			r.Get("/history/{sessionID}", chatHandler.History)
			r.Post("/request-human/{sessionID}", chatHandler.RequestHuman)
		})

		// Agent console
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTSecret))
			r.Use(middleware.RequireScope(middleware.AgentScope))
			r.Get("/pending", adminHandler.Pending)
			r.Get("/active", adminHandler.Active)
			r.Post("/reply", adminHandler.Reply)
			r.Post("/end/{sessionID}", adminHandler.End)
			r.Post("/reclaim", adminHandler.Reclaim)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stopReclaimer()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
