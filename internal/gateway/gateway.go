// ABOUTME: Gateway orchestrator that wires the store, live channel, and HTTP server
// ABOUTME: Manages component lifecycle and graceful shutdown ordering

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/murmur-chat/murmur-gateway/internal/config"
	"github.com/murmur-chat/murmur-gateway/internal/conversation"
	"github.com/murmur-chat/murmur-gateway/internal/generate"
	"github.com/murmur-chat/murmur-gateway/internal/live"
	"github.com/murmur-chat/murmur-gateway/internal/store"
)

// Gateway orchestrates the murmur-gateway server components: the SQLite
// store, the live update channel, the turn orchestrator with its reconciler,
// and the HTTP server exposing them.
type Gateway struct {
	config       *config.Config
	store        store.Store
	live         *live.Channel
	reconciler   *conversation.Reconciler
	conversation *conversation.Service
	httpServer   *http.Server
	mux          *http.ServeMux
	logger       *slog.Logger

	// serverID identifies this gateway instance
	serverID string
}

// Options allow tests to substitute components.
type Options struct {
	// Store overrides the SQLite store built from config.
	Store store.Store

	// Generator overrides the OpenAI generator built from config.
	Generator generate.Generator
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	return NewWithOptions(cfg, Options{}, logger)
}

// NewWithOptions creates a Gateway, letting the caller inject components.
func NewWithOptions(cfg *config.Config, opts Options, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := opts.Store
	if s == nil {
		var err error
		s, err = store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
	}

	gen := opts.Generator
	if gen == nil {
		gen = generate.NewOpenAIGenerator(generate.Config{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Model:   cfg.OpenAI.Model,
		}, logger)
	}

	ch := live.NewChannel(logger)
	rec := conversation.NewReconciler(s, logger)
	svc := conversation.New(s, ch, gen, rec, conversation.Options{
		SystemPrompt:    cfg.OpenAI.SystemPrompt,
		FragmentTimeout: cfg.Generation.FragmentTimeout,
	}, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		live:         ch,
		reconciler:   rec,
		conversation: svc,
		logger:       logger.With("component", "gateway"),
		serverID:     generateServerID(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", gw.handleHealth)
	mux.HandleFunc("/api/chat/message", gw.handleSendMessage)
	mux.HandleFunc("/api/chat/conversations/", gw.handleConversationRoutes)
	gw.mux = mux

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler exposes the HTTP routing for tests.
func (g *Gateway) Handler() http.Handler {
	return g.mux
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String(), "server_id", g.serverID)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown gracefully stops the gateway and releases resources. Order
// matters: stop accepting requests, drain in-flight assistant turns, flush
// the finalize queue, then tear down the live channel and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.conversation.Close()
	g.reconciler.Close()
	g.live.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	return fmt.Sprintf("murmur-gateway-%d", time.Now().UnixNano()%1000000)
}
