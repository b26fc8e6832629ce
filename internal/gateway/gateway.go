// ABOUTME: Gateway orchestrator that coordinates the gRPC and HTTP servers
// ABOUTME: Wires store, authentication, accounts, task service and listener lifecycle

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/taskd/internal/account"
	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/config"
	"github.com/2389/taskd/internal/idempotency"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/tracker"
)

// Gateway orchestrates the taskd server components.
// It serves the JSON task API over HTTP and the standard health service over gRPC.
type Gateway struct {
	config      *config.Config
	store       store.Store
	tracker     *tracker.Service
	accounts    *account.Service
	verifier    *auth.JWTVerifier
	grpcServer  *grpc.Server
	health      *health.Server
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// idempotency remembers task ids created under an Idempotency-Key
	idempotency *idempotency.Cache

	// markdown renders task descriptions for ?render=html
	markdown goldmark.Markdown
}

// initStore opens the SQLite store named by config and environment.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates a gRPC server exposing grpc.health.v1 and reflection.
func createGRPCServer(logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	logger.Debug("gRPC health and reflection services registered")
	return server, healthServer
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := newWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// newWithStore builds the gateway around an already opened store.
func newWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}

	accounts := account.NewService(s, verifier, account.Options{
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
		Logger:     logger,
	})

	grpcServer, healthServer := createGRPCServer(logger)

	gw := &Gateway{
		config:      cfg,
		store:       s,
		tracker:     tracker.NewService(s, logger),
		accounts:    accounts,
		verifier:    verifier,
		grpcServer:  grpcServer,
		health:      healthServer,
		logger:      logger.With("component", "gateway"),
		idempotency: idempotency.New(cfg.Idempotency.TTL, cfg.Idempotency.MaxEntries),
		markdown:    goldmark.New(),
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the complete HTTP handler: routes wrapped in request-id and CORS middleware.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	g.registerAPIRoutes(mux)

	var h http.Handler = mux
	h = corsMiddleware(g.config.Server.CORSOrigins)(h)
	h = requestIDMiddleware(g.logger)(h)
	return h
}

// registerAPIRoutes registers the account and task routes.
// Task routes require a bearer token; the identity is handed to each handler.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", g.handleRegister)
	mux.HandleFunc("POST /api/auth/login", g.handleLogin)

	authLogger := g.logger.With("component", "auth")
	protect := func(h auth.IdentityHandler) http.Handler {
		return auth.RequireIdentity(g.verifier, authLogger, g.requireUser(authLogger, h))
	}

	mux.Handle("POST /api/tasks", protect(g.handleCreateTask))
	mux.Handle("GET /api/tasks", protect(g.handleListTasks))
	mux.Handle("GET /api/tasks/{id}", protect(g.handleGetTask))
	mux.Handle("PUT /api/tasks/{id}", protect(g.handleUpdateTask))
	mux.Handle("DELETE /api/tasks/{id}", protect(g.handleDeleteTask))
}

// setupTCPListeners creates standard TCP listeners for gRPC and HTTP.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"grpc_addr", g.config.Server.GRPCAddr,
		"http_addr", g.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// warnIgnoredAddresses logs a warning if server addresses are configured but Tailscale is enabled.
func (g *Gateway) warnIgnoredAddresses() {
	if g.config.Server.GRPCAddr != "" || g.config.Server.HTTPAddr != "" {
		g.logger.Warn("server.grpc_addr and server.http_addr are ignored when tailscale is enabled",
			"grpc_addr", g.config.Server.GRPCAddr,
			"http_addr", g.config.Server.HTTPAddr,
		)
	}
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		g.warnIgnoredAddresses()
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := g.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		g.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (g *Gateway) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		g.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcListener, httpListener, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	g.health.Resume()
	errCh := g.startServers(grpcListener, httpListener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Tailnet ports. gRPC always listens on tailnetGRPCPort; HTTP uses 80, or 443
// when served over TLS.
const (
	tailnetGRPCPort  = ":50051"
	tailnetHTTPPort  = ":80"
	tailnetHTTPSPort = ":443"
)

// tailnetMode is how the HTTP API is exposed on the tailnet.
type tailnetMode string

const (
	tailnetPlain  tailnetMode = "http"
	tailnetTLS    tailnetMode = "https"
	tailnetFunnel tailnetMode = "funnel"
)

// httpMode picks the HTTP exposure for cfg. Funnel wins over HTTPS.
func httpMode(cfg config.TailscaleConfig) tailnetMode {
	switch {
	case cfg.Funnel:
		return tailnetFunnel
	case cfg.HTTPS:
		return tailnetTLS
	default:
		return tailnetPlain
	}
}

// TailnetURL is the base URL clients use to reach the HTTP API on the tailnet.
func TailnetURL(cfg config.TailscaleConfig) string {
	if httpMode(cfg) == tailnetPlain {
		return "http://" + cfg.Hostname
	}
	return "https://" + cfg.Hostname
}

// resolveTailscaleStateDir returns configured, or the per-user data directory
// for the tsnet node state.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("no home directory for tailscale state, set tailscale.state_dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "taskd", "tailscale"), nil
}

// resolveTailscaleAuthKey prefers the configured key and falls back to TS_AUTHKEY.
func resolveTailscaleAuthKey(configured string) (string, error) {
	for _, key := range []string{configured, os.Getenv("TS_AUTHKEY")} {
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", errors.New("tailscale auth key missing: set tailscale.auth_key or TS_AUTHKEY")
}

// newTailnetNode prepares, but does not start, the tsnet node for cfg.
func newTailnetNode(cfg config.TailscaleConfig) (*tsnet.Server, error) {
	stateDir, err := resolveTailscaleStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	authKey, err := resolveTailscaleAuthKey(cfg.AuthKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       stateDir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}, nil
}

// setupTailscaleListeners joins the tailnet and opens the gRPC and HTTP listeners on it.
// On failure everything opened so far is closed.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	node, err := newTailnetNode(tsCfg)
	if err != nil {
		return nil, nil, err
	}

	var opened []io.Closer
	defer func() {
		if err != nil {
			closeAll(opened)
			g.tsnetServer = nil
		}
	}()

	g.tsnetServer = node
	opened = append(opened, node)

	g.logger.Info("joining tailnet", "hostname", tsCfg.Hostname, "state_dir", node.Dir, "ephemeral", tsCfg.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	grpcLn, err = node.Listen("tcp", tailnetGRPCPort)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on tailnet %s: %w", tailnetGRPCPort, err)
	}
	opened = append(opened, grpcLn)

	httpLn, err = g.tailnetHTTPListener(node, httpMode(tsCfg))
	if err != nil {
		return nil, nil, err
	}
	return grpcLn, httpLn, nil
}

// tailnetHTTPListener opens the HTTP API listener for mode.
func (g *Gateway) tailnetHTTPListener(node *tsnet.Server, mode tailnetMode) (net.Listener, error) {
	g.logger.Info("exposing HTTP API on tailnet", "mode", mode)

	switch mode {
	case tailnetFunnel:
		ln, err := node.ListenFunnel("tcp", tailnetHTTPSPort)
		if err != nil {
			return nil, fmt.Errorf("listening on funnel %s: %w", tailnetHTTPSPort, err)
		}
		return ln, nil
	case tailnetTLS:
		lc, err := node.LocalClient()
		if err != nil {
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		ln, err := node.Listen("tcp", tailnetHTTPSPort)
		if err != nil {
			return nil, fmt.Errorf("listening on tailnet %s: %w", tailnetHTTPSPort, err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := node.Listen("tcp", tailnetHTTPPort)
		if err != nil {
			return nil, fmt.Errorf("listening on tailnet %s: %w", tailnetHTTPPort, err)
		}
		return ln, nil
	}
}

// logTailscaleStatus reports the node's tailnet address once it is up.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	attrs := []any{"hostname", hostname}
	if len(status.TailscaleIPs) > 0 {
		attrs = append(attrs, "tailscale_ip", status.TailscaleIPs[0].String())
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		attrs = append(attrs, "dns_name", status.Self.DNSName)
	}
	g.logger.Info("tailnet node ready", attrs...)
}

// closeAll closes closers in reverse order, ignoring errors.
func closeAll(closers []io.Closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		_ = closers[i].Close()
	}
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
// Health checks report NOT_SERVING before the listeners close.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.shutdownGRPCServer(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", g.store.Close())

	g.idempotency.Close()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
