// ABOUTME: Operator subcommands: health probes, token issuing and the MCP stdio server
// ABOUTME: Each loads the config file and opens only the components it needs

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/taskd/internal/auth"
	"github.com/2389/taskd/internal/config"
	"github.com/2389/taskd/internal/gateway"
	taskmcp "github.com/2389/taskd/internal/mcp"
	"github.com/2389/taskd/internal/store"
	"github.com/2389/taskd/internal/tracker"
)

func newHealthCmd() *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context(), cmd.OutOrStdout(), ready)
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "also check that the database answers")
	return cmd
}

// healthURL returns the base HTTP URL of a running server.
func healthURL(cfg *config.Config) string {
	if cfg.Tailscale.Enabled {
		return gateway.TailnetURL(cfg.Tailscale)
	}
	return "http://" + cfg.Server.HTTPAddr
}

func runHealth(ctx context.Context, out io.Writer, ready bool) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	path := "/health"
	if ready {
		path = "/health/ready"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL(cfg)+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Fprintln(out, "healthy")
	return nil
}

func newTokenCmd() *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for an existing user",
		Long:  "Issue a bearer token for a registered user without a password, for scripts and the mcp command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd.Context(), cmd.OutOrStdout(), email, ttl)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email of the user (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default auth.token_ttl)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func runToken(ctx context.Context, out io.Writer, email string, ttl time.Duration) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	token, err := issueToken(ctx, s, verifier, email, ttl)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token)
	return nil
}

// issueToken signs a token for the user registered under email.
func issueToken(ctx context.Context, users store.UserStore, verifier *auth.JWTVerifier, email string, ttl time.Duration) (string, error) {
	user, err := users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("no user registered with email %q", email)
	}
	if err != nil {
		return "", fmt.Errorf("looking up user: %w", err)
	}

	token, err := verifier.Generate(auth.Identity{UserID: user.ID, Email: user.Email, Name: user.Name}, ttl)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return token, nil
}

func newMCPCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the task tools over MCP on stdio",
		Long:  "Serve create/get/list/update/delete task tools to an MCP client on stdin/stdout, acting as the user the token names.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TASKD_TOKEN")
			}
			return runMCP(cmd.Context(), token)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token of the acting user (default $TASKD_TOKEN)")
	return cmd
}

func runMCP(ctx context.Context, token string) error {
	if token == "" {
		return errors.New("a token is required: pass --token or set TASKD_TOKEN")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// stdout carries the protocol
	logger := setupLogger(cfg.Logging, os.Stderr)

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	id, err := resolveIdentity(ctx, s, verifier, token)
	if err != nil {
		return err
	}

	logger.Info("serving MCP on stdio", "user_id", id.UserID)
	srv := taskmcp.NewServer(tracker.NewService(s, logger), id, version, logger)
	return taskmcp.Serve(srv)
}

// resolveIdentity authenticates token and checks that its user still exists.
func resolveIdentity(ctx context.Context, users store.UserStore, authn auth.Authenticator, token string) (auth.Identity, error) {
	id, err := authn.Authenticate(token)
	if err != nil {
		return auth.Identity{}, err
	}
	if _, err := users.GetUser(ctx, id.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return auth.Identity{}, fmt.Errorf("%w: user %d no longer exists", auth.ErrUnauthenticated, id.UserID)
		}
		return auth.Identity{}, fmt.Errorf("looking up user: %w", err)
	}
	return id, nil
}
