// ABOUTME: Interactive "taskd init" command that writes a config file
// ABOUTME: Prompts with defaults and generates a random JWT secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// initOptions are the answers collected by runInit.
type initOptions struct {
	GRPCAddr   string
	HTTPAddr   string
	DBPath     string
	JWTSecret  string
	TokenTTL   string
	CORSOrigin string

	TailscaleEnabled bool
	TSHostname       string
	TSAuthKey        string
	TSEphemeral      bool
	TSFunnel         bool

	LogLevel  string
	LogFormat string
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// getDataPath returns the path to the taskd data directory.
// Priority: XDG_DATA_HOME/taskd > ~/.local/share/taskd
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "taskd")
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

func runInit(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "taskd configuration setup")
	fmt.Fprintln(out, "=========================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}
	opts := initOptions{JWTSecret: secret}

	fmt.Fprintln(out, "\n--- Server Configuration ---")
	opts.GRPCAddr = prompt(reader, out, "gRPC address", "localhost:50051")
	opts.HTTPAddr = prompt(reader, out, "HTTP address", "localhost:8080")
	opts.CORSOrigin = prompt(reader, out, "Allowed CORS origin (empty to disable, * for any)", "")

	fmt.Fprintln(out, "\n--- Database Configuration ---")
	opts.DBPath = prompt(reader, out, "SQLite database path", filepath.Join(getDataPath(), "tasks.db"))

	fmt.Fprintln(out, "\n--- Auth Configuration ---")
	opts.TokenTTL = prompt(reader, out, "Token lifetime", "4h")

	fmt.Fprintln(out, "\n--- Tailscale Configuration ---")
	opts.TailscaleEnabled = isYes(prompt(reader, out, "Enable Tailscale?", "no"))
	if opts.TailscaleEnabled {
		opts.TSHostname = prompt(reader, out, "Tailscale hostname", "taskd")
		opts.TSAuthKey = prompt(reader, out, "Tailscale auth key (leave empty to use TS_AUTHKEY)", "")
		opts.TSEphemeral = isYes(prompt(reader, out, "Ephemeral node?", "no"))
		opts.TSFunnel = isYes(prompt(reader, out, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Fprintln(out, "\n--- Logging Configuration ---")
	opts.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", "info")
	opts.LogFormat = prompt(reader, out, "Log format (text/json)", "text")

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// The file holds the JWT secret
	if err := os.WriteFile(outputFile, []byte(renderConfig(opts)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  taskd serve")

	return nil
}

// renderConfig produces the YAML config file for opts.
func renderConfig(opts initOptions) string {
	var cfg strings.Builder
	cfg.WriteString("# taskd configuration\n")
	cfg.WriteString("# Generated by taskd init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  grpc_addr: %q\n", opts.GRPCAddr)
	fmt.Fprintf(&cfg, "  http_addr: %q\n", opts.HTTPAddr)
	if opts.CORSOrigin != "" {
		fmt.Fprintf(&cfg, "  cors_origins: [%q]\n", opts.CORSOrigin)
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  path: %q\n", opts.DBPath)
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", opts.JWTSecret)
	fmt.Fprintf(&cfg, "  token_ttl: %q\n", opts.TokenTTL)
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", opts.TailscaleEnabled)
	if opts.TailscaleEnabled {
		fmt.Fprintf(&cfg, "  hostname: %q\n", opts.TSHostname)
		if opts.TSAuthKey != "" {
			fmt.Fprintf(&cfg, "  auth_key: %q\n", opts.TSAuthKey)
		}
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", opts.TSEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", opts.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", opts.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", opts.LogFormat)

	return cfg.String()
}

func isYes(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "yes" || a == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}

	if input == "" {
		return defaultVal
	}
	return input
}
