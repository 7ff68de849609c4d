// main implements the CLI for the MCP orchestrator gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/kagenti/mcp-orchestrator/internal/config"
	"github.com/kagenti/mcp-orchestrator/internal/orchestrator"
	"github.com/kagenti/mcp-orchestrator/internal/session"
)

const defaultConfigFileName = "mcp-orchestrator/config.yaml"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run implements the CLI surface: --config-path/-c prints the config path
// that would be used and exits; --help/-h prints usage and exits; anything
// else starts the server using that same resolved path.
func run(args []string, out *os.File) int {
	flags := pflag.NewFlagSet("mcp-orchestrator", pflag.ContinueOnError)
	flags.SetOutput(out)

	var (
		printConfigPath bool
		help            bool
		signingKey      string
		sessionLength   int64
	)
	flags.BoolVarP(&printConfigPath, "config-path", "c", false, "print the active config path and exit")
	flags.BoolVarP(&help, "help", "h", false, "print usage and exit")
	flags.StringVar(&signingKey, "session-signing-key", "", "HMAC signing key for downstream session JWTs")
	flags.Int64Var(&sessionLength, "session-minutes", 0, "downstream session lifetime in minutes (0 = default)")

	if err := flags.Parse(args); err != nil {
		return 1
	}

	if help {
		fmt.Fprintln(out, "mcp-orchestrator [flags]")
		flags.PrintDefaults()
		return 0
	}

	configPath := resolveConfigPath()

	if printConfigPath {
		fmt.Fprintln(out, configPath)
		return 0
	}

	logger := slog.New(slog.NewTextHandler(out, nil))

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		return 1
	}
	applyEnvOverrides(cfg)

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	}

	logger = logger.With("component", "mcp-orchestrator")
	if signingKey == "" {
		signingKey = os.Getenv("SESSION_SIGNING_KEY")
	}
	if signingKey == "" {
		logger.Warn("no session signing key configured, generating an ephemeral one for this process")
		signingKey = generateEphemeralKey()
	}

	orch := orchestrator.New(cfg, logger)

	sessionMgr, err := session.NewJWTManager(signingKey, sessionLength, logger, orch.Manager())
	if err != nil {
		logger.Error("failed to build session manager", "error", err)
		return 1
	}

	mcpServer := server.NewMCPServer(
		"mcp-orchestrator",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
	)
	mcpServer.AddTools(orch.ServerTools()...)
	orch.WireNativeSurface(mcpServer)

	httpServer := &http.Server{
		Addr:         listenAddr(cfg),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	streamable := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithStreamableHTTPServer(httpServer),
		server.WithSessionIdManager(sessionMgr),
	)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	httpServer.Handler = mux

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	go func() {
		logger.Info("starting downstream listener", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("downstream listener failed", "error", err)
		}
	}()

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down downstream listener", "error", err)
	}
	orch.Shutdown()
	return 0
}

// resolveConfigPath honors CONFIG_PATH if set, else falls back to the
// platform's per-user config directory.
func resolveConfigPath() string {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, defaultConfigFileName)
}

func applyEnvOverrides(cfg *config.ServerConfig) {
	if portStr := os.Getenv("PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = &port
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		cfg.Host = &host
	}
}

func listenAddr(cfg *config.ServerConfig) string {
	host := "0.0.0.0"
	if cfg.Host != nil {
		host = *cfg.Host
	}
	port := 8080
	if cfg.Port != nil {
		port = *cfg.Port
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func generateEphemeralKey() string {
	return fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
}
