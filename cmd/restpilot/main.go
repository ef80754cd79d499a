// RESTPilot server resolves natural-language requests against a service
// catalog by planning, synthesizing, and executing API-calling snippets.
// Serves the HTTP API and, with -mcp-stdio, an MCP tool surface on stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/restpilot/restpilot/pkg/api"
	"github.com/restpilot/restpilot/pkg/config"
	"github.com/restpilot/restpilot/pkg/graph"
	"github.com/restpilot/restpilot/pkg/llm"
	"github.com/restpilot/restpilot/pkg/mcpserver"
	"github.com/restpilot/restpilot/pkg/orchestrator"
	"github.com/restpilot/restpilot/pkg/snippet"
	"github.com/restpilot/restpilot/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	mcpStdio := flag.Bool("mcp-stdio",
		false,
		"Serve MCP on stdin/stdout instead of HTTP")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	slog.Info("Starting RESTPilot",
		"version", version.Full(),
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Collaborators
	llmClient, err := llm.NewHTTPClient(cfg.LLMClientConfig())
	if err != nil {
		slog.Error("Failed to initialize LLM client", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM client initialized",
		"provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	knowledgeGraph, err := buildGraph(cfg)
	if err != nil {
		slog.Error("Failed to initialize knowledge graph", "error", err)
		os.Exit(1)
	}

	runtime := buildRuntime(cfg)

	// 3. Orchestrator
	orch, err := orchestrator.New(orchestrator.Config{
		LLM:              llmClient,
		Graph:            knowledgeGraph,
		Runtime:          runtime,
		Logger:           slog.Default(),
		Defaults:         cfg.OptionDefaults(),
		SnippetMaxBytes:  cfg.Snippet.MaxBytes,
		SnippetNamespace: cfg.Snippet.DefaultNamespace,
		ServiceEndpoints: cfg.Runtime.ServiceEndpoints,
	})
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	if *mcpStdio {
		runMCP(ctx, orch)
		return
	}
	runHTTP(ctx, cfg, orch)
}

// buildGraph selects the knowledge graph backend: remote service when an
// endpoint is configured, local YAML catalog otherwise.
func buildGraph(cfg *config.Config) (graph.KnowledgeGraph, error) {
	if cfg.Graph.Endpoint != "" {
		slog.Info("Using remote knowledge graph", "endpoint", cfg.Graph.Endpoint)
		return graph.NewHTTPGraph(cfg.Graph.Endpoint), nil
	}
	g, err := graph.LoadCatalog(cfg.CatalogPath())
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", cfg.CatalogPath(), err)
	}
	slog.Info("Loaded local catalog", "path", cfg.CatalogPath())
	return g, nil
}

// buildRuntime selects the snippet runtime: sidecar when configured, the
// in-process fake otherwise (local development only).
func buildRuntime(cfg *config.Config) snippet.Runtime {
	if cfg.Runtime.Endpoint != "" {
		slog.Info("Using sidecar snippet runtime", "endpoint", cfg.Runtime.Endpoint)
		return snippet.NewSidecarRuntime(cfg.Runtime.Endpoint)
	}
	slog.Warn("No snippet runtime endpoint configured, using in-process fake")
	return snippet.NewFakeRuntime()
}

// runMCP serves the execute_prompt tool on stdio until the peer disconnects.
func runMCP(ctx context.Context, orch *orchestrator.Orchestrator) {
	srv := mcpserver.NewServer(orch, slog.Default())
	if err := srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		slog.Error("MCP server stopped", "error", err)
		os.Exit(1)
	}
}

// runHTTP serves the REST API until a shutdown signal arrives.
func runHTTP(ctx context.Context, cfg *config.Config, orch *orchestrator.Orchestrator) {
	server := api.NewServer(orch,
		api.WithAllowedWSOrigins(cfg.HTTP.AllowedWSOrigins))

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// In-flight requests get a bounded window to finish; their contexts are
	// cancelled when the listener closes connections.
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
