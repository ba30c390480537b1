package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/concierge/internal/agent"
	"github.com/kalambet/concierge/internal/api"
	"github.com/kalambet/concierge/internal/config"
	"github.com/kalambet/concierge/internal/ingest"
	"github.com/kalambet/concierge/internal/llm"
	"github.com/kalambet/concierge/internal/reranking"
	"github.com/kalambet/concierge/internal/retrieval"
	"github.com/kalambet/concierge/internal/storage"
	"github.com/kalambet/concierge/internal/supervisor"
	"github.com/kalambet/concierge/internal/tools"
	"github.com/kalambet/concierge/internal/websearch"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the concierge server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running concierge server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show concierge system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "concierge.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "concierge version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to start a second instance: check health, then claim the PID file.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("concierge is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("concierge is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage is a hard prerequisite: a failed open aborts startup.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	engine, err := llm.NewOpenAIEngine(cfg.OpenAI.APIKey)
	if err != nil {
		return fmt.Errorf("initializing OpenAI engine: %w", err)
	}

	// Build the retrieval stack and publish the first engine version.
	embedder := retrieval.NewEmbedder(engine, cfg.OpenAI.EmbedModel)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	rerankTimeout, err := time.ParseDuration(cfg.Retrieval.RerankingTimeout)
	if err != nil {
		slog.Warn("invalid reranking timeout, using default 5s", "value", cfg.Retrieval.RerankingTimeout, "error", err)
		rerankTimeout = 5 * time.Second
	}
	reranker := reranking.NewReranker(engine, cfg.OpenAI.RerankModel, true, rerankTimeout)
	provider, err := retrieval.NewProvider(retrieval.EngineConfig{
		Embedder:       embedder,
		Vectors:        vectorStore,
		Reranker:       reranker,
		TopK:           cfg.Retrieval.TopK,
		LexicalWeight:  cfg.Retrieval.LexicalWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
	})
	if err != nil {
		return fmt.Errorf("building retrieval engine: %w", err)
	}

	// Register the agent tool set.
	registry := tools.NewRegistry()
	registry.MustRegister(tools.NewCurrentTime(nil))
	registry.MustRegister(tools.NewListAvailableSlots(store))
	registry.MustRegister(tools.NewBookSlot(store))
	registry.MustRegister(tools.NewKnowledgeSearch(provider))
	registry.MustRegister(tools.NewWebSearch(websearch.NewClient(cfg.Tavily.APIKey, cfg.Tavily.MaxResults)))

	sup := supervisor.New(store,
		supervisor.NewRouter(engine, cfg.OpenAI.SupervisorModel),
		agent.NewResearch(engine, cfg.OpenAI.AgentModel, registry),
		agent.NewAppointment(engine, cfg.OpenAI.AgentModel, registry),
	)

	handler := api.NewHandler(api.Deps{
		Supervisor: sup,
		Store:      store,
		Ingestor:   ingest.NewIngestor(store),
		Provider:   provider,
		Token:      cfg.Server.APIToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Start the embedding worker.
	worker := ingest.NewWorker(store, embedder, vectorStore, provider, 500*time.Millisecond)
	go worker.Run(ctx)

	// Start the MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Provider: provider})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start HTTP server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "concierge listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("concierge is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop concierge (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to concierge (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Supervisor model", "%s", cfg.OpenAI.SupervisorModel)
	printStatus("Agent model", "%s", cfg.OpenAI.AgentModel)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
