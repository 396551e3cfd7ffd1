package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lendcore/agentd/api"
	"github.com/lendcore/agentd/chat"
	"github.com/lendcore/agentd/config"
	"github.com/lendcore/agentd/engine"
	"github.com/lendcore/agentd/hub"
	"github.com/lendcore/agentd/policy"
	"github.com/lendcore/agentd/store"
	"github.com/lendcore/agentd/tools"
)

func main() {
	// Load configuration
	cfg := config.Load()

	log.Printf("Starting agentd...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Database: %s", cfg.DatabaseURL)
	log.Printf("Workers: %d, queue capacity: %d", cfg.WorkerCount, cfg.QueueCapacity)

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer db.Close()

	// Initialize chat client
	var chatClient chat.Client
	if cfg.ChatBaseURL != "" {
		log.Printf("Chat backend: %s", cfg.ChatBaseURL)
		chatClient = chat.NewOpenAIClient(cfg.ChatBaseURL, cfg.ChatAPIKey, cfg.ChatTimeout)
	} else {
		log.Printf("WARN: CHAT_BASE_URL not set, using mock chat client")
		chatClient = chat.NewMockClient()
	}

	// Initialize tool provider
	var toolProvider tools.Provider
	if cfg.ToolsURL != "" {
		log.Printf("Tool backend: %s", cfg.ToolsURL)
		toolProvider = tools.NewHTTPProvider(cfg.ToolsURL, cfg.ToolTimeout)
	} else {
		toolProvider = builtinTools()
	}

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize event hub
	h := hub.NewHub()
	go h.Run()
	defer h.Close()

	// Initialize engine
	eng, err := engine.New(db, chatClient, toolProvider, policyEngine, h, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	if err := eng.Start(engineCtx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	// Initialize handlers
	handler := api.NewHandler(db, eng, h)

	// Create Echo server
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	handler.RegisterRoutes(e)

	// Start server
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down agentd...")

	// Stop accepting new requests first, then park in-flight runs.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	stopEngine()
	if err := eng.Stop(); err != nil {
		log.Printf("Engine stopped with error: %v", err)
	}

	log.Println("Agentd stopped")
}

// builtinTools returns the local tool registry used when no external tool
// backend is configured.
func builtinTools() *tools.Registry {
	reg := tools.NewRegistry()

	err := reg.Register(tools.Definition{
		Name:        "time.now",
		Description: "Returns the current UTC time in RFC 3339 format.",
	}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		result, _ := json.Marshal(map[string]string{"now": time.Now().UTC().Format(time.RFC3339)})
		return result, nil
	})
	if err != nil {
		log.Fatalf("Failed to register built-in tool time.now: %v", err)
	}

	err = reg.Register(tools.Definition{
		Name:        "text.echo",
		Description: "Echoes back the provided text argument.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"]
		}`),
	}, func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		result, _ := json.Marshal(map[string]string{"text": in.Text})
		return result, nil
	})
	if err != nil {
		log.Fatalf("Failed to register built-in tool text.echo: %v", err)
	}

	return reg
}
