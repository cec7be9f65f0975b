// Command llmosd runs the memory-augmented conversation server: it
// loads configuration, wires the LLM host, token registry, persona
// store, SQLite conversation registry and metrics recorder into a
// Conversation Runtime, and serves the HTTP API (spec.md §6) until
// signaled to shut down. Grounded on the teacher's cmd/maestro/main.go
// for flag parsing and graceful-shutdown shape, narrowed to this
// domain's single-process server instead of the teacher's multi-agent
// orchestrator.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmos/pkg/config"
	"llmos/pkg/httpapi"
	"llmos/pkg/llmhost"
	"llmos/pkg/logx"
	"llmos/pkg/metrics"
	"llmos/pkg/persistence"
	"llmos/pkg/personas"
	"llmos/pkg/runtime"
	"llmos/pkg/tokenregistry"
)

func main() {
	var configPath string
	var shutdownTimeout time.Duration
	flag.StringVar(&configPath, "config", "config.json", "Path to server configuration file")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "Grace period for in-flight requests on shutdown")
	flag.Parse()

	logger := logx.NewLogger("llmosd")

	if err := run(configPath, shutdownTimeout, logger); err != nil {
		logger.Error("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, shutdownTimeout time.Duration, logger *logx.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	personaStore := personas.New(cfg.PersonasDir)

	instructions, err := os.ReadFile(cfg.InstructionsPath)
	if err != nil {
		return fmt.Errorf("read instructions file: %w", err)
	}

	tokens := tokenregistry.New()

	creds, err := hostCredentials(cfg)
	if err != nil {
		return fmt.Errorf("resolve provider credentials: %w", err)
	}
	host, err := llmhost.NewHost(llmhost.Provider(cfg.Model.Provider), cfg.Model.Name, creds)
	if err != nil {
		return fmt.Errorf("build llm host: %w", err)
	}

	registryPath := cfg.DataDir + "/conversations.db"
	registry, err := persistence.Open(registryPath)
	if err != nil {
		return fmt.Errorf("open conversation registry: %w", err)
	}
	defer func() {
		if cerr := registry.Close(); cerr != nil {
			logger.Warn("close conversation registry: %v", cerr)
		}
	}()

	recorder := metrics.NewPrometheusRecorder()

	embedHost, err := llmhost.NewOllamaHost(cfg.OllamaHost)
	if err != nil {
		return fmt.Errorf("build embedding host: %w", err)
	}

	rt := runtime.New(runtime.Config{
		DataDir:      cfg.DataDir,
		Personas:     personaStore,
		Instructions: string(instructions),
		Tokens:       tokens,
		Budget:       cfg.Budget,
		Model:        cfg.Model,
		Host:         host,
		SkipArchival: cfg.QdrantAddr == "",
		QdrantAddr:   cfg.QdrantAddr,
		Embedder:     embedHost,
		Registry:     registry,
	})

	srv := httpapi.New(rt, personaStore, recorder)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-sigChan:
		logger.Info("received signal %s, shutting down gracefully", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		logger.Info("shutdown complete")
		return nil
	}
}

// hostCredentials resolves the API key (if any) for cfg's configured
// provider via config.GetAPIKey's secrets-file-then-env precedence.
// Ollama needs no key, only its host URL.
func hostCredentials(cfg *config.Config) (llmhost.Credentials, error) {
	if cfg.Model.Provider == config.ProviderOllama {
		return llmhost.Credentials{HostURL: cfg.OllamaHost}, nil
	}
	apiKey, err := config.GetAPIKey(cfg.Model.Provider)
	if err != nil {
		return llmhost.Credentials{}, err
	}
	return llmhost.Credentials{APIKey: apiKey}, nil
}
