package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xiaot623/improv/internal/adapter/agentclient"
	"github.com/xiaot623/improv/internal/adapter/ingress"
	"github.com/xiaot623/improv/internal/adapter/llm"
	"github.com/xiaot623/improv/internal/config"
	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/policy"
	"github.com/xiaot623/improv/internal/repository"
	"github.com/xiaot623/improv/internal/service"
	transporthttp "github.com/xiaot623/improv/internal/transport/http"
	"github.com/xiaot623/improv/internal/usage"
)

func main() {
	if err := run(); err != nil {
		logging.Logger().Error("orchestrator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}
	if err := catalog.Apply(cfg); err != nil {
		return fmt.Errorf("apply catalog: %w", err)
	}
	policies, err := catalog.TierPolicies()
	if err != nil {
		return err
	}
	limiter, err := usage.NewLimiter(policies)
	if err != nil {
		return fmt.Errorf("init usage limiter: %w", err)
	}

	logger.Info("starting orchestrator",
		"http_port", cfg.HTTPPort,
		"database", cfg.DatabaseURL,
		"ingress_rpc", cfg.IngressRPCAddr,
		"llm_mode", os.Getenv(llm.EnvImprovMode),
		"max_turns", cfg.MaxTurns,
		"phase_boundaries", cfg.PhaseBoundaries,
	)

	// Initialize store
	db, err := repository.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize policy engine
	policyContent := policy.DefaultPolicy
	if cfg.PolicyPath != "" {
		data, err := os.ReadFile(cfg.PolicyPath)
		if err != nil {
			return fmt.Errorf("read policy: %w", err)
		}
		policyContent = string(data)
	}
	policyEngine, err := policy.NewEngine(ctx, policyContent)
	if err != nil {
		return fmt.Errorf("init policy engine: %w", err)
	}

	// Agent capabilities
	llmClient := llm.NewLLMClient(cfg.LiteLLMURL, cfg.LiteLLMAPIKey, cfg.LLMTimeout)
	checkCtx, cancelCheck := context.WithTimeout(ctx, 5*time.Second)
	if err := llm.CheckModel(checkCtx, llmClient, cfg.LLMModel); err != nil {
		logger.Warn("default LLM model unavailable, llm agents may fail", "model", cfg.LLMModel, "error", err)
	}
	cancelCheck()
	capabilities := map[domain.AgentKind]domain.AgentCapability{
		domain.AgentKindHTTP: agentclient.NewClient(),
		domain.AgentKindLLM:  llm.NewAgent(llmClient, cfg.LLMModel),
	}

	// Ingress pushes are optional
	var pusher service.EventPusher
	if ingressClient := ingress.NewClient(cfg.IngressRPCAddr); ingressClient.Enabled() {
		pusher = ingressClient
	}

	svc := service.New(db, capabilities, pusher, cfg, policyEngine, limiter)
	if _, err := svc.EnsureDefaultAgent(ctx); err != nil {
		return fmt.Errorf("register default agent: %w", err)
	}

	go svc.RunEventPusher(ctx)
	go svc.RunIdleSessionMonitor(ctx)

	server := transporthttp.NewServer(svc)
	serverErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	logger.Info("orchestrator API started", "port", cfg.HTTPPort)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down orchestrator")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", "error", err)
	}

	logger.Info("orchestrator stopped")
	return nil
}
