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

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/xiaot623/improv/internal/ingress/config"
	internalhttp "github.com/xiaot623/improv/internal/ingress/http"
	"github.com/xiaot623/improv/internal/ingress/hub"
	"github.com/xiaot623/improv/internal/ingress/orchestrator"
	"github.com/xiaot623/improv/internal/ingress/rpc"
	"github.com/xiaot623/improv/internal/ingress/ws"
	"github.com/xiaot623/improv/internal/logging"
)

func main() {
	if err := run(); err != nil {
		logging.Logger().Error("ingress exited", "error", err)
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

	logger.Info("starting ingress",
		"ws_port", cfg.WSPort,
		"http_port", cfg.HTTPPort,
		"rpc_addr", cfg.RPCAddr,
		"orchestrator_url", cfg.OrchestratorURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize hub
	connectionHub := hub.NewHub(logger)
	go connectionHub.Run(ctx)

	// Initialize orchestrator client
	orchClient := orchestrator.NewClient(cfg.OrchestratorURL, cfg.OrchestratorTimeout)

	// Initialize WebSocket server
	wsServer := ws.NewServer(cfg, connectionHub, orchClient, logger)

	wsEcho := echo.New()
	wsEcho.HideBanner = true
	wsEcho.HidePort = true
	wsEcho.Use(middleware.RequestID())
	wsEcho.Use(middleware.Recover())
	wsEcho.GET("/ws", wsServer.HandleWebSocket)

	// Internal HTTP and RPC servers
	httpServer := internalhttp.NewServer(connectionHub)
	rpcServer, err := rpc.NewServer(connectionHub, logger)
	if err != nil {
		return fmt.Errorf("init rpc server: %w", err)
	}

	serverErr := make(chan error, 3)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.WSPort)
		if err := wsEcho.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("websocket server: %w", err)
		}
	}()
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := httpServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := rpcServer.Start(cfg.RPCAddr); err != nil {
			serverErr <- fmt.Errorf("rpc server: %w", err)
		}
	}()

	logger.Info("ingress started")

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return err
	}

	logger.Info("shutting down ingress")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wsEcho.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown websocket server gracefully", "error", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown http server gracefully", "error", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown rpc server gracefully", "error", err)
	}

	logger.Info("ingress stopped")
	return nil
}
