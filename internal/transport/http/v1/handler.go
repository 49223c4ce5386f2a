// Package v1 provides the versioned HTTP handlers for the orchestrator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/logging"
	"github.com/xiaot623/improv/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Accounts and access
	e.POST("/v1/accounts", h.CreateAccount)
	e.GET("/v1/accounts/:account_id", h.GetAccount)
	e.GET("/v1/accounts/:account_id/access", h.CheckAccess)

	// Agent registry API
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)

	// Sessions and turns
	e.POST("/v1/sessions", h.CreateSession)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.POST("/v1/sessions/:session_id/turns", h.SubmitTurn)
	e.POST("/v1/sessions/:session_id/usage", h.RecordUsage)
	e.GET("/v1/sessions/:session_id/events", h.GetSessionEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string      `json:"error"`
	Code      domain.Code `json:"code"`
	Retryable bool        `json:"retryable"`
}

// respondError renders err with the status and retry hint of its code.
func respondError(c echo.Context, err error) error {
	code := domain.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logging.LoggerFromContext(c.Request().Context()).Error("request error", "code", code, "error", err)
	}
	return c.JSON(status, ErrorResponse{
		Error:     domain.MessageOf(err),
		Code:      code,
		Retryable: code.Retryable(),
	})
}

func badRequest(c echo.Context, message string) error {
	return respondError(c, domain.E(domain.CodeInvalidArgument, "%s", message))
}
