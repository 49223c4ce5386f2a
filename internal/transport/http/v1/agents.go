package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/improv/internal/domain"
)

// RegisterAgent registers or updates an agent.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.RegisterAgentRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	agent, err := h.service.RegisterAgent(ctx, req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"ok":            true,
		"agent":         agent,
		"registered_at": agent.CreatedAt.UnixMilli(),
	})
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.service.ListAgents(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	if agents == nil {
		agents = []domain.Agent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
	})
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.service.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, agent)
}
