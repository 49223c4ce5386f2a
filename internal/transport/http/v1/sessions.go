package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/improv/internal/domain"
	"github.com/xiaot623/improv/internal/repository"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// CreateSession opens a new scene.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	var req domain.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	session, err := h.service.CreateSession(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// GetSession returns the current state of a session.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, session)
}

// SubmitTurnBody is the body of a turn submission.
type SubmitTurnBody struct {
	ExpectedTurnIndex *int   `json:"expected_turn_index"`
	Input             string `json:"input"`
	RequestID         string `json:"request_id,omitempty"`
}

// SubmitTurn advances a session by one turn.
// POST /v1/sessions/:session_id/turns
func (h *Handler) SubmitTurn(c echo.Context) error {
	var body SubmitTurnBody
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.ExpectedTurnIndex == nil {
		return badRequest(c, "expected_turn_index is required")
	}
	requestID := body.RequestID
	if requestID == "" {
		requestID = c.Response().Header().Get(echo.HeaderXRequestID)
	}

	result, err := h.service.SubmitTurn(c.Request().Context(), domain.TurnRequest{
		SessionID:         c.Param("session_id"),
		ExpectedTurnIndex: *body.ExpectedTurnIndex,
		Input:             body.Input,
		RequestID:         requestID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// RecordUsage counts a completed metered session if it was not counted yet.
// POST /v1/sessions/:session_id/usage
func (h *Handler) RecordUsage(c echo.Context) error {
	session, err := h.service.RecordSessionUsage(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id":     session.SessionID,
		"metered":        session.Metered,
		"usage_recorded": session.UsageRecorded,
	})
}

// GetSessionEvents retrieves trace events for a session.
// GET /v1/sessions/:session_id/events
func (h *Handler) GetSessionEvents(c echo.Context) error {
	filter := repository.EventFilter{
		SessionID: c.Param("session_id"),
		Limit:     defaultEventLimit,
	}
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return badRequest(c, "limit must be a positive integer")
		}
		filter.Limit = min(val, maxEventLimit)
	}
	if t := c.QueryParam("after_ts"); t != "" {
		val, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return badRequest(c, "after_ts must be a unix millisecond timestamp")
		}
		filter.AfterTs = val
	}
	if types := c.QueryParam("types"); types != "" {
		for _, t := range strings.Split(types, ",") {
			if t = strings.TrimSpace(t); t != "" {
				filter.Types = append(filter.Types, t)
			}
		}
	}

	events, err := h.service.GetSessionEvents(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}
	if events == nil {
		events = []domain.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events":   events,
		"has_more": len(events) == filter.Limit,
	})
}
