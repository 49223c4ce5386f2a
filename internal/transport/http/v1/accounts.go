package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/improv/internal/domain"
)

// CreateAccount registers an account on a tier.
// POST /v1/accounts
func (h *Handler) CreateAccount(c echo.Context) error {
	var req domain.CreateAccountRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	account, err := h.service.CreateAccount(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, account)
}

// GetAccount returns an account's usage record.
// GET /v1/accounts/:account_id
func (h *Handler) GetAccount(c echo.Context) error {
	account, err := h.service.GetAccount(c.Request().Context(), c.Param("account_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, account)
}

// CheckAccess reports whether the account may start a session.
// GET /v1/accounts/:account_id/access?action=audio
func (h *Handler) CheckAccess(c echo.Context) error {
	action := domain.AccessAction(c.QueryParam("action"))
	if action == "" {
		action = domain.AccessActionAudio
	}
	decision, err := h.service.CheckAccess(c.Request().Context(), c.Param("account_id"), action)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, decision)
}
