package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/jmehdipour/vps-billing/internal/billing"
	echo "github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type depositReq struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"`
}

func accountIDParam(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func getAccountHandler(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := accountIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		}
		acct, err := accounts.GetAccount(c.Request().Context(), id)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		if acct == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "account not found"})
		}
		return c.JSON(http.StatusOK, acct)
	}
}

// depositHandler credits an account. Replaying a request_id is a no-op.
func depositHandler(accounts Accounts, lg *zap.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := accountIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		}

		var req depositReq
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}
		req.RequestID = strings.TrimSpace(req.RequestID)
		if req.Amount <= 0 || req.RequestID == "" || len(req.RequestID) > 100 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		}

		txn, err := accounts.Deposit(c.Request().Context(), id, req.Amount, req.RequestID)
		switch {
		case err == nil:
			return c.JSON(http.StatusCreated, map[string]any{
				"deposit":     true,
				"idempotent":  false,
				"transaction": txn,
			})
		case errors.Is(err, billing.ErrAlreadySettled):
			return c.JSON(http.StatusOK, map[string]any{
				"deposit":    true,
				"idempotent": true,
				"request_id": req.RequestID,
			})
		case errors.Is(err, billing.ErrAccountNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "account not found"})
		default:
			lg.Error("deposit failed", zap.Int64("account_id", id), zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
	}
}

func listTransactionsHandler(accounts Accounts) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := accountIDParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid account id"})
		}

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		rows, err := accounts.Transactions(c.Request().Context(), id, limit)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, map[string]any{
			"items": rows,
			"limit": limit,
			"count": len(rows),
		})
	}
}
