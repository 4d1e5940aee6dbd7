package http

import (
	"net/http"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/http/middleware"
	"github.com/tembohq/sms-gateway/internal/ledger"
)

type topupRequest struct {
	Amount    int64  `json:"amount"`
	RequestID string `json:"request_id"` // caller-chosen idempotency key
}

type topupResponse struct {
	Success        bool `json:"success"`
	AlreadyApplied bool `json:"already_applied"`
}

func topupHandler(credits *ledger.Ledger) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}

		var req topupRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", "")
		}
		if req.Amount <= 0 {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "amount must be positive", "")
		}
		if req.RequestID == "" {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "request_id is required",
				"pass a unique request_id so retries are not double-credited")
		}

		already, err := credits.Topup(c.Request().Context(), cred.TenantID, req.Amount, req.RequestID)
		if err != nil {
			return sendErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, topupResponse{Success: true, AlreadyApplied: already})
	}
}
