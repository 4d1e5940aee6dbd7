package http

import (
	"errors"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/ledger"
	"github.com/tembohq/sms-gateway/internal/ratelimit"
	"github.com/tembohq/sms-gateway/internal/sender"
	"github.com/tembohq/sms-gateway/internal/service/send"
)

// errorBody is the stable error envelope: a machine code plus a human
// recovery hint. Codes never change meaning across releases.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func errorJSON(c echo.Context, status int, code, message, hint string) error {
	return c.JSON(status, errorResponse{Error: errorBody{Code: code, Message: message, Hint: hint}})
}

// sendErrorJSON maps pipeline failures to the stable taxonomy.
func sendErrorJSON(c echo.Context, err error) error {
	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(limited.RetryAfter.Seconds())))
		return errorJSON(c, http.StatusTooManyRequests, "RATE_LIMITED",
			limited.Error(), "slow down or request a higher limit for this credential")
	}

	switch {
	case errors.Is(err, sender.ErrNotFound):
		return errorJSON(c, http.StatusBadRequest, "SENDER_IDENTITY_INVALID",
			"sender identity is not active for this tenant",
			"register the sender id and wait for approval, or omit sender_id to use the default")
	case errors.Is(err, ledger.ErrInsufficientCredits):
		return errorJSON(c, http.StatusPaymentRequired, "INSUFFICIENT_CREDITS",
			"not enough credits for this send", "top up credits and retry")
	case errors.Is(err, send.ErrMessageTooLong):
		return errorJSON(c, http.StatusBadRequest, "MESSAGE_TOO_LONG",
			"message exceeds the maximum segment count", "shorten the message")
	case errors.Is(err, send.ErrNoRecipients),
		errors.Is(err, send.ErrTooManyRecipients),
		errors.Is(err, send.ErrEmptyBody):
		return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), "")
	}

	var perr *dispatcher.ProviderError
	if errors.As(err, &perr) {
		return errorJSON(c, http.StatusBadGateway, "PROVIDER_ERROR",
			"upstream provider rejected the send: "+perr.Message,
			"credits were refunded; retry later (upstream code "+perr.Code+")")
	}

	return errorJSON(c, http.StatusInternalServerError, "SYSTEM_ERROR",
		"internal error", "retry later; the send was not billed if it did not dispatch")
}
