package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/dispatcher"
	"github.com/tembohq/sms-gateway/internal/service/delivery"
)

type dlrCallbackRequest struct {
	RequestID json.Number `json:"request_id"`
	DestAddr  string      `json:"dest_addr"`
	Status    string      `json:"status"`
}

// dlrCallbackHandler ingests pushed delivery reports. It shares the tracker's
// idempotent apply path, so a callback racing a poll settles the message once.
// Reports for unknown messages are acknowledged and dropped, since erroring
// only makes the upstream retry.
func dlrCallbackHandler(applier *delivery.Applier) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "unreadable body", "")
		}
		var req dlrCallbackRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", "")
		}
		if req.RequestID.String() == "" || req.DestAddr == "" {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST",
				"request_id and dest_addr are required", "")
		}

		var status dispatcher.DeliveryStatus
		switch strings.ToUpper(req.Status) {
		case "DELIVERED":
			status = dispatcher.DeliveryDelivered
		case "UNDELIVERED", "REJECTED", "EXPIRED":
			status = dispatcher.DeliveryUndelivered
		default:
			status = dispatcher.DeliveryPending
		}

		changed, err := applier.ApplyByTracking(c.Request().Context(),
			req.RequestID.String(), req.DestAddr, status, body)
		if err != nil {
			return sendErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "applied": changed})
	}
}
