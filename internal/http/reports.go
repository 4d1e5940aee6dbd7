package http

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/http/middleware"
	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/repository"
)

type messageView struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	Sender      string    `json:"sender"`
	Provider    string    `json:"provider,omitempty"`
	DestAddr    string    `json:"dest_addr"`
	Encoding    string    `json:"encoding"`
	Segments    int       `json:"segments"`
	CostCredits int64     `json:"cost_credits"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// listMessagesHandler serves the message report from the ClickHouse read
// model, filtered by status and destination.
func listMessagesHandler(ch repository.CHMessagesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}

		status := model.MessageStatus(c.QueryParam("status"))
		if status != "" && !status.Valid() {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST",
				"unknown status filter", "one of queued|sent|delivered|undelivered|failed")
		}
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := ch.ListByTenant(c.Request().Context(), cred.TenantID, c.QueryParam("dest_addr"), status, limit, offset)
		if err != nil {
			return sendErrorJSON(c, err)
		}

		views := make([]messageView, 0, len(rows))
		for _, m := range rows {
			views = append(views, messageView{
				ID:          m.ID,
				BatchID:     m.BatchID,
				Sender:      m.Sender,
				Provider:    m.Provider,
				DestAddr:    m.DestAddr,
				Encoding:    m.Encoding,
				Segments:    m.Segments,
				CostCredits: m.CostCredits,
				Status:      m.Status.String(),
				CreatedAt:   m.CreatedAt,
				UpdatedAt:   m.UpdatedAt,
			})
		}
		return c.JSON(http.StatusOK, map[string]any{"messages": views})
	}
}
