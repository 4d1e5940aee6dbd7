package http

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/http/middleware"
	"github.com/tembohq/sms-gateway/internal/service/send"
)

const scheduleTimeLayout = "2006-01-02 15:04"

type sendSMSRequest struct {
	Recipients   []string `json:"recipients"`
	Message      string   `json:"message"`
	SenderID     string   `json:"sender_id"`
	ScheduleTime string   `json:"schedule_time"` // "YYYY-MM-DD HH:MM", UTC
}

type sendSMSResponse struct {
	Success     bool     `json:"success"`
	MessageID   string   `json:"message_id"` // batch id
	MessageIDs  []string `json:"message_ids"`
	Status      string   `json:"status"`
	Encoding    string   `json:"encoding"`
	Segments    int      `json:"segments"`
	CostCredits int64    `json:"cost_credits"`
	Valid       int      `json:"valid"`
	Invalid     int      `json:"invalid"`
	Duplicates  int      `json:"duplicates"`
}

func sendSMSHandler(svc *send.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}

		var req sendSMSRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", "")
		}

		var scheduleAt *time.Time
		if req.ScheduleTime != "" {
			t, err := time.Parse(scheduleTimeLayout, req.ScheduleTime)
			if err != nil {
				return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST",
					"schedule_time must be formatted as "+scheduleTimeLayout, "")
			}
			if t.Before(time.Now()) {
				return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST",
					"schedule_time is in the past", "")
			}
			scheduleAt = &t
		}

		resp, err := svc.Send(c.Request().Context(), send.Request{
			Credential:   cred,
			SenderID:     req.SenderID,
			Recipients:   req.Recipients,
			Body:         req.Message,
			ScheduleTime: scheduleAt,
		})
		if err != nil {
			return sendErrorJSON(c, err)
		}

		return c.JSON(http.StatusOK, sendSMSResponse{
			Success:     true,
			MessageID:   resp.BatchID,
			MessageIDs:  resp.MessageIDs,
			Status:      "sent",
			Encoding:    resp.Encoding.String(),
			Segments:    resp.Segments,
			CostCredits: resp.CostCredits,
			Valid:       resp.Valid,
			Invalid:     resp.Invalid,
			Duplicates:  resp.Duplicates,
		})
	}
}
