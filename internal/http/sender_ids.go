package http

import (
	"errors"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/http/middleware"
	"github.com/tembohq/sms-gateway/internal/model"
	"github.com/tembohq/sms-gateway/internal/sender"
)

type registerSenderRequest struct {
	Identifier    string `json:"identifier"`
	SampleContent string `json:"sample_content"`
}

type reviewSenderRequest struct {
	Reviewer string `json:"reviewer"`
	Reason   string `json:"reason"`
}

type senderIdentityView struct {
	Identifier    string     `json:"identifier"`
	SampleContent string     `json:"sample_content"`
	Status        string     `json:"status"`
	ReviewedBy    *string    `json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
	ReviewReason  *string    `json:"review_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func senderView(s *model.SenderIdentity) senderIdentityView {
	return senderIdentityView{
		Identifier:    s.Identifier,
		SampleContent: s.SampleContent,
		Status:        s.Status.String(),
		ReviewedBy:    s.ReviewedBy,
		ReviewedAt:    s.ReviewedAt,
		ReviewReason:  s.ReviewReason,
		CreatedAt:     s.CreatedAt,
	}
}

func registerSenderHandler(registry *sender.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}

		var req registerSenderRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", "")
		}

		s, err := registry.Register(c.Request().Context(), cred.TenantID, req.Identifier, req.SampleContent)
		switch {
		case errors.Is(err, sender.ErrInvalidIdentifier):
			return errorJSON(c, http.StatusBadRequest, "SENDER_IDENTITY_INVALID",
				err.Error(), "use up to 11 letters and digits")
		case errors.Is(err, sender.ErrExists):
			return c.JSON(http.StatusConflict, senderView(s))
		case err != nil:
			return sendErrorJSON(c, err)
		}
		return c.JSON(http.StatusCreated, senderView(s))
	}
}

func listSendersHandler(registry *sender.Registry) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}
		rows, err := registry.List(c.Request().Context(), cred.TenantID)
		if err != nil {
			return sendErrorJSON(c, err)
		}
		views := make([]senderIdentityView, 0, len(rows))
		for i := range rows {
			views = append(views, senderView(&rows[i]))
		}
		return c.JSON(http.StatusOK, map[string]any{"sender_ids": views})
	}
}

func reviewSenderHandler(registry *sender.Registry, approve bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := middleware.CredentialFromCtx(c)
		if !ok {
			return errorJSON(c, http.StatusUnauthorized, "SYSTEM_ERROR", "no credential in context", "")
		}

		var req reviewSenderRequest
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed JSON body", "")
		}
		if req.Reviewer == "" {
			return errorJSON(c, http.StatusBadRequest, "INVALID_REQUEST", "reviewer is required", "")
		}

		identifier := c.Param("identifier")
		var (
			s   *model.SenderIdentity
			err error
		)
		if approve {
			s, err = registry.Approve(c.Request().Context(), cred.TenantID, identifier, req.Reviewer)
		} else {
			s, err = registry.Reject(c.Request().Context(), cred.TenantID, identifier, req.Reviewer, req.Reason)
		}
		if errors.Is(err, sender.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "SENDER_IDENTITY_INVALID",
				"sender identity not found", "")
		}
		if err != nil {
			return sendErrorJSON(c, err)
		}
		return c.JSON(http.StatusOK, senderView(s))
	}
}
