package middleware

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/tembohq/sms-gateway/internal/repository"
)

const ctxCredential = "credential"

// CredentialFromCtx extracts the authenticated credential set by APIKeyMiddleware.
func CredentialFromCtx(c echo.Context) (*repository.Credential, bool) {
	cred, ok := c.Get(ctxCredential).(*repository.Credential)
	return cred, ok
}

// APIKeyMiddleware authenticates requests using the X-API-Key header. The key
// resolves to exactly one tenant; revoked credentials and suspended tenants
// are rejected alike.
func APIKeyMiddleware(credentials repository.CredentialsRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			cred, err := credentials.GetByAPIKey(c.Request().Context(), key)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "auth error"})
			}
			if cred == nil || cred.Status != "active" || cred.TenantStatus != "active" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			}
			c.Set(ctxCredential, cred)
			return next(c)
		}
	}
}

// RequireWrite gates mutating endpoints on the credential's write scope.
func RequireWrite(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := CredentialFromCtx(c)
		if !ok || !cred.CanWrite {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "credential has no write scope"})
		}
		return next(c)
	}
}

// RequireRead gates report endpoints on the credential's read scope.
func RequireRead(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cred, ok := CredentialFromCtx(c)
		if !ok || !cred.CanRead {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "credential has no read scope"})
		}
		return next(c)
	}
}
