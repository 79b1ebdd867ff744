package rest

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Tenant and actor identity arrive as headers resolved by the edge proxy.
// Session mechanics live outside this service.
const (
	HeaderClinicID = "X-Clinic-ID"
	HeaderUserID   = "X-User-ID"
)

const (
	ctxClinicID = "clinic_id"
	ctxUserID   = "user_id"
)

// TenantContext resolves the clinic and acting-user headers into the request
// context. Requests without a parseable clinic id never reach a handler.
func TenantContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			clinicID, err := uuid.Parse(c.Request().Header.Get(HeaderClinicID))
			if err != nil || clinicID == uuid.Nil {
				return echo.NewHTTPError(http.StatusBadRequest, "valid X-Clinic-ID header is required")
			}
			c.Set(ctxClinicID, clinicID)

			if raw := c.Request().Header.Get(HeaderUserID); raw != "" {
				userID, err := uuid.Parse(raw)
				if err != nil {
					return echo.NewHTTPError(http.StatusBadRequest, "X-User-ID header must be a UUID")
				}
				c.Set(ctxUserID, userID)
			}

			return next(c)
		}
	}
}

// ClinicID returns the tenant identity attached by TenantContext.
func ClinicID(c echo.Context) uuid.UUID {
	id, _ := c.Get(ctxClinicID).(uuid.UUID)
	return id
}

// UserID returns the acting user, or uuid.Nil when the header was absent.
func UserID(c echo.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID).(uuid.UUID)
	return id
}
