package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/ticket-bridge/pkg/util/errorutil"
)

// RequireTenantAccess ensures the operator's token covers the tenant named by
// the route parameter.
func RequireTenantAccess(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Claims.AllowsTenant(c.Params(param)) {
			return apperrors.NewForbidden("token does not cover this tenant")
		}
		return c.Next()
	}
}
