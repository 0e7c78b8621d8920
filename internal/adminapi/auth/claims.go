// Package auth provides JWT issuance and validation for the admin API,
// grounded on the teacher's control-plane JWT service
// (internal/controlplane/api/auth).
package auth

import "github.com/golang-jwt/jwt/v5"

// AdminClaim is the claim value asserting operator (admin) access; a
// token without it may still be valid but is rejected with 403 by
// middleware.RequireAdmin, which guards every /api/v1 route.
const AdminClaim = "sasl:admin"

// Claims is the JWT payload issued by saslbrokerctl and validated by
// the admin API. Unlike the control plane's user/group/role model, the
// broker has a single operator role: a token either carries the
// sasl:admin scope or it doesn't.
type Claims struct {
	jwt.RegisteredClaims

	// Scope lists the claims granted to this token; currently only
	// AdminClaim is meaningful.
	Scope []string `json:"scope"`
}

// IsAdmin reports whether the token carries the sasl:admin scope.
func (c *Claims) IsAdmin() bool {
	for _, s := range c.Scope {
		if s == AdminClaim {
			return true
		}
	}
	return false
}
