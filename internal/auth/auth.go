// Package auth checks the credentials presented for sensitive actions such
// as voiding an order.
package auth

import (
	"fmt"

	"github.com/dgrijalva/jwt-go"

	"taproom/internal/apperr"
)

// Checker validates privileged-action credentials. Terminals are shared
// between operators, so the check is whether the presented token belongs to
// some principal holding a privileged role, not whether it matches the
// operator driving the terminal.
type Checker struct {
	secret          []byte
	privilegedRoles map[string]bool
}

// NewChecker creates a checker for the given HMAC secret and role set
func NewChecker(secret string, roles []string) *Checker {
	set := make(map[string]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return &Checker{secret: []byte(secret), privilegedRoles: set}
}

// RequirePrivilege parses the token and verifies it carries a privileged
// role claim.
func (c *Checker) RequirePrivilege(tokenString string) error {
	if tokenString == "" {
		return apperr.Validationf("approval token required")
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return apperr.Validationf("approval token is invalid")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return apperr.Validationf("approval token is invalid")
	}
	role, _ := claims["role"].(string)
	if !c.privilegedRoles[role] {
		return apperr.Validationf("approval requires a privileged role")
	}
	return nil
}

// IssueToken mints a token for a principal; used by tests and provisioning
func (c *Checker) IssueToken(subject, role string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
	})
	return token.SignedString(c.secret)
}
