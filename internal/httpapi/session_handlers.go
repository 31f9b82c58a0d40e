package httpapi

import (
	"context"
	"fmt"
	"net/http"

	"arteng.org/internal/audit"
	"arteng.org/internal/auth"
	"arteng.org/internal/identity"
)

type sessionUser struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Role      string `json:"role"`
}

func userOf(p auth.Principal) sessionUser {
	return sessionUser{
		ID:        p.UserID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Role:      p.RoleClaim,
	}
}

func (a *API) verifySession() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "verify admin session", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		return result{
			data: map[string]any{
				"user":      userOf(p),
				"sessionId": p.SessionID,
			},
			message: "Admin access verified",
			audit:   fmt.Sprintf("Admin session verified for %s (%s) from %s", p.Email, p.UserID, auth.ClientIP(r)),
			action:  audit.Login,
		}, nil
	})
}

func (a *API) sessionStatus() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "check admin session", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		return result{
			data: map[string]any{
				"valid":     true,
				"userId":    p.UserID,
				"sessionId": p.SessionID,
			},
			audit:  fmt.Sprintf("Admin session checked for %s (%s)", p.Email, p.UserID),
			action: audit.System,
		}, nil
	})
}

func (a *API) logout() http.HandlerFunc {
	return a.admin(identity.RoleAdmin, "log out admin", func(ctx context.Context, p auth.Principal, r *http.Request) (result, error) {
		return result{
			message: "Logged out",
			audit:   fmt.Sprintf("Admin logout: %s (%s)", p.Email, p.UserID),
			action:  audit.Login,
		}, nil
	})
}
