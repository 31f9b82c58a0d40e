package auth

import (
	"strings"

	"arteng.org/internal/identity"
)

// Principal is the caller resolved for one request. It is built fresh per
// request and only travels in the request context.
type Principal struct {
	UserID    string        `json:"userId"`
	SessionID string        `json:"sessionId,omitempty"`
	Role      identity.Role `json:"-"`
	RoleClaim string        `json:"role,omitempty"`
	Email     string        `json:"email,omitempty"`
	FirstName string        `json:"firstName,omitempty"`
	LastName  string        `json:"lastName,omitempty"`
}

func (p Principal) Authenticated() bool { return p.UserID != "" }

// Name joins first and last name, falling back to the email address.
func (p Principal) Name() string {
	if n := strings.TrimSpace(p.FirstName + " " + p.LastName); n != "" {
		return n
	}
	return p.Email
}

func (p Principal) withProfile(profile identity.Profile) Principal {
	p.Role = profile.Role
	p.RoleClaim = profile.RoleClaim
	p.Email = profile.Email
	p.FirstName = profile.FirstName
	p.LastName = profile.LastName
	return p
}
