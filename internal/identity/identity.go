// Package identity talks to the external identity provider: it verifies
// session credentials and looks up user profiles carrying the role claim.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredential = errors.New("identity: invalid credential")
	ErrNotFound          = errors.New("identity: user not found")
	ErrUnavailable       = errors.New("identity: provider unavailable")
)

// Role is the closed set of access levels resolved from a profile's role claim.
type Role int

const (
	RoleNone Role = iota
	RoleUser
	RoleAdmin
)

const adminClaim = "admin"

// ParseRole maps a raw role claim to a Role. Matching is case-sensitive:
// only the exact claim "admin" grants RoleAdmin.
func ParseRole(claim string) Role {
	switch claim {
	case "":
		return RoleNone
	case adminClaim:
		return RoleAdmin
	default:
		return RoleUser
	}
}

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleUser:
		return "user"
	default:
		return "none"
	}
}

// Session is the result of a successful credential verification.
type Session struct {
	UserID    string
	SessionID string
}

// Profile is the subset of the provider's user object the admin tier needs.
type Profile struct {
	UserID       string
	Email        string
	FirstName    string
	LastName     string
	RoleClaim    string
	Role         Role
	LastSignInAt *time.Time
}

type Verifier interface {
	VerifyCredential(ctx context.Context, token string) (Session, error)
}

type Directory interface {
	GetProfile(ctx context.Context, userID string) (Profile, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (Session, error)

func (f VerifierFunc) VerifyCredential(ctx context.Context, token string) (Session, error) {
	return f(ctx, token)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(ctx context.Context, userID string) (Profile, error)

func (f DirectoryFunc) GetProfile(ctx context.Context, userID string) (Profile, error) {
	return f(ctx, userID)
}
