package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"arteng.org/internal/audit"
	"arteng.org/internal/identity"
	"arteng.org/internal/obs"
)

const defaultIdentityTimeout = 5 * time.Second

// Recorder appends audit records. *audit.Trail satisfies it.
type Recorder interface {
	Record(ctx context.Context, message string, action audit.ActionType, account string) (audit.Record, error)
}

// Gate authenticates callers against the identity provider and checks their
// role claim. Every denial is audited.
type Gate struct {
	verifier  identity.Verifier
	directory identity.Directory
	recorder  Recorder
	timeout   time.Duration
	log       *zap.Logger
}

type GateOption func(*Gate)

// WithIdentityTimeout bounds each call to the identity provider.
func WithIdentityTimeout(d time.Duration) GateOption {
	return func(g *Gate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithGateLogger(l *zap.Logger) GateOption {
	return func(g *Gate) {
		if l != nil {
			g.log = l
		}
	}
}

func NewGate(verifier identity.Verifier, directory identity.Directory, recorder Recorder, opts ...GateOption) *Gate {
	g := &Gate{
		verifier:  verifier,
		directory: directory,
		recorder:  recorder,
		timeout:   defaultIdentityTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.log == nil {
		g.log = obs.Logger()
	}
	return g
}

// Authenticate verifies the request credential. It never returns a principal
// with an empty UserID without an error.
func (g *Gate) Authenticate(r *http.Request) (Principal, error) {
	ctx := r.Context()
	token, ok := Credential(r)
	if !ok {
		g.denyAuthentication(ctx, r, "No token provided")
		return Principal{}, fmt.Errorf("%w: no token provided", ErrUnauthorized)
	}

	vctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	session, err := g.verifier.VerifyCredential(vctx, token)
	switch {
	case err == nil && session.UserID != "":
	case err == nil, errors.Is(err, identity.ErrInvalidCredential):
		g.denyAuthentication(ctx, r, "Invalid token")
		return Principal{}, fmt.Errorf("%w: invalid token", ErrUnauthorized)
	default:
		obs.ObserveAuthDecision("authenticate", "error")
		g.log.Error("authentication_error", zap.String("path", r.URL.Path), zap.Error(err))
		g.record(ctx, fmt.Sprintf("Authentication error - identity service failure - %s %s from %s",
			r.Method, r.URL.Path, ClientIP(r)), audit.Error, audit.AccountSystem)
		return Principal{}, fmt.Errorf("%w: verify credential: %v", ErrInternal, err)
	}

	obs.ObserveAuthDecision("authenticate", "ok")
	return Principal{UserID: session.UserID, SessionID: session.SessionID}, nil
}

func (g *Gate) denyAuthentication(ctx context.Context, r *http.Request, reason string) {
	obs.ObserveAuthDecision("authenticate", "denied")
	g.record(ctx, fmt.Sprintf("Authentication failed - %s - %s %s from %s",
		reason, r.Method, r.URL.Path, ClientIP(r)), audit.Error, audit.AccountAnonymous)
}

// Authorize resolves the principal's profile and requires its role to equal
// required. The returned principal carries the profile fields.
func (g *Gate) Authorize(r *http.Request, p Principal, required identity.Role) (Principal, error) {
	ctx := r.Context()
	ip := ClientIP(r)
	if p.UserID == "" {
		obs.ObserveAuthDecision("authorize", "denied")
		g.record(ctx, fmt.Sprintf("Authorization failed - missing user id - %s %s from %s",
			r.Method, r.URL.Path, ip), audit.Error, audit.AccountAnonymous)
		return Principal{}, fmt.Errorf("%w: missing user id", ErrUnauthorized)
	}

	pctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	profile, err := g.directory.GetProfile(pctx, p.UserID)
	if err != nil {
		obs.ObserveAuthDecision("authorize", "error")
		g.log.Error("authorization_error", zap.String("user_id", p.UserID), zap.Error(err))
		g.record(ctx, fmt.Sprintf("Authorization error for %s - profile lookup failed - %s %s from %s",
			p.UserID, r.Method, r.URL.Path, ip), audit.Error, p.UserID)
		return Principal{}, fmt.Errorf("%w: get profile: %v", ErrInternal, err)
	}

	p = p.withProfile(profile)
	if p.Role != required {
		claim := p.RoleClaim
		if claim == "" {
			claim = "none"
		}
		obs.ObserveAuthDecision("authorize", "denied")
		g.log.Warn("unauthorized_access_attempt",
			zap.String("user_id", p.UserID),
			zap.String("email", p.Email),
			zap.String("role", claim),
			zap.String("required", required.String()),
			zap.String("ip", ip),
			zap.String("path", r.URL.Path),
		)
		g.record(ctx, fmt.Sprintf("Unauthorized %s access attempt by %s (%s) - Role: %s - IP %s",
			required, p.Email, p.UserID, claim, ip), audit.Error, p.UserID)
		return Principal{}, fmt.Errorf("%w: role %q", ErrForbidden, claim)
	}

	obs.ObserveAuthDecision("authorize", "ok")
	g.record(ctx, fmt.Sprintf("%s access granted to %s (%s) - %s %s",
		roleTitle(required), p.Email, p.UserID, r.Method, r.URL.Path), audit.System, p.UserID)
	return p, nil
}

// record writes the audit entry; write failures are already logged by the trail.
func (g *Gate) record(ctx context.Context, message string, action audit.ActionType, account string) {
	_, _ = g.recorder.Record(ctx, message, action, account)
}

func roleTitle(r identity.Role) string {
	switch r {
	case identity.RoleAdmin:
		return "Admin"
	case identity.RoleUser:
		return "User"
	default:
		return "None"
	}
}
