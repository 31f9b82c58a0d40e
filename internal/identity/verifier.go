package identity

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"arteng.org/internal/obs"
)

const defaultLeeway = 5 * time.Second

// sessionClaims is the payload of a provider-issued session token.
type sessionClaims struct {
	SessionID       string `json:"sid"`
	AuthorizedParty string `json:"azp,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates session tokens locally with the provider's signing key.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	secret    []byte
	parties   []string
	leeway    time.Duration
	now       func() time.Time
}

type VerifierOption func(*JWTVerifier)

// WithAuthorizedParties restricts accepted tokens to the given azp values.
// Tokens without an azp claim are still accepted.
func WithAuthorizedParties(parties ...string) VerifierOption {
	return func(v *JWTVerifier) { v.parties = parties }
}

func WithLeeway(d time.Duration) VerifierOption {
	return func(v *JWTVerifier) { v.leeway = d }
}

func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *JWTVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

// NewRS256Verifier builds a verifier from a PEM-encoded RSA public key.
func NewRS256Verifier(publicKeyPEM string, opts ...VerifierOption) (*JWTVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(strings.TrimSpace(publicKeyPEM)))
	if err != nil {
		return nil, fmt.Errorf("parse identity public key: %w", err)
	}
	return newVerifier(&JWTVerifier{publicKey: key}, opts), nil
}

// NewHS256Verifier builds a verifier for tokens signed with a shared secret.
func NewHS256Verifier(secret string, opts ...VerifierOption) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("identity secret is empty")
	}
	return newVerifier(&JWTVerifier{secret: []byte(secret)}, opts), nil
}

func newVerifier(v *JWTVerifier, opts []VerifierOption) *JWTVerifier {
	v.leeway = defaultLeeway
	v.now = time.Now
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *JWTVerifier) VerifyCredential(ctx context.Context, token string) (Session, error) {
	_, span := obs.Tracer().Start(ctx, "identity.VerifyCredential")
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}

	method := jwt.SigningMethodRS256.Alg()
	if v.publicKey == nil {
		method = jwt.SigningMethodHS256.Alg()
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{method}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	var claims sessionClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		if v.publicKey != nil {
			return v.publicKey, nil
		}
		return v.secret, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "invalid token")
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: missing subject", ErrInvalidCredential)
	}
	if claims.AuthorizedParty != "" && len(v.parties) > 0 && !slices.Contains(v.parties, claims.AuthorizedParty) {
		return Session{}, fmt.Errorf("%w: unexpected authorized party %q", ErrInvalidCredential, claims.AuthorizedParty)
	}

	span.SetAttributes(attribute.String("user.id", claims.Subject))
	return Session{UserID: claims.Subject, SessionID: claims.SessionID}, nil
}
