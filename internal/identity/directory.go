package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"arteng.org/internal/obs"
)

const maxProfileBytes = 1 << 20

// HTTPDirectory fetches user profiles from the provider's backend API.
type HTTPDirectory struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewHTTPDirectory creates a directory client. A nil client gets a default
// one whose timeout matches the per-call bound.
func NewHTTPDirectory(baseURL, secretKey string, client *http.Client) *HTTPDirectory {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPDirectory{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
	}
}

type userPayload struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	LastSignInAt   *int64 `json:"last_sign_in_at"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PublicMetadata struct {
		Role json.RawMessage `json:"role"`
	} `json:"public_metadata"`
}

// roleClaim returns the role as stored. Claims that are not JSON strings are
// returned as raw JSON so they never parse as admin.
func (p userPayload) roleClaim() string {
	raw := p.PublicMetadata.Role
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (d *HTTPDirectory) GetProfile(ctx context.Context, userID string) (Profile, error) {
	ctx, span := obs.Tracer().Start(ctx, "identity.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Profile{}, ErrNotFound
	}

	endpoint := d.baseURL + "/v1/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+d.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Profile{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Profile{}, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		span.SetStatus(codes.Error, resp.Status)
		return Profile{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var payload userPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxProfileBytes)).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return Profile{}, fmt.Errorf("%w: empty profile body", ErrUnavailable)
		}
		return Profile{}, fmt.Errorf("%w: decode profile: %v", ErrUnavailable, err)
	}
	return payload.profile(userID), nil
}

func (p userPayload) profile(fallbackID string) Profile {
	claim := p.roleClaim()
	out := Profile{
		UserID:    p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		RoleClaim: claim,
		Role:      ParseRole(claim),
	}
	if out.UserID == "" {
		out.UserID = fallbackID
	}
	if len(p.EmailAddresses) > 0 {
		out.Email = p.EmailAddresses[0].EmailAddress
	}
	if p.LastSignInAt != nil {
		ts := time.UnixMilli(*p.LastSignInAt).UTC()
		out.LastSignInAt = &ts
	}
	return out
}
