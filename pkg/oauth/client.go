package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultGrantTimeout bounds a single token endpoint exchange, measured
	// from request start.
	DefaultGrantTimeout = 15 * time.Second

	// DefaultTokenEndpoint is used when a context configures no endpoint.
	DefaultTokenEndpoint = "https://login.microsoftonline.com/common/oauth2/token"

	// accessTokenPrefix is emitted by some providers in front of the JSON payload.
	accessTokenPrefix = "access_token="

	// maxResponseBytes caps how much of a token response is read.
	maxResponseBytes = 1 << 20
)

// GrantClient performs OAuth2 token endpoint exchanges. It holds no token
// state; caching is the caller's responsibility.
type GrantClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	now        func() time.Time
}

// GrantClientOption configures the grant client.
type GrantClientOption func(*GrantClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) GrantClientOption {
	return func(c *GrantClient) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) GrantClientOption {
	return func(c *GrantClient) {
		c.logger = logger
	}
}

// WithTimeout overrides DefaultGrantTimeout.
func WithTimeout(timeout time.Duration) GrantClientOption {
	return func(c *GrantClient) {
		c.timeout = timeout
	}
}

// WithClock sets the time source used to derive expires_on from expires_in.
func WithClock(now func() time.Time) GrantClientOption {
	return func(c *GrantClient) {
		c.now = now
	}
}

// NewGrantClient creates a new grant client.
func NewGrantClient(opts ...GrantClientOption) *GrantClient {
	c := &GrantClient{
		httpClient: &http.Client{},
		logger:     slog.Default(),
		timeout:    DefaultGrantTimeout,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Timeout returns the per-request time budget.
func (c *GrantClient) Timeout() time.Duration {
	return c.timeout
}

// Grant performs one token endpoint exchange.
//
// The body is grant_type followed by every non-empty entry of params. The
// request is abandoned with ErrTimeout when it does not complete within the
// client timeout. A response without an access_token yields a *GrantError
// carrying the parsed body.
func (c *GrantClient) Grant(ctx context.Context, endpoint string, grantType GrantType, params Params) (*Credential, error) {
	if endpoint == "" {
		endpoint = DefaultTokenEndpoint
	}
	resource := params["resource"]

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body := params.Encode(grantType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Issuing token request",
		"grant_type", grantType.String(),
		"resource", resource,
		"endpoint", endpoint)

	start := c.now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s grant for resource %q: %w", grantType, resource, ErrTimeout)
		}
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return nil, fmt.Errorf("%s grant for resource %q: %w", grantType, resource, ErrTimeout)
		}
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	cred, err := parseTokenResponse(raw, grantType, resource, resp.StatusCode, start)
	if err != nil {
		c.logger.Debug("Token request rejected",
			"grant_type", grantType.String(),
			"resource", resource,
			"status", resp.StatusCode)
		return nil, err
	}

	c.logger.Debug("Token request succeeded",
		"grant_type", grantType.String(),
		"resource", cred.Resource,
		"expires_on", int64(cred.ExpiresOn),
		"has_refresh_token", cred.RefreshToken != "")

	return cred, nil
}

// parseTokenResponse decodes a token endpoint body. now anchors expires_in.
func parseTokenResponse(raw []byte, grantType GrantType, resource string, status int, now time.Time) (*Credential, error) {
	payload := bytes.TrimSpace(raw)
	payload = bytes.TrimPrefix(payload, []byte(accessTokenPrefix))

	var fields map[string]interface{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, &GrantError{
			Resource:   resource,
			GrantType:  grantType,
			StatusCode: status,
			Code:       "invalid_response",
			Raw:        string(raw),
		}
	}

	var cred Credential
	if err := json.Unmarshal(payload, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}

	if cred.AccessToken == "" {
		grantErr := &GrantError{
			Resource:   resource,
			GrantType:  grantType,
			StatusCode: status,
			Response:   fields,
			Raw:        string(raw),
		}
		if code, ok := fields["error"].(string); ok {
			grantErr.Code = code
		}
		if desc, ok := fields["error_description"].(string); ok {
			grantErr.Description = desc
		}
		return nil, grantErr
	}

	cred.normalize(resource, now)
	return &cred, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
