package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/exmate/exmate/internal/client/models"
	"github.com/exmate/exmate/internal/logging"
)

const (
	pathCheckUsername        = "/api/auth/check-username"
	pathUpdateUsername       = "/api/auth/update-username"
	pathCompleteRegistration = "/api/auth/complete-oauth-registration"
	pathPopularSchools       = "/api/schools/popular"
	pathUnreadCount          = "/api/notifications/unread-count"

	// AuthorizationHeader carries "Bearer <token>" on authorized calls.
	AuthorizationHeader = "Authorization"

	maxErrorBody = 64 << 10
)

// UnauthorizedFunc is invoked when the server rejects a bearer token.
type UnauthorizedFunc func(ctx context.Context, token string)

var textPolicy = bluemonday.StrictPolicy()

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL *url.URL
	http    *http.Client
	log     logging.Logger

	onUnauthorized atomic.Pointer[UnauthorizedFunc]
}

func NewHTTPClient(baseURL string, timeout time.Duration, log logging.Logger) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	return &HTTPClient{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		log:     log.With("component", "api"),
	}, nil
}

// OnUnauthorized registers the global forced-logout hook. Only the first
// registration takes effect; later calls return false.
func (c *HTTPClient) OnUnauthorized(fn UnauthorizedFunc) bool {
	if fn == nil {
		return false
	}
	return c.onUnauthorized.CompareAndSwap(nil, &fn)
}

func (c *HTTPClient) CheckUsername(ctx context.Context, username string) (UsernameCheck, error) {
	var out UsernameCheck
	q := url.Values{"username": {username}}
	if err := c.do(ctx, http.MethodGet, pathCheckUsername, q, "", nil, &out); err != nil {
		return UsernameCheck{}, err
	}
	out.Message = sanitize(out.Message)
	return out, nil
}

type userEnvelope struct {
	User *models.UserProfile `json:"user"`
}

func (c *HTTPClient) UpdateUsername(ctx context.Context, token, username string) (*models.UserProfile, error) {
	var out userEnvelope
	body := map[string]string{"username": username}
	if err := c.do(ctx, http.MethodPost, pathUpdateUsername, nil, token, body, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: update-username returned no user", ErrServer)
	}
	return out.User, nil
}

func (c *HTTPClient) CompleteRegistration(ctx context.Context, token, school, country string) (*models.UserProfile, error) {
	var out userEnvelope
	body := map[string]string{"school": school, "country": country}
	if err := c.do(ctx, http.MethodPost, pathCompleteRegistration, nil, token, body, &out); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, fmt.Errorf("%w: complete-oauth-registration returned no user", ErrServer)
	}
	return out.User, nil
}

func (c *HTTPClient) PopularSchools(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, pathPopularSchools, nil, "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *HTTPClient) UnreadCount(ctx context.Context, token string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.do(ctx, http.MethodGet, pathUnreadCount, nil, token, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, token string, body, out any) error {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(AuthorizationHeader, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := c.mapStatus(resp)
		c.log.Warn(ctx, "request rejected", "method", method, "path", path, "status", resp.StatusCode)
		if hook := c.onUnauthorized.Load(); hook != nil && errors.Is(apiErr, ErrUnauthorized) && token != "" {
			(*hook)(ctx, token)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrServer, path, err)
	}
	return nil
}

// mapStatus converts an error response into an *APIError.
func (c *HTTPClient) mapStatus(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		apiErr.kind = ErrUnauthorized
	case http.StatusForbidden:
		apiErr.kind = ErrForbidden
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		apiErr.kind = ErrUnavailable
	default:
		apiErr.kind = ErrServer
	}
	return apiErr
}

// readErrorMessage extracts {"error": "..."} or {"message": "..."} from an
// error body.
func readErrorMessage(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(b) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return sanitize(payload.Error)
	}
	return sanitize(payload.Message)
}

// sanitize strips markup from server-provided text before it reaches the
// terminal.
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}
