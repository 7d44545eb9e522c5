package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bookblendapp/backend/internal/identity"
	"go.uber.org/zap"
)

const maxResponseBytes = 4 << 20

var (
	errMissingBaseURL = errors.New("upstream: base url configuration required")

	// ErrUnavailable wraps transport-level failures reaching the scoring service.
	ErrUnavailable = errors.New("upstream: service unavailable")
)

// StatusError reports a non-2xx answer from the profile/scoring service.
// Body carries the raw upstream payload for logging; it is never shown to
// end users.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream: status %d", e.Code)
}

// Config bundles configuration required to instantiate a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the external profile/scoring service. It performs no
// retries; callers map failures to user-facing messages.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs a client with validated configuration.
func NewClient(cfg Config) (*Client, error) {
	trimmed := strings.TrimSpace(cfg.BaseURL)
	if trimmed == "" {
		return nil, errMissingBaseURL
	}
	baseURL, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Profile mirrors the upstream user object. book_count arrives as a string.
type Profile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	BookCount  string `json:"book_count,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Friend is one entry of the profile's friends list.
type Friend struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"image_url,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
	BookCount  string `json:"book_count,omitempty"`
}

// UserResult is the upstream answer to a profile lookup.
type UserResult struct {
	User    Profile  `json:"user"`
	Friends []Friend `json:"friends"`
}

// User fetches a profile and its friends list. Numeric identifiers are sent
// as user_id, username identifiers as username.
func (c *Client) User(ctx context.Context, id identity.CanonicalID) (UserResult, error) {
	query := url.Values{}
	switch id.Kind {
	case identity.KindUsername:
		query.Set("username", id.Value)
	default:
		query.Set("user_id", id.Value)
	}

	body, err := c.get(ctx, "/user", query)
	if err != nil {
		return UserResult{}, err
	}

	var result UserResult
	if err := json.Unmarshal(body, &result); err != nil {
		return UserResult{}, fmt.Errorf("upstream: malformed user payload: %w", err)
	}
	return result, nil
}

// Blend requests a compatibility computation for a pair of user ids. The
// payload is opaque to this layer and passed through verbatim.
func (c *Client) Blend(ctx context.Context, userID1, userID2 string) (json.RawMessage, error) {
	query := url.Values{}
	query.Set("user_id1", userID1)
	query.Set("user_id2", userID2)

	body, err := c.get(ctx, "/blend", query)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, errors.New("upstream: malformed blend payload")
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/") + path
	endpoint.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("upstream request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		c.logger.Warn("upstream returned error status",
			zap.String("path", path),
			zap.Int("status", response.StatusCode))
		return nil, &StatusError{Code: response.StatusCode, Body: string(body)}
	}
	return body, nil
}
