package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Fetcher is the backend surface the console depends on. *Client implements
// it; tests substitute fakes.
type Fetcher interface {
	ListRequests(ctx context.Context, filter RequestFilter) ([]ServiceRequest, error)
	GetRequest(ctx context.Context, id int64) (*ServiceRequest, error)
	FetchStats(ctx context.Context) (*DeskStats, error)
	UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (*ServiceRequest, error)
}

var _ Fetcher = (*Client)(nil)

// ErrUnauthorized is matched by APIErrors with status 401.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a failed response from the backend.
type APIError struct {
	Path       string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("api %s returned status %d (%s): %s", e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("api %s returned status %d: %s", e.Path, e.StatusCode, msg)
}

// HasResponse marks the error as carrying a backend response.
func (e *APIError) HasResponse() bool { return true }

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Client talks to the security-services REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	token     string
	userAgent string
}

const (
	defaultBaseURL   = "http://127.0.0.1:8080"
	defaultUserAgent = "ssportal/0.1"
	requestTimeout   = 10 * time.Second

	requestsPath = "/api/security-services/requests"
	statsPath    = "/api/security-services/stats"
)

// NewClient builds a Client for baseURL. token, when set, is sent as a
// bearer credential.
func NewClient(baseURL, token string) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: base,
		http: &http.Client{
			Timeout: requestTimeout,
		},
		token:     strings.TrimSpace(token),
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the resolved API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ListRequests retrieves service requests matching filter.
func (c *Client) ListRequests(ctx context.Context, filter RequestFilter) ([]ServiceRequest, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	rel := &url.URL{Path: requestsPath, RawQuery: filter.values().Encode()}
	var payload RequestListResponse
	if err := c.do(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return nil, err
	}
	return payload.Items, nil
}

// GetRequest retrieves a single request.
func (c *Client) GetRequest(ctx context.Context, id int64) (*ServiceRequest, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if id <= 0 {
		return nil, fmt.Errorf("request id required")
	}
	rel := &url.URL{Path: requestsPath + "/" + strconv.FormatInt(id, 10)}
	var payload ServiceRequest
	if err := c.do(ctx, http.MethodGet, rel, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// FetchStats retrieves desk counters.
func (c *Client) FetchStats(ctx context.Context) (*DeskStats, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var payload DeskStats
	if err := c.do(ctx, http.MethodGet, &url.URL{Path: statsPath}, nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UpdateStatus changes a request's status and assignment.
func (c *Client) UpdateStatus(ctx context.Context, id int64, update StatusUpdate) (*ServiceRequest, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if id <= 0 {
		return nil, fmt.Errorf("request id required")
	}
	if strings.TrimSpace(update.Status) == "" {
		return nil, fmt.Errorf("status required")
	}
	body, err := json.Marshal(update)
	if err != nil {
		return nil, fmt.Errorf("encode update: %w", err)
	}
	rel := &url.URL{Path: requestsPath + "/" + strconv.FormatInt(id, 10)}
	var payload ServiceRequest
	if err := c.do(ctx, http.MethodPatch, rel, body, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *Client) do(ctx context.Context, method string, rel *url.URL, body []byte, dest any) error {
	reqURL := c.baseURL.ResolveReference(rel)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return decodeAPIError(rel.Path, resp)
	}
	if dest == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(path string, resp *http.Response) error {
	apiErr := &APIError{Path: path, StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		apiErr.Code = payload.Error.Code
		apiErr.Message = payload.Error.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func parseBaseURL(baseURL string) (*url.URL, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", baseURL, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
