// Package matrix talks to a Matrix homeserver on behalf of the shell: it
// logs in, keeps the joined rooms current through /sync, caches events in a
// sqlite database and exposes all of that as shell commands.
package matrix

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
	"sync"
	"time"

	"github.com/google/uuid"

	"ev/internal/logger"
)

const (
	clientAPIPrefix = "/_matrix/client/v3"
	// DefaultTimeout bounds requests other than long-polling syncs.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrBadPassword is returned by Login when the server rejects the credentials.
	ErrBadPassword = errors.New("bad password")
	// ErrInvalidUserID is returned for user ids not of the form @localpart:server.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrNotLoggedIn is returned by authenticated requests without an access token.
	ErrNotLoggedIn = errors.New("not logged in")
)

// APIError is a failed client-server API request.
type APIError struct {
	StatusCode int
	ErrCode    string
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrCode == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.ErrCode, e.Message)
}

// IsUnknownToken reports whether err says the access token is no longer valid.
func IsUnknownToken(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrCode == "M_UNKNOWN_TOKEN"
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusNotFound || apiErr.ErrCode == "M_NOT_FOUND")
}

// Client is a minimal Matrix client-server API client.
type Client struct {
	homeserver   string
	httpClient   *http.Client
	retry        RetryPolicy
	requestID    func() string
	discoveryURL func(serverName string) string

	mu          sync.RWMutex
	accessToken string
	userID      string
	deviceID    string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAccessToken sets the token of an existing session.
func WithAccessToken(token, userID, deviceID string) ClientOption {
	return func(c *Client) {
		c.accessToken = token
		c.userID = userID
		c.deviceID = deviceID
	}
}

// WithRetryPolicy replaces the retry policy for transient failures.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithRequestIDFunc replaces the generator of X-Request-ID headers.
func WithRequestIDFunc(fn func() string) ClientOption {
	return func(c *Client) {
		c.requestID = fn
	}
}

// WithDiscoveryURL replaces how a server name maps to the base URL whose
// .well-known document is fetched.
func WithDiscoveryURL(fn func(serverName string) string) ClientOption {
	return func(c *Client) {
		c.discoveryURL = fn
	}
}

// NewClient creates a client for the given homeserver base URL. The
// homeserver may be empty until DiscoverHomeserver has run.
func NewClient(homeserver string, opts ...ClientOption) *Client {
	c := &Client{
		homeserver: strings.TrimSuffix(homeserver, "/"),
		httpClient: &http.Client{},
		retry:      DefaultRetryPolicy,
		requestID:  uuid.NewString,
		discoveryURL: func(serverName string) string {
			return "https://" + serverName
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Homeserver returns the base URL requests go to.
func (c *Client) Homeserver() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.homeserver
}

// SetHomeserver changes the base URL requests go to.
func (c *Client) SetHomeserver(homeserver string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.homeserver = strings.TrimSuffix(homeserver, "/")
}

// UserID returns the user the client is logged in as.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// DeviceID returns the device of the current session, empty when logged out.
func (c *Client) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.deviceID
}

// AccessToken returns the token of the current session.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// LoggedIn reports whether the client holds an access token.
func (c *Client) LoggedIn() bool {
	return c.AccessToken() != ""
}

type wellKnown struct {
	Homeserver struct {
		BaseURL string `json:"base_url"`
	} `json:"m.homeserver"`
}

// DiscoverHomeserver resolves the homeserver of userID through the server's
// .well-known/matrix/client document, falling back to https://<server-name>.
func (c *Client) DiscoverHomeserver(ctx context.Context, userID string) (string, error) {
	_, server, err := ParseUserID(userID)
	if err != nil {
		return "", err
	}
	base := strings.TrimSuffix(c.discoveryURL(server), "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/.well-known/matrix/client", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.Debug("Well-known lookup failed", "server", server, "error", err)
		return base, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return base, nil
	}

	var doc wellKnown
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", fmt.Errorf("invalid .well-known document for %s: %w", server, err)
	}
	if doc.Homeserver.BaseURL == "" {
		return base, nil
	}
	if _, err := url.ParseRequestURI(doc.Homeserver.BaseURL); err != nil {
		return "", fmt.Errorf("invalid homeserver url %q: %w", doc.Homeserver.BaseURL, err)
	}
	return strings.TrimSuffix(doc.Homeserver.BaseURL, "/"), nil
}

// LoginResponse is the session created by Login.
type LoginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// Login creates a new session with a password.
func (c *Client) Login(ctx context.Context, user, password, deviceName string) (*LoginResponse, error) {
	body := map[string]interface{}{
		"type": "m.login.password",
		"identifier": map[string]string{
			"type": "m.id.user",
			"user": user,
		},
		"password":                    password,
		"initial_device_display_name": deviceName,
	}

	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "/login", nil, body, &resp, false)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.ErrCode == "M_FORBIDDEN" {
			return nil, fmt.Errorf("%w: %s", ErrBadPassword, apiErr.Message)
		}
		return nil, err
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.userID = resp.UserID
	c.deviceID = resp.DeviceID
	c.mu.Unlock()
	return &resp, nil
}

// WhoAmIResponse identifies the owner of an access token.
type WhoAmIResponse struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

// WhoAmI validates the access token.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	var resp WhoAmIResponse
	if err := c.do(ctx, http.MethodGet, "/account/whoami", nil, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Sync long-polls for new events since the given batch token.
func (c *Client) Sync(ctx context.Context, since string, timeout time.Duration) (*SyncResponse, error) {
	query := url.Values{}
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if since != "" {
		query.Set("since", since)
	}

	var resp SyncResponse
	if err := c.do(ctx, http.MethodGet, "/sync", query, nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RoomEvent fetches a single event from the server.
func (c *Client) RoomEvent(ctx context.Context, roomID, eventID string) (*Event, error) {
	path := "/rooms/" + url.PathEscape(roomID) + "/event/" + url.PathEscape(eventID)

	var event Event
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &event, true); err != nil {
		return nil, err
	}
	return &event, nil
}

// Pushers lists the push gateways configured for the account.
func (c *Client) Pushers(ctx context.Context) ([]Pusher, error) {
	var resp struct {
		Pushers []Pusher `json:"pushers"`
	}
	if err := c.do(ctx, http.MethodGet, "/pushers", nil, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Pushers, nil
}

// RemovePusher deletes a pusher by setting its kind to null.
func (c *Client) RemovePusher(ctx context.Context, pusher Pusher) error {
	body := map[string]interface{}{
		"kind":    nil,
		"app_id":  pusher.AppID,
		"pushkey": pusher.Pushkey,
	}
	return c.do(ctx, http.MethodPost, "/pushers/set", nil, body, nil, true)
}

// DeviceKeys returns the ed25519 identity key of a device, or "" if the
// device has not uploaded keys.
func (c *Client) DeviceKeys(ctx context.Context, userID, deviceID string) (string, error) {
	body := map[string]interface{}{
		"device_keys": map[string][]string{userID: {deviceID}},
	}
	var resp struct {
		DeviceKeys map[string]map[string]struct {
			Keys map[string]string `json:"keys"`
		} `json:"device_keys"`
	}
	if err := c.do(ctx, http.MethodPost, "/keys/query", nil, body, &resp, true); err != nil {
		return "", err
	}
	return resp.DeviceKeys[userID][deviceID].Keys["ed25519:"+deviceID], nil
}

type errorResponse struct {
	ErrCode string `json:"errcode"`
	Error   string `json:"error"`
}

// do sends one API request, retrying transient failures, and decodes the
// JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}, auth bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	homeserver := c.Homeserver()
	if homeserver == "" {
		return fmt.Errorf("no homeserver set")
	}
	endpoint := homeserver + clientAPIPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	token := c.AccessToken()
	if auth && token == "" {
		return ErrNotLoggedIn
	}

	_, err := WithRetry(ctx, c.retry, func() (struct{}, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to create request: %w", err)
		}

		requestID := c.requestID()
		req.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		logger.Debug("Matrix request", "request", requestID, "method", method, "path", path)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to send request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
			var errResp errorResponse
			if json.Unmarshal(data, &errResp) == nil && errResp.ErrCode != "" {
				apiErr.ErrCode = errResp.ErrCode
				apiErr.Message = errResp.Error
			}
			logger.Debug("Matrix request failed", "request", requestID, "status", resp.StatusCode, "errcode", apiErr.ErrCode)
			return struct{}{}, apiErr
		}

		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return struct{}{}, fmt.Errorf("failed to parse response: %w", err)
			}
		}
		return struct{}{}, nil
	})
	return err
}
