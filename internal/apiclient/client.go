// Package apiclient is a typed client for the AORTA resource API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/aorta/internal/api"
	"github.com/ppiankov/aorta/internal/models"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Client talks to an AORTA server.
type Client struct {
	baseURL    string
	user       string
	authCode   string
	session    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials sends a username and authorization code with every request.
func WithCredentials(user, authCode string) Option {
	return func(c *Client) {
		c.user = user
		c.authCode = authCode
	}
}

// WithSession sends a session id with every request.
func WithSession(id string) Option {
	return func(c *Client) { c.session = id }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the server at baseURL (scheme, host and port).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-success response from the server.
type Error struct {
	Status  int
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Detail)
	}
	return e.Message
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, http.StatusOK, nil)
}

// List returns the entries of a resource type.
func (c *Client) List(ctx context.Context, t models.ResourceType) ([]models.Entry, error) {
	var entries []models.Entry
	if err := c.do(ctx, http.MethodGet, "/"+t.Dir(), nil, http.StatusOK, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Read returns the stored content of one resource.
func (c *Client) Read(ctx context.Context, t models.ResourceType, id string) ([]byte, error) {
	var raw rawBody
	if err := c.do(ctx, http.MethodGet, resourcePath(t, id), nil, http.StatusOK, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Create stores a new resource and returns its id. id may be empty for
// types that generate one (orders).
func (c *Client) Create(ctx context.Context, t models.ResourceType, id string, body []byte) (string, error) {
	path := "/" + t.Dir()
	if id != "" {
		path = resourcePath(t, id)
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusCreated, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// Replace overwrites a user or report.
func (c *Client) Replace(ctx context.Context, t models.ResourceType, id string, body []byte) error {
	return c.do(ctx, http.MethodPut, resourcePath(t, id), body, http.StatusOK, nil)
}

// Remove deletes a resource.
func (c *Client) Remove(ctx context.Context, t models.ResourceType, id string) error {
	return c.do(ctx, http.MethodDelete, resourcePath(t, id), nil, http.StatusNoContent, nil)
}

// Assign turns an order into a job for tester.
func (c *Client) Assign(ctx context.Context, orderID, tester string) (*models.Job, error) {
	body, err := json.Marshal(map[string]string{"tester": tester})
	if err != nil {
		return nil, fmt.Errorf("marshal assignment: %w", err)
	}
	var job models.Job
	path := "/orders/" + url.PathEscape(orderID) + "/assign"
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusCreated, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// MyJobs returns the jobs assigned to the caller.
func (c *Client) MyJobs(ctx context.Context) ([]models.Job, error) {
	var jobs []models.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/mine", nil, http.StatusOK, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Complete submits the reports of a job and returns their ids.
func (c *Client) Complete(ctx context.Context, jobID string, reports []json.RawMessage) ([]string, error) {
	body, err := json.Marshal(api.CompleteRequest{Reports: reports})
	if err != nil {
		return nil, fmt.Errorf("marshal reports: %w", err)
	}
	var resp struct {
		Reports []string `json:"reports"`
	}
	path := "/jobs/" + url.PathEscape(jobID) + "/complete"
	if err := c.do(ctx, http.MethodPost, path, body, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

// Digest renders the digest of a report and returns its HTML.
func (c *Client) Digest(ctx context.Context, digestID string) ([]byte, error) {
	var raw rawBody
	if err := c.do(ctx, http.MethodPost, resourcePath(models.TypeDigest, digestID), nil, http.StatusCreated, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Login opens a session with the client's credentials.
func (c *Client) Login(ctx context.Context) (*api.SessionResponse, error) {
	var sess api.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", nil, http.StatusCreated, &sess); err != nil {
		return nil, err
	}
	c.session = sess.ID
	return &sess, nil
}

// Logout closes the client's session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/sessions/current", nil, http.StatusNoContent, nil); err != nil {
		return err
	}
	c.session = ""
	return nil
}

func resourcePath(t models.ResourceType, id string) string {
	return "/" + t.Dir() + "/" + url.PathEscape(id)
}

// rawBody receives a response body verbatim.
type rawBody []byte

func (c *Client) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+api.BasePath+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" || c.authCode != "" {
		req.Header.Set(api.UserHeader, c.user)
		req.Header.Set(api.AuthHeader, c.authCode)
	}
	if c.session != "" {
		req.Header.Set(api.SessionHeader, c.session)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &Error{Status: resp.StatusCode, Message: msg, Detail: errResp.Detail}
	}

	switch v := out.(type) {
	case nil:
		return nil
	case *rawBody:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		*v = data
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}
