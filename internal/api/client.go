// Package api is a typed HTTP client for the remote to-do service.
//
// Every failure crossing this boundary is one of the errs taxonomy kinds;
// raw transport errors never leak to callers. The client is stateless apart
// from the session store it reads the bearer token from. No retries: a call
// is a single attempt whose failure the caller surfaces.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"todosync/internal/errs"
	"todosync/internal/model"
	"todosync/internal/session"
)

// Client talks to the to-do service at a configurable base URL.
type Client struct {
	baseURL  string
	http     *http.Client
	sessions session.Store
	log      *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client (timeouts, transports).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger; the default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a Client. sessions supplies the bearer token for protected calls.
func New(baseURL string, sessions session.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		sessions: sessions,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Wire shapes. The service wraps payloads in a {data:...} envelope and
// reports failures with an optional top-level {message}.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type updateRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type wireItem struct {
	ID          *string `json:"_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
}

type loginEnvelope struct {
	Data struct {
		Token *string `json:"token"`
	} `json:"data"`
}

type itemEnvelope struct {
	Data *wireItem `json:"data"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a bearer token. It does not store the
// token; that is the sync controller's job.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/api/auth/login", "",
		loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return "", err
	}
	var env loginEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data.Token == nil || *env.Data.Token == "" {
		c.log.Warn("login response missing token")
		return "", errs.New(errs.ErrMalformedResponse, "")
	}
	return *env.Data.Token, nil
}

// Register creates an account. A 2xx response needs no payload; the caller
// logs in explicitly afterwards.
func (c *Client) Register(ctx context.Context, reg model.Registration) error {
	_, err := c.do(ctx, http.MethodPost, "/api/auth/register", "",
		registerRequest{Username: reg.Username, Password: reg.Password, Email: reg.Email})
	return err
}

// GetItem fetches a single item by id.
func (c *Client) GetItem(ctx context.Context, id string) (model.Item, error) {
	token, err := c.token(ctx)
	if err != nil {
		return model.Item{}, err
	}
	body, err := c.do(ctx, http.MethodGet, "/api/todos/"+id, token, nil)
	if err != nil {
		return model.Item{}, err
	}
	return decodeItem(body)
}

// UpdateItem submits new fields for an item and returns the server's
// canonical resulting item.
func (c *Client) UpdateItem(ctx context.Context, id string, fields model.ItemFields) (model.Item, error) {
	token, err := c.token(ctx)
	if err != nil {
		return model.Item{}, err
	}
	body, err := c.do(ctx, http.MethodPut, "/api/todos/"+id, token,
		updateRequest{Title: fields.Title, Description: fields.Description})
	if err != nil {
		return model.Item{}, err
	}
	return decodeItem(body)
}

// token loads the bearer token; absence fails the call before any network I/O.
func (c *Client) token(ctx context.Context) (string, error) {
	token, err := c.sessions.Load(ctx)
	if err != nil {
		// Storage trouble and no-session both mean the caller must
		// re-authenticate.
		return "", errs.New(errs.ErrUnauthenticated, "")
	}
	return token, nil
}

// do performs one round-trip and normalizes the outcome. A nil reqBody sends
// no payload. A non-empty bearer is attached as the Authorization header.
func (c *Client) do(ctx context.Context, method, path, bearer string, reqBody any) ([]byte, error) {
	var rd io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return nil, errs.New(errs.ErrNetwork, "")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Warn("read response failed", zap.String("path", path), zap.Error(err))
		return nil, errs.New(errs.ErrNetwork, "")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	// The server's human-readable message, when present, is preserved
	// verbatim for display.
	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	kind := classify(resp.StatusCode)
	c.log.Debug("request rejected",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return nil, errs.New(kind, eb.Message)
}

// classify maps an HTTP status to a taxonomy kind.
func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return errs.ErrUnauthenticated
	case status == http.StatusNotFound:
		return errs.ErrNotFound
	case status >= 500:
		return errs.ErrServer
	default:
		// 400, 422, and any other 4xx carry the server's complaint
		// about the submitted data.
		return errs.ErrValidation
	}
}

// decodeItem parses the {data:{_id,title,description}} envelope. A missing
// envelope or id is a malformed response; title and description may
// legitimately be empty.
func decodeItem(body []byte) (model.Item, error) {
	var env itemEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.Data == nil || env.Data.ID == nil || *env.Data.ID == "" {
		return model.Item{}, errs.New(errs.ErrMalformedResponse, "")
	}
	return model.Item{
		ID:          *env.Data.ID,
		Title:       env.Data.Title,
		Description: env.Data.Description,
	}, nil
}
