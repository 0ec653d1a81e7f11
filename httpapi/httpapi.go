// Package httpapi is the REST side of the server: identity management,
// schema fetch, ad-hoc reducer calls and SQL, database metadata, and
// logs. It is deliberately thin; the streaming protocol lives in client.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/mickamy/stdb-go/schema"
)

var (
	// ErrConnectionFailed wraps a transport-level request failure.
	ErrConnectionFailed = errors.New("httpapi: connection failed")
	// ErrRequestFailed is returned for non-2xx statuses with no more
	// specific mapping.
	ErrRequestFailed = errors.New("httpapi: request failed")
	// ErrInvalidResponse is returned when a 2xx body does not parse.
	ErrInvalidResponse = errors.New("httpapi: invalid response")
	// ErrUnauthorized maps 401 and 403.
	ErrUnauthorized = errors.New("httpapi: unauthorized")
	// ErrNotFound maps 404.
	ErrNotFound = errors.New("httpapi: not found")
	// ErrServerError maps 5xx.
	ErrServerError = errors.New("httpapi: server error")
)

// schemaVersion is the descriptor version this library understands.
const schemaVersion = "9"

// Client talks to the server's /v1 REST surface.
type Client struct {
	base  string
	token string
	http  *http.Client
	log   zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the request logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a client for host ("host:port", no scheme).
func New(host string, opts ...Option) *Client {
	c := &Client{
		base: "http://" + host + "/v1",
		http: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is one REST exchange's outcome.
type Response struct {
	Status int
	Body   []byte
}

func (c *Client) do(method, path string, body []byte, contentType string) (Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return Response{}, fmt.Errorf("httpapi: build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %s %s: %s", ErrConnectionFailed, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %s", ErrConnectionFailed, err)
	}
	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("rest")

	r := Response{Status: resp.StatusCode, Body: data}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return r, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return r, fmt.Errorf("%w: %s %s", ErrUnauthorized, method, path)
	case resp.StatusCode == http.StatusNotFound:
		return r, fmt.Errorf("%w: %s %s", ErrNotFound, method, path)
	case resp.StatusCode >= 500:
		return r, fmt.Errorf("%w: %s %s: %d", ErrServerError, method, path, resp.StatusCode)
	}
	return r, fmt.Errorf("%w: %s %s: %d", ErrRequestFailed, method, path, resp.StatusCode)
}

// Get issues a GET against a /v1-relative path.
func (c *Client) Get(path string) (Response, error) {
	return c.do(http.MethodGet, path, nil, "")
}

// Post issues a POST against a /v1-relative path.
func (c *Client) Post(path string, body []byte) (Response, error) {
	return c.do(http.MethodPost, path, body, "")
}

// Schema fetches and parses the database's schema descriptor.
func (c *Client) Schema(database string) (*schema.Schema, error) {
	resp, err := c.Get("/database/" + url.PathEscape(database) + "/schema?version=" + schemaVersion)
	if err != nil {
		return nil, err
	}
	s, err := schema.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	return s, nil
}

// Identity is a freshly minted identity and its token.
type Identity struct {
	Identity string `json:"identity"`
	Token    string `json:"token"`
}

// CreateIdentity mints a new identity.
func (c *Client) CreateIdentity() (Identity, error) {
	resp, err := c.Post("/identity", nil)
	if err != nil {
		return Identity{}, err
	}
	var id Identity
	if err := json.Unmarshal(resp.Body, &id); err != nil {
		return Identity{}, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	if id.Identity == "" || id.Token == "" {
		return Identity{}, fmt.Errorf("%w: empty identity or token", ErrInvalidResponse)
	}
	return id, nil
}

// VerifyIdentity checks that the configured token is valid for identity.
func (c *Client) VerifyIdentity(identity string) error {
	_, err := c.Get("/identity/" + url.PathEscape(identity) + "/verify")
	return err
}

// PublicKey fetches the server's token-signing public key.
func (c *Client) PublicKey() ([]byte, error) {
	resp, err := c.Get("/identity/public-key")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Databases lists the databases owned by identity.
func (c *Client) Databases(identity string) ([]string, error) {
	resp, err := c.Get("/identity/" + url.PathEscape(identity) + "/databases")
	if err != nil {
		return nil, err
	}
	var out struct {
		Addresses []string `json:"addresses"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	return out.Addresses, nil
}

// WebsocketToken mints a short-lived token for the subscribe handshake.
func (c *Client) WebsocketToken() (string, error) {
	resp, err := c.Post("/identity/websocket-token", nil)
	if err != nil {
		return "", err
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}
	return out.Token, nil
}

// CallReducer invokes a reducer over REST with BSATN-encoded args; the
// body is forwarded as-is.
func (c *Client) CallReducer(database, reducer string, args []byte) (Response, error) {
	return c.Post("/database/"+url.PathEscape(database)+"/call/"+url.PathEscape(reducer), args)
}

// CallReducerJSON invokes a reducer over REST with a JSON argument array.
func (c *Client) CallReducerJSON(database, reducer string, args json.RawMessage) (Response, error) {
	path := "/database/" + url.PathEscape(database) + "/call/" + url.PathEscape(reducer)
	return c.do(http.MethodPost, path, args, "application/json")
}

// SQL runs a query over REST and returns the raw result body.
func (c *Client) SQL(database, query string) (Response, error) {
	return c.Post("/database/"+url.PathEscape(database)+"/sql", []byte(query))
}

// DatabaseInfo fetches the database's metadata document.
func (c *Client) DatabaseInfo(database string) (Response, error) {
	return c.Get("/database/" + url.PathEscape(database))
}

// PublishDatabase creates or updates a database by posting its module to
// the database endpoint.
func (c *Client) PublishDatabase(database string, module []byte) (Response, error) {
	return c.Post("/database/"+url.PathEscape(database), module)
}

// DatabaseNames fetches the name records of a database.
func (c *Client) DatabaseNames(database string) (Response, error) {
	return c.Get("/database/" + url.PathEscape(database) + "/names")
}

// DatabaseIdentity fetches the owning identity of a database.
func (c *Client) DatabaseIdentity(database string) (Response, error) {
	return c.Get("/database/" + url.PathEscape(database) + "/identity")
}

// Logs fetches the last numLines log lines of a database module.
func (c *Client) Logs(database string, numLines int) ([]byte, error) {
	resp, err := c.Get(fmt.Sprintf("/database/%s/logs?num_lines=%d", url.PathEscape(database), numLines))
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Ping checks server liveness.
func (c *Client) Ping() error {
	_, err := c.Get("/ping")
	return err
}
