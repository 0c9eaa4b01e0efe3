package chhttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// HTTPClient is the interface for HTTP client.
type HTTPClient interface {
	// Do sends a request to the ClickHouse server.
	Do(ctx context.Context, method string, u *url.URL, header http.Header, body io.Reader) (*http.Response, error)
	// Close releases idle connections.
	Close()
}

type httpClient struct {
	client *http.Client
}

// NewHTTPClient creates a new internal HTTP client.
func NewHTTPClient() HTTPClient {
	return &httpClient{
		client: &http.Client{},
	}
}

// Ensure httpClient implements HTTPClient.
var _ HTTPClient = (*httpClient)(nil)

func (c *httpClient) Do(ctx context.Context, method string, u *url.URL, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.client.Do(req)
}

func (c *httpClient) Close() {
	c.client.CloseIdleConnections()
}

// Client talks to a ClickHouse server over its HTTP interface.
type Client struct {
	config *Config
	http   HTTPClient
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the transport of the client.
func WithHTTPClient(h HTTPClient) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger makes the client emit debug logs to l.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new client. No connection is made until the first request.
func NewClient(config *Config, opts ...Option) *Client {
	c := &Client{
		config: config,
		http:   NewHTTPClient(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromDSN parses dsn with ParseDSN and creates a new client.
func NewClientFromDSN(dsn string, opts ...Option) (*Client, error) {
	config, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return NewClient(config, opts...), nil
}

// Close releases the resources held by the client.
//
// You don't typically need to call this as the garbage collector will release
// the resources when the client is no longer referenced.
func (c *Client) Close() {
	c.http.Close()
}

// Ping checks that the server answers on its /ping handler.
func (c *Client) Ping(ctx context.Context) error {
	ep, err := c.config.resolve()
	if err != nil {
		return err
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.http.Do(ctx, http.MethodGet, ep.url.JoinPath("ping"), nil, nil)
	if err != nil {
		return err
	}
	defer sneakyBodyClose(resp.Body)
	if err := checkStatusCodeOK(resp); err != nil {
		return err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(data)) != "Ok." {
		return &ServerError{StatusCode: resp.StatusCode, Message: "unexpected ping response: " + string(data)}
	}
	return nil
}

// Query executes sql with the named parameters and returns the whole result.
func (c *Client) Query(ctx context.Context, sql string, params map[string]any) (*Result, error) {
	s := c.Statement(sql)
	s.Params = params
	return s.Execute(ctx)
}

// Exec executes sql and discards the result.
func (c *Client) Exec(ctx context.Context, sql string) error {
	_, err := c.Statement(sql).Execute(ctx)
	return err
}

// QueryStream executes sql and returns a stream over its rows.
func (c *Client) QueryStream(ctx context.Context, sql string) (*RowStream, error) {
	return c.Statement(sql).Stream(ctx)
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config == nil || c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}
