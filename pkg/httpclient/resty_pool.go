package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adda-Baaj/certless/pkg/sslcontext"
	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zlib"
)

// ErrConnectionReleased is returned when a connection is used after its
// WithConnection callback has returned.
var ErrConnectionReleased = errors.New("connection used after release")

// PoolOptions configures a RestyPool.
type PoolOptions struct {
	Server  string
	Port    int
	Timeout time.Duration
	// Caching keeps one client (and its keep-alive connections) per SSL
	// context. When false every acquisition gets a fresh client that is torn
	// down on release.
	Caching bool
}

// RestyPool implements Pool on top of resty clients.
type RestyPool struct {
	baseURL string
	timeout time.Duration
	caching bool

	mu      sync.Mutex
	clients map[*sslcontext.Context]*resty.Client
}

// NewRestyPool creates a pool for https://server:port.
func NewRestyPool(opts PoolOptions) (*RestyPool, error) {
	server := strings.TrimSpace(opts.Server)
	if server == "" {
		return nil, errors.New("server is required")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", opts.Port)
	}
	return &RestyPool{
		baseURL: "https://" + net.JoinHostPort(server, strconv.Itoa(opts.Port)),
		timeout: opts.Timeout,
		caching: opts.Caching,
		clients: make(map[*sslcontext.Context]*resty.Client),
	}, nil
}

// NewRestyPoolForURL creates a pool for an explicit base URL. Mostly useful
// against test servers.
func NewRestyPoolForURL(baseURL string, timeout time.Duration, caching bool) *RestyPool {
	return &RestyPool{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		caching: caching,
		clients: make(map[*sslcontext.Context]*resty.Client),
	}
}

// BaseURL returns the server the pool talks to.
func (p *RestyPool) BaseURL() string { return p.baseURL }

// WithConnection acquires a connection for ssl, runs fn and releases it.
func (p *RestyPool) WithConnection(ctx context.Context, ssl *sslcontext.Context, fn func(Connection) error) error {
	if ssl == nil {
		return errors.New("ssl context is required")
	}
	if fn == nil {
		return errors.New("connection callback is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	client := p.acquire(ssl)
	conn := &restyConnection{client: client}
	defer p.release(client, conn)

	return fn(conn)
}

// Close drops every cached client and its idle connections.
func (p *RestyPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.clients {
		c.GetClient().CloseIdleConnections()
		delete(p.clients, key)
	}
}

func (p *RestyPool) acquire(ssl *sslcontext.Context) *resty.Client {
	if !p.caching {
		return p.newClient(ssl)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[ssl]; ok {
		return c
	}
	c := p.newClient(ssl)
	p.clients[ssl] = c
	return c
}

func (p *RestyPool) release(client *resty.Client, conn *restyConnection) {
	conn.released.Store(true)
	if !p.caching {
		client.GetClient().CloseIdleConnections()
	}
}

func (p *RestyPool) newClient(ssl *sslcontext.Context) *resty.Client {
	c := NewRestyHTTPClient(p.timeout)
	c.SetBaseURL(p.baseURL)
	c.SetTLSClientConfig(ssl.TLSConfig())
	return c
}

// NewRestyHTTPClient exposes a configured resty.Client for callers needing custom verbs.
func NewRestyHTTPClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// restyConnection adapts a resty.Client to Connection.
type restyConnection struct {
	client   *resty.Client
	released atomic.Bool
}

func (c *restyConnection) Request(ctx context.Context, method, path string, body []byte, headers map[string]string) (Response, error) {
	if c.released.Load() {
		return nil, ErrConnectionReleased
	}

	req := c.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, err
	}

	raw, err := decodeBody(resp.Header().Get("Content-Encoding"), resp.Body())
	if err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return &restyResponseAdapter{resp: resp, body: string(raw)}, nil
}

// decodeBody inflates deflate bodies. resty already unwraps gzip but leaves
// the Content-Encoding header in place, so gzip is passed through.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	if !strings.EqualFold(strings.TrimSpace(encoding), "deflate") || len(body) == 0 {
		return body, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
	body string
}

func (r *restyResponseAdapter) Code() string              { return strconv.Itoa(r.resp.StatusCode()) }
func (r *restyResponseAdapter) Body() string              { return r.body }
func (r *restyResponseAdapter) Header(name string) string { return r.resp.Header().Get(name) }
