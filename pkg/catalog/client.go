package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Adda-Baaj/certless/pkg/apierr"
	"github.com/Adda-Baaj/certless/pkg/httpclient"
	"github.com/Adda-Baaj/certless/pkg/sslcontext"
	"github.com/Adda-Baaj/certless/pkg/version"
)

const (
	contentType    = "text/json"
	acceptType     = "application/json"
	acceptEncoding = "gzip;q=1.0,deflate;q=0.6,identity;q=0.3"

	// statusOK is the only status code treated as success.
	statusOK = "200"
)

// Client fetches compiled catalogs from the remote catalog service on behalf
// of nodes that hold no certificate of their own.
type Client struct {
	pool    httpclient.Pool
	ssl     *sslcontext.Context
	version version.Source
}

// NewClient wires a Client with its collaborators.
func NewClient(pool httpclient.Pool, ssl *sslcontext.Context, ver version.Source) (*Client, error) {
	if pool == nil {
		return nil, errors.New("connection pool must not be nil")
	}
	if ssl == nil {
		return nil, errors.New("ssl context must not be nil")
	}
	if ver == nil {
		ver = version.Build()
	}
	return &Client{pool: pool, ssl: ssl, version: ver}, nil
}

// Headers returns the negotiation headers sent with every request.
func (c *Client) Headers() map[string]string {
	return Headers(c.version)
}

// Headers returns a fresh copy of the request headers for agent version ver.
func Headers(ver version.Source) map[string]string {
	if ver == nil {
		ver = version.Build()
	}
	return map[string]string{
		"Content-Type":     contentType,
		"Accept":           acceptType,
		"X-Puppet-Version": ver.Version(),
		"accept-encoding":  acceptEncoding,
	}
}

// Fetch performs one request/response cycle. A non-200 response is a
// Failure result, not an error. Errors are invalid requests, undecodable
// catalogs and transport failures; the latter are returned exactly as the
// pool produced them.
func (c *Client) Fetch(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	body, err := req.Body()
	if err != nil {
		return Result{}, err
	}
	path := req.Path()
	headers := c.Headers()

	var resp httpclient.Response
	err = c.pool.WithConnection(ctx, c.ssl, func(conn httpclient.Connection) error {
		r, err := conn.Request(ctx, http.MethodPost, path, body, headers)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if resp == nil {
		return Result{}, errors.New("connection returned no response")
	}

	if resp.Code() != statusOK {
		return Result{Failure: &Failure{StatusCode: resp.Code(), Body: resp.Body()}}, nil
	}

	doc, err := Decode([]byte(resp.Body()))
	if err != nil {
		return Result{}, apierr.New(
			fmt.Sprintf("Find %s returned an undecodable catalog: %v", Endpoint, err),
			apierr.KindDecodeError,
			map[string]any{"status_code": resp.Code()},
		).WithCause(err)
	}
	return Result{Catalog: doc}, nil
}

// Find fetches the catalog for req, turning a Failure into its classified
// error.
func (c *Client) Find(ctx context.Context, req Request) (*Document, error) {
	res, err := c.Fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Failure != nil {
		return nil, res.Failure.Err()
	}
	return res.Catalog, nil
}
