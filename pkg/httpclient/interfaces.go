package httpclient

import (
	"context"

	"github.com/Adda-Baaj/certless/pkg/sslcontext"
)

// Response is a minimal HTTP response contract. Code is the status code as
// sent on the status line ("200", "404", ...).
type Response interface {
	Code() string
	Body() string
	Header(name string) string
}

// Connection sends requests to the configured server. A Connection is only
// valid inside the Pool.WithConnection callback that produced it.
type Connection interface {
	Request(ctx context.Context, method, path string, body []byte, headers map[string]string) (Response, error)
}

// Pool hands out connections scoped to a verified SSL context. The
// connection is released when fn returns, whatever the outcome.
type Pool interface {
	WithConnection(ctx context.Context, ssl *sslcontext.Context, fn func(Connection) error) error
}
