package catalog

import (
	"fmt"
	"strings"

	"github.com/Adda-Baaj/certless/pkg/apierr"
)

// Result is the outcome of a completed request/response cycle: exactly one
// of Catalog or Failure is set.
type Result struct {
	Catalog *Document
	Failure *Failure
}

// OK reports whether the result carries a catalog.
func (r Result) OK() bool { return r.Catalog != nil && r.Failure == nil }

// Failure is a non-200 response.
type Failure struct {
	StatusCode string
	Body       string
}

// Message is the failure text callers match on; keep the format stable.
func (f *Failure) Message() string {
	return fmt.Sprintf("Find %s resulted in %s with the message: \"%s\"", Endpoint, f.StatusCode, f.Body)
}

// Err classifies the failure.
func (f *Failure) Err() *apierr.Error {
	return apierr.New(f.Message(), f.kind(), map[string]any{
		"status_code": f.StatusCode,
		"body":        f.Body,
	})
}

func (f *Failure) kind() apierr.Kind {
	switch {
	case f.StatusCode == "404":
		return apierr.KindNotFound
	case strings.HasPrefix(f.StatusCode, "5") && len(f.StatusCode) == 3:
		return apierr.KindServerError
	default:
		return apierr.KindRequestFailed
	}
}
