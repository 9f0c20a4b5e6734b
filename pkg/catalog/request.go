package catalog

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/Adda-Baaj/certless/pkg/apierr"
)

// Endpoint is the catalog resource on the remote service.
const Endpoint = "/puppet/v4/catalog"

// Request identifies the node whose catalog is fetched and the facts sent
// along with it. TransactionID and JobID are correlation ids passed through
// untouched.
type Request struct {
	Key            string
	Environment    string
	TransportFacts map[string]any
	TrustedFacts   map[string]any
	FailOn404      bool
	TransactionID  string
	JobID          string
}

// payload is the request body as it appears on the wire.
type payload struct {
	TransportFacts map[string]any `json:"transport_facts"`
	TrustedFacts   map[string]any `json:"trusted_facts"`
	FailOn404      bool           `json:"fail_on_404"`
	TransactionID  string         `json:"transaction_uuid"`
	JobID          string         `json:"job_id"`
}

// Validate reports whether the request can be sent.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Key) == "" {
		return apierr.New("catalog request key must not be empty", apierr.KindInvalidRequest, nil)
	}
	return nil
}

// Path returns the resource path including the environment query.
func (r Request) Path() string {
	return Endpoint + "/" + url.PathEscape(r.Key) + "?environment=" + url.QueryEscape(r.Environment)
}

// Body serializes the request payload.
func (r Request) Body() ([]byte, error) {
	raw, err := json.Marshal(payload{
		TransportFacts: r.TransportFacts,
		TrustedFacts:   r.TrustedFacts,
		FailOn404:      r.FailOn404,
		TransactionID:  r.TransactionID,
		JobID:          r.JobID,
	})
	if err != nil {
		return nil, apierr.New(fmt.Sprintf("encode catalog request: %v", err), apierr.KindInvalidRequest, nil).WithCause(err)
	}
	return raw, nil
}
