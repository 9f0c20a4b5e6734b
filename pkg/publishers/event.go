package publishers

import (
	"time"

	"github.com/Adda-Baaj/certless/pkg/apierr"
	"github.com/Adda-Baaj/certless/pkg/catalog"
)

// Event types emitted by the fetch loop.
const (
	EventCatalogFetched = "catalog_fetched"
	EventCatalogFailed  = "catalog_failed"
)

// Event represents the payload published downstream.
type Event struct {
	Type           string        `json:"type"`
	Certname       string        `json:"certname"`
	Environment    string        `json:"environment"`
	TransactionID  string        `json:"transaction_uuid,omitempty"`
	JobID          string        `json:"job_id,omitempty"`
	CatalogUUID    string        `json:"catalog_uuid,omitempty"`
	CatalogVersion string        `json:"catalog_version,omitempty"`
	Digest         string        `json:"digest,omitempty"`
	ResourcesCount int           `json:"resources_count"`
	Error          *apierr.Error `json:"error,omitempty"`
	CollectedAt    time.Time     `json:"collected_at"`
}

// NewFetchedEvent describes a catalog that compiled and decoded successfully.
func NewFetchedEvent(req catalog.Request, doc *catalog.Document, digest string) Event {
	evt := baseEvent(EventCatalogFetched, req)
	if doc != nil {
		evt.CatalogUUID = doc.CatalogUUID
		evt.CatalogVersion = doc.Version
		evt.ResourcesCount = len(doc.Resources)
	}
	evt.Digest = digest
	return evt
}

// NewFailedEvent describes a fetch that ended in a structured error.
func NewFailedEvent(req catalog.Request, err *apierr.Error) Event {
	evt := baseEvent(EventCatalogFailed, req)
	evt.Error = err
	return evt
}

func baseEvent(typ string, req catalog.Request) Event {
	return Event{
		Type:          typ,
		Certname:      req.Key,
		Environment:   req.Environment,
		TransactionID: req.TransactionID,
		JobID:         req.JobID,
		CollectedAt:   time.Now().UTC(),
	}
}
