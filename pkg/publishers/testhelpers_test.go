package publishers

import (
	"github.com/Adda-Baaj/certless/pkg/apierr"
	"github.com/Adda-Baaj/certless/pkg/catalog"
)

func sampleRequest() catalog.Request {
	return catalog.Request{
		Key:           "foo.example.net",
		Environment:   "production",
		TransactionID: "tx-1",
		JobID:         "job-1",
	}
}

func sampleFetched() Event {
	doc := &catalog.Document{
		Name:        "foo.example.net",
		Version:     "1560000000",
		CatalogUUID: "cat-uuid",
		Resources:   []catalog.Resource{{Type: "Class", Title: "main"}},
	}
	return NewFetchedEvent(sampleRequest(), doc, "digest-1")
}

func sampleFailed() Event {
	return NewFailedEvent(sampleRequest(), apierr.New("boom", apierr.KindServerError, nil))
}
