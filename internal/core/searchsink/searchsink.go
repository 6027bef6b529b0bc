// Package searchsink is the Result Document sink (C3): an
// Elasticsearch index keyed by repo id, written idempotently so a retried
// indexing run overwrites rather than duplicates. Grounded on
// other_examples/deepanshu-rawat6-go-polyglot-persistence's worker.go,
// which writes its own domain document to Elasticsearch keyed by the
// order's id for the same idempotent-by-id reason.
package searchsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	perr "dex/internal/platform/errors"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Sink writes Result Documents to one Elasticsearch index
type Sink struct {
	es    *elasticsearch.Client
	index string
}

// New builds a Sink over the given index, dialing the cluster at addrs
func New(addrs []string, username, password, index string) (*Sink, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
	})
	if err != nil {
		return nil, perr.BootFailure(err, "searchsink: new client")
	}
	return &Sink{es: es, index: index}, nil
}

// Put upserts doc at id, replacing any prior document at the same id. doc
// is marshaled as-is; callers pass a resultdoc.Document.
func (s *Sink) Put(ctx context.Context, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("searchsink: marshal document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: id,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	resp, err := req.Do(ctx, s.es)
	if err != nil {
		return perr.ExternalSystemFailure(err, "searchsink: index request")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return perr.ExternalSystemFailure(fmt.Errorf("status %s", resp.Status()), "searchsink: index response")
	}
	return nil
}

// Ping confirms the cluster is reachable (used by the Orchestrator's boot probe)
func (s *Sink) Ping(ctx context.Context) error {
	resp, err := s.es.Ping(s.es.Ping.WithContext(ctx))
	if err != nil {
		return perr.BootFailure(err, "searchsink: ping")
	}
	defer resp.Body.Close()
	if resp.IsError() {
		return perr.BootFailure(fmt.Errorf("status %s", resp.Status()), "searchsink: ping response")
	}
	return nil
}
