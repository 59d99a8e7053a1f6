package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/vitesrv/internal/history"
)

const DefaultIndex = "vite-history"

// document is the flat shape indexed for each event. @timestamp keeps it
// usable with OpenSearch Dashboards index patterns without a mapping.
type document struct {
	Timestamp time.Time `json:"@timestamp"`
	Event     string    `json:"event"`
	ServerID  string    `json:"server_id,omitempty"`
	PID       int       `json:"pid"`
	Kind      string    `json:"kind"`
	Cwd       string    `json:"cwd"`
	URL       string    `json:"url,omitempty"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
}

func toDocument(e history.Event) document {
	return document{
		Timestamp: e.OccurredAt.UTC(),
		Event:     string(e.Type),
		ServerID:  e.Record.ServerID,
		PID:       e.Record.PID,
		Kind:      e.Record.Kind,
		Cwd:       e.Record.Cwd,
		URL:       e.Record.URL,
		ExitCode:  e.Record.ExitCode,
		Error:     e.Record.Error,
	}
}

// docID derives a stable id so a resent event overwrites instead of duplicating.
func docID(e history.Event) string {
	subject := e.Record.ServerID
	if subject == "" {
		subject = fmt.Sprintf("build-%d", e.Record.PID)
	}
	return fmt.Sprintf("%s-%s-%d", subject, e.Type, e.OccurredAt.UnixNano())
}

// Sink indexes events into OpenSearch over its REST API, one PUT per event
// to baseURL/index/_doc/<id>.
type Sink struct {
	client  *http.Client
	baseURL string
	index   string
}

func New(baseURL, index string) *Sink {
	if index == "" {
		index = DefaultIndex
	}
	c := &http.Client{Timeout: 5 * time.Second}
	return &Sink{client: c, baseURL: strings.TrimRight(baseURL, "/"), index: index}
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(toDocument(e))
	if err != nil {
		return fmt.Errorf("encode %s event: %w", e.Type, err)
	}
	u := fmt.Sprintf("%s/%s/_doc/%s", s.baseURL, s.index, url.PathEscape(docID(e)))
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("index %s event: %w", e.Type, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("opensearch index %s: status %d", s.index, resp.StatusCode)
	}
	return nil
}
