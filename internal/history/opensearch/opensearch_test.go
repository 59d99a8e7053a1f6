package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/loykin/vitesrv/internal/history"
)

func TestOpenSearchSinkSend(t *testing.T) {
	var (
		method, path string
		body         []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	}))
	defer srv.Close()

	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	sink := New(srv.URL+"/", "vite-events")
	ev := history.Event{
		Type:       history.EventReady,
		OccurredAt: at,
		Record:     history.Record{ServerID: "vite-1-1", PID: 77, Kind: "dev", Cwd: "/srv/app", URL: "http://localhost:5173/"},
	}
	if err := sink.Send(context.Background(), ev); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if method != http.MethodPut || path != "/vite-events/_doc/vite-1-1-ready-"+itoa(at.UnixNano()) {
		t.Fatalf("request = %s %s", method, path)
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got["event"] != "ready" || got["server_id"] != "vite-1-1" || got["url"] != ev.Record.URL || got["pid"] != float64(77) {
		t.Fatalf("unexpected document: %v", got)
	}
	if got["@timestamp"] != "2026-10-16T12:00:00Z" {
		t.Fatalf("@timestamp = %v", got["@timestamp"])
	}
	if _, nested := got["record"]; nested {
		t.Fatal("document should be flat")
	}
}

func TestOpenSearchBuildDocID(t *testing.T) {
	ev := history.Event{Type: history.EventBuildFailed, OccurredAt: time.Unix(0, 42), Record: history.Record{PID: 9, Kind: "build"}}
	if id := docID(ev); id != "build-9-build_failed-42" {
		t.Fatalf("docID = %q", id)
	}
	if d := toDocument(ev); d.ServerID != "" || d.Kind != "build" {
		t.Fatalf("document = %+v", d)
	}
}

func TestOpenSearchSinkErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	err := New(srv.URL, "").Send(context.Background(), history.Event{Type: history.EventStopped})
	if err == nil || !strings.Contains(err.Error(), DefaultIndex) {
		t.Fatalf("expected status error naming the index, got %v", err)
	}
}

func TestOpenSearchDefaultIndex(t *testing.T) {
	if s := New("http://localhost:9200", ""); s.index != DefaultIndex {
		t.Fatalf("index = %q", s.index)
	}
}

