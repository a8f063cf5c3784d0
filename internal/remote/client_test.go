package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reparalab/taller/internal/schema"
)

// newTestClient points a client at the given test server.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return c
}

// TestNewClient_RequiresBaseURL rejects an empty base URL.
func TestNewClient_RequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("NewClient() accepted empty base URL")
	}
}

// TestFetch_Success parses a one-row PostgREST response.
func TestFetch_Success(t *testing.T) {
	snap := schema.NewSnapshot(schema.Payload{}, time.Now())
	data, err := snap.Marshal()
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.URL.Query().Get("id"); got != "eq."+schema.SnapshotID {
			t.Errorf("id filter = %q, want eq.%s", got, schema.SnapshotID)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[" + string(data) + "]"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	got, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got.ID != schema.SnapshotID {
		t.Errorf("snapshot id = %q, want %q", got.ID, schema.SnapshotID)
	}
	if !got.Complete() {
		t.Error("fetched snapshot lost its table arrays")
	}
}

// TestFetch_EmptyArrayIsNotFound maps zero rows to ErrNotFound.
func TestFetch_EmptyArrayIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// TestFetch_ServerErrorIsNotUnavailable keeps backend failures distinct
// from transport failures.
func TestFetch_ServerErrorIsNotUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.Fetch(context.Background())
	if err == nil {
		t.Fatal("Fetch() swallowed a 403")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("backend 403 reported as unreachable: %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("backend 403 reported as not found: %v", err)
	}
}

// TestFetch_ConnectionRefusedIsUnavailable maps dial failures to
// ErrUnavailable.
func TestFetch_ConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens here anymore

	c := newTestClient(t, srv)
	_, err := c.Fetch(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

// TestUpsert_SendsMergeDuplicates verifies the upsert shape: POST of a
// one-element array with the merge-duplicates preference.
func TestUpsert_SendsMergeDuplicates(t *testing.T) {
	var gotPrefer, gotQuery string
	var gotBody []json.RawMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		gotPrefer = r.Header.Get("Prefer")
		gotQuery = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("body is not a JSON array: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	snap := schema.NewSnapshot(schema.Payload{}, time.Now())
	if err := c.Upsert(context.Background(), snap); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
	if gotQuery != "on_conflict=id" {
		t.Errorf("query = %q, want on_conflict=id", gotQuery)
	}
	if len(gotBody) != 1 {
		t.Fatalf("body rows = %d, want 1", len(gotBody))
	}

	row, err := schema.UnmarshalSnapshot(gotBody[0])
	if err != nil {
		t.Fatalf("UnmarshalSnapshot() failed: %v", err)
	}
	if !row.Complete() {
		t.Error("uploaded snapshot missing table arrays")
	}
}

// TestUpsert_RejectionIsError surfaces non-2xx responses.
func TestUpsert_RejectionIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "row too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	snap := schema.NewSnapshot(schema.Payload{}, time.Now())
	err := c.Upsert(context.Background(), snap)
	if err == nil {
		t.Fatal("Upsert() swallowed a 413")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Errorf("backend rejection reported as unreachable: %v", err)
	}
}
