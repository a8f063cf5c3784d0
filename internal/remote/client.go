// Package remote provides the client for the hosted snapshot store.
//
// The backend exposes a single backups table over a PostgREST-style REST
// API; this package reads and upserts exactly one row in it, keyed by the
// fixed snapshot id. There is no per-entity sync log on the server, only
// the one full-dump record.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reparalab/taller/internal/schema"
)

// Sentinel errors the sync layer branches on.
var (
	// ErrNotFound means no snapshot record exists yet (fresh backend).
	ErrNotFound = errors.New("snapshot record not found")

	// ErrUnavailable means the backend could not be reached at all. The
	// scheduler maps this to the offline state rather than an error.
	ErrUnavailable = errors.New("remote store unreachable")
)

// Store is the interface the reconciler consumes. Client implements it;
// tests substitute an in-memory fake.
type Store interface {
	// Fetch reads the snapshot record. Returns ErrNotFound when it does
	// not exist and ErrUnavailable when the backend cannot be reached.
	Fetch(ctx context.Context) (*schema.Snapshot, error)

	// Upsert writes the snapshot record in place, keyed on its id.
	Upsert(ctx context.Context, snap *schema.Snapshot) error
}

// Client talks to the hosted backup store over HTTP.
type Client struct {
	baseURL string
	apiKey  string
	table   string
	http    *http.Client
}

// Config holds client configuration.
type Config struct {
	// BaseURL is the REST root, e.g. https://xyz.example.co/rest/v1
	BaseURL string

	// APIKey is sent as both apikey and bearer token headers.
	APIKey string

	// Table is the backups table name (default: backups).
	Table string

	// Timeout bounds each request (default: 30s; attachment payloads
	// travel inside the snapshot, so uploads can be large).
	Timeout time.Duration
}

// NewClient creates a snapshot store client.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if config.Table == "" {
		config.Table = "backups"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		table:   config.Table,
		http:    &http.Client{Timeout: config.Timeout},
	}, nil
}

// Fetch implements Store.
func (c *Client) Fetch(ctx context.Context) (*schema.Snapshot, error) {
	u := fmt.Sprintf("%s/%s?id=eq.%s&limit=1", c.baseURL, c.table, url.QueryEscape(schema.SnapshotID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(body))
	}

	// PostgREST answers with an array; zero rows means no record yet.
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("failed to parse backend response: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	snap, err := schema.UnmarshalSnapshot(records[0])
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Upsert implements Store.
func (c *Client) Upsert(ctx context.Context, snap *schema.Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return err
	}

	// One-element array plus merge-duplicates keeps this an upsert on id.
	payload := append(append([]byte("["), data...), ']')

	u := fmt.Sprintf("%s/%s?on_conflict=id", c.baseURL, c.table)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("backend rejected upsert with %d: %s", resp.StatusCode, truncate(body))
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func truncate(body []byte) string {
	const max = 200
	s := string(body)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
