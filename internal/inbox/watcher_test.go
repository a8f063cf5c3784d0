package inbox

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
)

// setupInbox creates a store with one order and an inbox directory.
func setupInbox(t *testing.T) (*store.Store, string, string) {
	t.Helper()

	tmpDir := t.TempDir()
	st, err := store.Open(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	ctx := context.Background()
	now := schema.FormatTime(time.Now())
	c := &schema.Client{ID: "cli-1", Name: "Sara Ponce", Phone: "688777666", CreatedAt: now}
	if err := st.PutClient(ctx, c); err != nil {
		t.Fatalf("PutClient() failed: %v", err)
	}
	e := &schema.Equipment{ID: "eq-1", ClientID: "cli-1", Category: "impresora", ReceivedAt: now}
	if err := st.PutEquipment(ctx, e); err != nil {
		t.Fatalf("PutEquipment() failed: %v", err)
	}
	o := &schema.Order{ID: "ord-1", Code: "ORD-1", EquipID: "eq-1", Status: schema.StatusReception, CreatedAt: now, UpdatedAt: now}
	if err := st.PutOrder(ctx, o); err != nil {
		t.Fatalf("PutOrder() failed: %v", err)
	}

	inboxDir := filepath.Join(tmpDir, "inbox")
	if err := os.MkdirAll(inboxDir, 0755); err != nil {
		t.Fatalf("failed to create inbox dir: %v", err)
	}
	return st, inboxDir, "ord-1"
}

// testConfig returns a fast, quiet watcher config.
func testConfig() *Config {
	return &Config{
		DebounceInterval: 20 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

// waitForAttachments polls until the order has n attachments.
func waitForAttachments(t *testing.T, st *store.Store, orderID string, n int) []schema.Attachment {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		atts, err := st.ListAttachmentsForOrder(context.Background(), orderID)
		if err != nil {
			t.Fatalf("ListAttachmentsForOrder() failed: %v", err)
		}
		if len(atts) >= n {
			return atts
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d attachments on %s", n, orderID)
	return nil
}

// TestStart_IngestsExistingFiles picks up files already in the inbox.
func TestStart_IngestsExistingFiles(t *testing.T) {
	st, dir, orderID := setupInbox(t)

	path := filepath.Join(dir, orderID+"__presupuesto.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 fake"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w, err := New(st, dir, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	atts := waitForAttachments(t, st, orderID, 1)
	if atts[0].Name != "presupuesto.pdf" {
		t.Errorf("attachment name = %q", atts[0].Name)
	}
	if atts[0].Mime != "application/pdf" {
		t.Errorf("mime = %q, want application/pdf", atts[0].Mime)
	}
	if string(atts[0].Data) != "%PDF-1.4 fake" {
		t.Errorf("data = %q", atts[0].Data)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("ingested file was not removed from the inbox")
	}
}

// TestWatch_IngestsDroppedFile attaches a file created after Start.
func TestWatch_IngestsDroppedFile(t *testing.T) {
	st, dir, orderID := setupInbox(t)

	w, err := New(st, dir, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(dir, orderID+"__foto.jpg")
	if err := os.WriteFile(path, []byte{0xff, 0xd8, 0xff}, 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	atts := waitForAttachments(t, st, orderID, 1)
	if atts[0].Mime != "image/jpeg" {
		t.Errorf("mime = %q, want image/jpeg", atts[0].Mime)
	}
	if atts[0].Size != 3 {
		t.Errorf("size = %d, want 3", atts[0].Size)
	}
}

// TestWatch_BadNameStaysInPlace leaves unparseable filenames alone.
func TestWatch_BadNameStaysInPlace(t *testing.T) {
	st, dir, orderID := setupInbox(t)

	path := filepath.Join(dir, "sin-separador.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w, err := New(st, dir, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(path); err != nil {
		t.Errorf("misnamed file removed: %v", err)
	}
	atts, err := st.ListAttachmentsForOrder(context.Background(), orderID)
	if err != nil {
		t.Fatalf("ListAttachmentsForOrder() failed: %v", err)
	}
	if len(atts) != 0 {
		t.Errorf("attachments = %d, want 0", len(atts))
	}
}

// TestWatch_UnknownOrderStaysInPlace keeps files whose order id does not
// exist so the operator can correct the name.
func TestWatch_UnknownOrderStaysInPlace(t *testing.T) {
	st, dir, _ := setupInbox(t)

	path := filepath.Join(dir, "no-such-order__doc.txt")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w, err := New(st, dir, testConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(path); err != nil {
		t.Errorf("file for unknown order removed: %v", err)
	}
}

// TestKeepFiles leaves ingested files in the inbox when configured.
func TestKeepFiles(t *testing.T) {
	st, dir, orderID := setupInbox(t)

	config := testConfig()
	config.KeepFiles = true

	path := filepath.Join(dir, orderID+"__informe.txt")
	if err := os.WriteFile(path, []byte("ok"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	w, err := New(st, dir, config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer w.Stop()

	waitForAttachments(t, st, orderID, 1)
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file removed despite KeepFiles: %v", err)
	}
}

// TestSplitName parses the inbox naming convention.
func TestSplitName(t *testing.T) {
	cases := []struct {
		in       string
		orderID  string
		filename string
		ok       bool
	}{
		{"ord-1__foto.jpg", "ord-1", "foto.jpg", true},
		{"ord-1__sub__dir.txt", "ord-1", "sub__dir.txt", true},
		{"nofile__", "", "", false},
		{"__noorder.txt", "", "", false},
		{"plain.txt", "", "", false},
	}
	for _, tc := range cases {
		orderID, filename, ok := splitName(tc.in)
		if ok != tc.ok || orderID != tc.orderID || filename != tc.filename {
			t.Errorf("splitName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, orderID, filename, ok, tc.orderID, tc.filename, tc.ok)
		}
	}
}
