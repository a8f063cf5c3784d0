// Package inbox ingests attachment files dropped into a watched directory.
//
// A file named <ordenID>__<filename> is read, stored as an adjunto on that
// order, and removed from the directory. The watcher debounces filesystem
// events so a file still being written is only ingested once it has been
// quiet for a moment.
package inbox

import (
	"context"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
)

// Config holds configuration for the inbox watcher.
type Config struct {
	// DebounceInterval is how long a file must be quiet before ingestion.
	DebounceInterval time.Duration

	// KeepFiles leaves ingested files in place instead of removing them.
	KeepFiles bool

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 500 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher monitors the inbox directory and attaches dropped files to orders.
type Watcher struct {
	store  *store.Store
	dir    string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an inbox watcher over dir. Use Start to begin watching.
func New(st *store.Store, dir string, config *Config) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		store:       st,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start ingests files already sitting in the inbox, then begins watching
// for new ones. Non-blocking; call Stop to shut down.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	if err := w.ingestExisting(); err != nil {
		return err
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}

	w.config.Logger.Printf("Watching inbox: %s", w.dir)

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	return nil
}

// Stop shuts the watcher down and waits for its goroutines.
func (w *Watcher) Stop() error {
	w.cancel()

	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}

	w.wg.Wait()
	return nil
}

// ingestExisting picks up files dropped while the watcher was not running.
func (w *Watcher) ingestExisting() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.dir, entry.Name())
		if err := w.ingest(path); err != nil {
			w.config.Logger.Printf("Warning: failed to ingest %s: %v", entry.Name(), err)
		}
	}
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.queueChange(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) queueChange(path string) {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()
	w.changeQueue[path] = time.Now()
}

// processChangeQueue ingests files once they have been quiet long enough.
func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.processPendingChanges()
		}
	}
}

func (w *Watcher) processPendingChanges() {
	w.changeQueueMu.Lock()
	defer w.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range w.changeQueue {
		if now.Sub(queuedAt) < w.config.DebounceInterval {
			continue
		}

		if err := w.ingest(path); err != nil {
			w.config.Logger.Printf("Error ingesting %s: %v", path, err)
		}
		delete(w.changeQueue, path)
	}
}

// ingest attaches one dropped file to its order and removes it from the
// inbox. Files that don't match the naming convention or reference an
// unknown order stay in place so the operator can fix the name.
func (w *Watcher) ingest(path string) error {
	name := filepath.Base(path)
	orderID, filename, ok := splitName(name)
	if !ok {
		return fmt.Errorf("skipping %s: expected <ordenID>__<filename>", name)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Removed before we got to it.
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	att := &schema.Attachment{
		ID:      uuid.NewString(),
		OrderID: orderID,
		Name:    filename,
		Mime:    mimeFor(filename),
		Size:    int64(len(data)),
		Date:    schema.FormatTime(time.Now()),
		Data:    data,
	}

	if err := w.store.AddAttachment(w.ctx, att); err != nil {
		return fmt.Errorf("failed to store attachment for order %s: %w", orderID, err)
	}

	w.config.Logger.Printf("Attached %s to order %s (%d bytes)", filename, orderID, len(data))

	if !w.config.KeepFiles {
		if err := os.Remove(path); err != nil {
			w.config.Logger.Printf("Warning: failed to remove %s: %v", path, err)
		}
	}
	return nil
}

// splitName parses <ordenID>__<filename>.
func splitName(name string) (orderID, filename string, ok bool) {
	orderID, filename, found := strings.Cut(name, "__")
	if !found || orderID == "" || filename == "" {
		return "", "", false
	}
	return orderID, filename, true
}

func mimeFor(filename string) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}
