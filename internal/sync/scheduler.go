package sync

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"github.com/reparalab/taller/internal/remote"
	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
)

// State is the scheduler's observable sync state.
type State string

const (
	// StateIdle means the last operation finished cleanly (or none ran yet).
	StateIdle State = "idle"
	// StateSyncing means a push or pull is in flight.
	StateSyncing State = "syncing"
	// StateOffline means the last operation could not reach the backend.
	StateOffline State = "offline"
	// StateError means the last operation failed for a non-transport reason.
	StateError State = "error"
)

// SettingLastSync is the ajustes key holding the last successful sync
// instant. Diagnostic only; correctness comes from comparing order
// timestamps against the remote fecha, never from this marker.
const SettingLastSync = "ultima_sincronizacion"

// SchedulerConfig holds scheduler timing configuration.
type SchedulerConfig struct {
	// PullInterval is how often the periodic pull fires.
	PullInterval time.Duration

	// DebounceInterval is the quiet period after the last qualifying
	// local change before a push is attempted. Reset on every new change
	// so keystroke-level mutation bursts coalesce into one push.
	DebounceInterval time.Duration
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PullInterval:     90 * time.Second,
		DebounceInterval: 2 * time.Second,
	}
}

// flight is one in-progress sync operation. Late arrivals wait on done and
// share err instead of starting a second operation.
type flight struct {
	done chan struct{}
	err  error
}

// Scheduler owns the sync lifecycle for one running client: the state
// machine, the periodic pull, the debounced change-triggered push, and the
// user-facing force sync. It is the sole caller of the Reconciler.
//
// There is no separate lock around sync work; the in-flight marker checked
// under mu is the mutual exclusion, exactly one operation runs at a time.
type Scheduler struct {
	rec    *Reconciler
	store  *store.Store
	config SchedulerConfig
	logger *log.Logger

	mu          sync.Mutex
	state       State
	inflight    *flight
	initialized bool
	subs        map[int]func(State)
	nextSubID   int
	debounce    *time.Timer

	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewScheduler creates a Scheduler. Call Init to start the triggers.
//
// If logger is nil, a default logger writing to stderr is used.
func NewScheduler(rec *Reconciler, st *store.Store, config SchedulerConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if config.PullInterval <= 0 {
		config.PullInterval = DefaultSchedulerConfig().PullInterval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultSchedulerConfig().DebounceInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		rec:    rec,
		store:  st,
		config: config,
		logger: logger,
		state:  StateIdle,
		subs:   make(map[int]func(State)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Init starts the scheduler: it subscribes to the store's change feed,
// starts the periodic pull, and runs the startup reconciliation (one pull,
// then a seed push when no remote record exists yet, so an empty remote
// does not stay empty forever).
//
// Init is idempotent; calling it twice registers nothing twice.
func (s *Scheduler) Init() error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	s.unsubscribe = s.store.OnChanges(s.onLocalChanges)

	s.wg.Add(1)
	go s.pullLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.startup()
	}()

	return nil
}

// Close stops the timers and the change subscription and waits for any
// in-flight operation's goroutines to wind down.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return
	}
	s.initialized = false
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}

	s.cancel()
	s.wg.Wait()
}

// State returns the current sync state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange registers a callback invoked on every state transition.
// The returned function unsubscribes.
func (s *Scheduler) OnStateChange(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// ForceSync pushes local data and then pulls with force=true, so the
// user's pending edits are uploaded before the remote snapshot replaces
// local tables. Unlike the background triggers, failures are returned to
// the caller for display.
//
// If a sync is already in flight, ForceSync waits for it and returns its
// outcome instead of starting a second operation.
func (s *Scheduler) ForceSync(ctx context.Context) error {
	f, owner := s.begin()
	if !owner {
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := s.pushThenPull(ctx)
	s.finish(f, err)
	return err
}

func (s *Scheduler) pushThenPull(ctx context.Context) error {
	if _, err := s.rec.Push(ctx); err != nil {
		return err
	}
	if _, err := s.rec.Pull(ctx, true); err != nil {
		return err
	}
	return nil
}

// startup runs the first reconciliation: pull once, and when no remote
// record exists afterward, push once to seed it. The companion guard lives
// in Pull: a second device with an empty local store always accepts the
// seeded snapshot, and an empty local store never overwrites a populated
// remote because its push carries no orders while the remote fecha is
// fresher.
func (s *Scheduler) startup() {
	f, owner := s.begin()
	if !owner {
		return
	}

	result, err := s.rec.Pull(s.ctx, false)
	if err == nil && result == PullNoRemote {
		_, err = s.rec.Push(s.ctx)
	}
	s.finish(f, err)
}

// pullLoop fires the periodic pull while not already syncing.
func (s *Scheduler) pullLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runPull()
		}
	}
}

func (s *Scheduler) runPull() {
	f, owner := s.begin()
	if !owner {
		// Already syncing; the next tick retries.
		return
	}

	_, err := s.rec.Pull(s.ctx, false)
	s.finish(f, err)
}

// onLocalChanges feeds the debounced push. Only the tables that matter for
// freshness qualify; notifications raised by sync's own ReplaceAll arrive
// while an operation is in flight and are dropped so a pull does not
// immediately schedule a push of what it just wrote.
func (s *Scheduler) onLocalChanges(changes []store.Change) {
	qualifying := false
	for _, ch := range changes {
		switch ch.Table {
		case schema.TableClients, schema.TableEquipment, schema.TableOrders:
			qualifying = true
		}
	}
	if !qualifying {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight != nil || !s.initialized {
		return
	}

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.config.DebounceInterval, s.debouncedPush)
}

func (s *Scheduler) debouncedPush() {
	f, owner := s.begin()
	if !owner {
		return
	}

	_, err := s.rec.Push(s.ctx)
	s.finish(f, err)
}

// begin claims the single sync slot. The second return is false when
// another operation is already in flight; callers then either join f.done
// or drop the trigger.
func (s *Scheduler) begin() (*flight, bool) {
	s.mu.Lock()

	if s.inflight != nil {
		f := s.inflight
		s.mu.Unlock()
		return f, false
	}

	f := &flight{done: make(chan struct{})}
	s.inflight = f
	fns := s.setStateLocked(StateSyncing)
	s.mu.Unlock()

	notify(fns, StateSyncing)
	return f, true
}

// finish releases the sync slot and resolves the next state from the error
// taxonomy: transport failures are offline, anything else is error, and a
// clean finish (including guard-triggered no-ops) is idle.
func (s *Scheduler) finish(f *flight, err error) {
	next := StateIdle
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrUnavailable):
		next = StateOffline
		s.logger.Printf("Sync offline: %v", err)
	default:
		next = StateError
		s.logger.Printf("Sync failed: %v", err)
	}

	if err == nil {
		s.recordLastSync()
	}

	s.mu.Lock()
	s.inflight = nil
	fns := s.setStateLocked(next)
	s.mu.Unlock()

	f.err = err
	close(f.done)

	notify(fns, next)
}

// recordLastSync persists the diagnostic last-sync marker.
func (s *Scheduler) recordLastSync() {
	err := s.store.SetSetting(s.ctx, SettingLastSync, schema.FormatTime(time.Now()))
	if err != nil && s.ctx.Err() == nil {
		s.logger.Printf("Warning: failed to record last sync time: %v", err)
	}
}

// setStateLocked updates the state and returns the subscribers to notify.
// Callers hold mu and invoke the callbacks after releasing it, so a
// subscriber can call State() or unsubscribe itself.
func (s *Scheduler) setStateLocked(next State) []func(State) {
	if s.state == next {
		return nil
	}
	s.state = next

	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), state State) {
	for _, fn := range fns {
		fn(state)
	}
}
