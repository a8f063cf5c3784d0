package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/reparalab/taller/internal/remote"
	"github.com/reparalab/taller/internal/schema"
	"github.com/reparalab/taller/internal/store"
)

// Policy tunes the staleness heuristics. The source system never settled
// on exact values, so they stay configurable rather than baked in.
type Policy struct {
	// ClockSkewTolerance is how much newer the remote fecha must be than
	// the local freshness before a pull replaces local data. Devices sync
	// through wall clocks; without slack, two machines a few seconds
	// apart pull and push each other's snapshots in a loop.
	ClockSkewTolerance time.Duration
}

// DefaultPolicy returns the tolerance observed to stop oscillation in
// practice.
func DefaultPolicy() Policy {
	return Policy{ClockSkewTolerance: 5 * time.Second}
}

// PushResult says what a Push did.
type PushResult int

const (
	// PushUploaded means a new snapshot was written to the remote store.
	PushUploaded PushResult = iota
	// PushSkippedStale means the remote snapshot was strictly fresher
	// than local data, so the upload was withheld. Not an error.
	PushSkippedStale
)

// PullResult says what a Pull did.
type PullResult int

const (
	// PullApplied means the remote payload replaced the local tables.
	PullApplied PullResult = iota
	// PullSkippedFresh means local data was at least as fresh, so the
	// local store was left untouched. Not an error.
	PullSkippedFresh
	// PullNoRemote means there was no usable snapshot to pull: either no
	// record exists yet or its payload is structurally incomplete.
	PullNoRemote
)

// Reconciler moves whole snapshots between the local store and the remote
// snapshot store. It keeps no state between calls; every decision is a
// function of what it reads from both sides at call time.
type Reconciler struct {
	store  *store.Store
	remote remote.Store
	policy Policy
	logger *log.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewReconciler creates a Reconciler.
//
// If logger is nil, a default logger writing to stderr is used.
func NewReconciler(st *store.Store, rs remote.Store, policy Policy, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	if policy.ClockSkewTolerance <= 0 {
		policy.ClockSkewTolerance = DefaultPolicy().ClockSkewTolerance
	}
	return &Reconciler{
		store:  st,
		remote: rs,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Push uploads a full snapshot of the local tables, unless the remote
// already holds a strictly fresher one.
//
// The guard is the anti-clobber rule: a device that has been offline while
// another device kept working must not overwrite that work with its stale
// copy. Freshness on the local side is the newest actualizada across
// orders, or "now" when there are none.
func (r *Reconciler) Push(ctx context.Context) (PushResult, error) {
	payload, err := r.store.ReadAll(ctx)
	if err != nil {
		return PushSkippedStale, fmt.Errorf("failed to read local tables: %w", err)
	}

	localFresh := payload.Freshness()
	if localFresh.IsZero() {
		localFresh = r.now()
	}

	current, err := r.remote.Fetch(ctx)
	switch {
	case errors.Is(err, remote.ErrNotFound):
		// Nothing remote yet; this push seeds the record.
	case err != nil:
		return PushSkippedStale, err
	case current.Taken().After(localFresh):
		r.logger.Printf("Push withheld: remote snapshot %s is fresher than local %s",
			current.Fecha, schema.FormatTime(localFresh))
		return PushSkippedStale, nil
	}

	snap := schema.NewSnapshot(payload, r.now())
	if err := r.remote.Upsert(ctx, snap); err != nil {
		return PushSkippedStale, err
	}

	r.logger.Printf("Pushed snapshot %s (%d clients, %d orders, %d attachments)",
		snap.Fecha, len(payload.Clients), len(payload.Orders), len(payload.Attachments))
	return PushUploaded, nil
}

// Pull downloads the remote snapshot and, when it wins, replaces the six
// local tables with it in one transaction.
//
// The replace proceeds when any of these hold, checked in order:
//   - the local store has zero orders (empty device bootstrap),
//   - force is true (explicit user action),
//   - the remote fecha is newer than local freshness by more than the
//     clock-skew tolerance.
//
// An absent record or one missing any of the six table arrays is "nothing
// to pull": Pull reports PullNoRemote and leaves local data untouched.
func (r *Reconciler) Pull(ctx context.Context, force bool) (PullResult, error) {
	snap, err := r.remote.Fetch(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		return PullNoRemote, nil
	}
	if err != nil {
		return PullNoRemote, err
	}

	if !snap.Complete() {
		r.logger.Printf("Remote snapshot %s is incomplete, ignoring", snap.Fecha)
		return PullNoRemote, nil
	}

	count, err := r.store.CountOrders(ctx)
	if err != nil {
		return PullSkippedFresh, fmt.Errorf("failed to count local orders: %w", err)
	}

	apply := count == 0 || force
	if !apply {
		localFresh, err := r.store.OrderFreshness(ctx)
		if err != nil {
			return PullSkippedFresh, err
		}
		apply = snap.Taken().After(localFresh.Add(r.policy.ClockSkewTolerance))
	}

	if !apply {
		return PullSkippedFresh, nil
	}

	if err := r.store.ReplaceAll(ctx, snap.Payload); err != nil {
		return PullSkippedFresh, err
	}

	r.logger.Printf("Pulled snapshot %s (%d clients, %d orders)",
		snap.Fecha, len(snap.Payload.Clients), len(snap.Payload.Orders))
	return PullApplied, nil
}
