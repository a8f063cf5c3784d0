// Package sync keeps the local store and the remote snapshot store
// reconciled, offline-first.
//
// # Overview
//
// The shop runs one operator per device. Instead of per-record merging,
// sync exchanges a full dump of the six local tables under a single remote
// record, last-writer-wins:
//
//	Local Store (SQLite) ──ReadAll──▶ Reconciler.Push ──▶ Remote backups row
//	Remote backups row ──▶ Reconciler.Pull ──ReplaceAll──▶ Local Store
//
// Direction is decided from timestamps: the newest actualizada across
// local orders versus the remote record's fecha. Push never overwrites a
// strictly fresher remote; Pull only replaces local data when the remote
// is fresher beyond a clock-skew tolerance, when the local store is empty,
// or when the user forces it. The tolerance is a Policy field, not
// hard-coded.
//
// The Scheduler is the only caller of the Reconciler. It owns a four-state
// machine (idle, syncing, offline, error) that doubles as the mutual
// exclusion for sync work: a second trigger while one operation is in
// flight joins or skips, it never runs in parallel. Triggers are a
// periodic pull ticker, a debounced push fed by the store's
// change-notification list, and the user-facing ForceSync.
//
// # Usage
//
//	st, _ := store.Open(".taller/taller.db")
//	client, _ := remote.NewClient(remote.Config{BaseURL: url, APIKey: key})
//	rec := sync.NewReconciler(st, client, sync.DefaultPolicy(), nil)
//	sched := sync.NewScheduler(rec, st, sync.DefaultSchedulerConfig(), nil)
//	if err := sched.Init(); err != nil {
//	    return err
//	}
//	defer sched.Close()
//
// A deliberate consequence of whole-snapshot last-writer-wins: local edits
// made strictly between the last push and a later winning pull are lost.
// That tradeoff is inherited from the system this replaces; do not
// "upgrade" it to per-record merging.
package sync
