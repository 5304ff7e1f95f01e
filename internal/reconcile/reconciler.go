// Package reconcile keeps the signed-in user's view consistent across the
// device cache, the remote document store and the relational store.
//
// Reads merge every reachable tier field by field with a fixed precedence,
// relational over document over local. Writes land locally first and reach
// the remote tiers directly when online, or through an ordered replay queue
// when not.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront_ledger/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RemoteTier is a network-backed copy of the user record.
// Fetch returns domain.ErrNotFound when the tier holds nothing for key.
// Store must be idempotent: it sets the fields the patch carries.
type RemoteTier interface {
	Name() string
	Fetch(ctx context.Context, key domain.AccountKey) (domain.CachedUserRecord, error)
	Store(ctx context.Context, key domain.AccountKey, patch domain.CachedUserRecord) error
}

// QueuedWrite is a patch waiting for both remote tiers to accept it
type QueuedWrite struct {
	ID         string
	Key        domain.AccountKey
	Patch      domain.CachedUserRecord
	EnqueuedAt time.Time
	Attempts   int
}

// WriteResult reports the locally applied record and whether remote sync is still pending
type WriteResult struct {
	Record domain.CachedUserRecord
	Queued bool
}

// Reconciler is the single owner of the current-user view
type Reconciler struct {
	local      *LocalStore
	relational RemoteTier
	document   RemoteTier
	now        func() time.Time

	mu     sync.Mutex
	online bool
	queue  []QueuedWrite
	subs   map[int]func(domain.CachedUserRecord)
	nextID int

	flushMu sync.Mutex
}

// New builds a Reconciler that starts online
func New(local *LocalStore, relational, document RemoteTier) *Reconciler {
	if local == nil {
		local = NewLocalStore()
	}
	return &Reconciler{
		local:      local,
		relational: relational,
		document:   document,
		now:        func() time.Time { return time.Now().UTC() },
		online:     true,
		subs:       make(map[int]func(domain.CachedUserRecord)),
	}
}

// remotes in merge precedence order
func (r *Reconciler) remotes() []RemoteTier {
	out := make([]RemoteTier, 0, 2)
	if r.relational != nil {
		out = append(out, r.relational)
	}
	if r.document != nil {
		out = append(out, r.document)
	}
	return out
}

// Online reports the current connectivity flag
func (r *Reconciler) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// Read merges every tier that answers for key, caches the result locally and
// broadcasts it. A tier that fails is skipped; the read fails only when no
// tier, local included, holds the record.
func (r *Reconciler) Read(ctx context.Context, key domain.AccountKey) (domain.CachedUserRecord, error) {
	var sources []domain.CachedUserRecord
	if r.Online() {
		for _, tier := range r.remotes() {
			rec, err := tier.Fetch(ctx, key)
			if err != nil {
				entry := logrus.WithFields(logrus.Fields{"tier": tier.Name(), "account_id": key.AccountID, "error": err.Error()})
				if errors.Is(err, domain.ErrNotFound) {
					entry.Debug("Tier has no record")
				} else {
					entry.Warn("Tier read failed, falling back")
				}
				continue
			}
			sources = append(sources, rec)
		}
	}
	if rec, ok := r.local.Load(key); ok {
		sources = append(sources, rec)
	}
	if len(sources) == 0 {
		return domain.CachedUserRecord{}, fmt.Errorf("%w: no tier holds account %d", domain.ErrNotFound, key.AccountID)
	}

	merged := Merge(sources...)
	merged.AccountID = key.AccountID
	if merged.ExternalUID == "" {
		merged.ExternalUID = key.ExternalUID
	}
	r.local.Save(key, merged)
	r.broadcast(merged)
	return merged, nil
}

// Merge folds records given in descending precedence. A field carried by an
// earlier record always wins over the same field in a later one.
func Merge(records ...domain.CachedUserRecord) domain.CachedUserRecord {
	var out domain.CachedUserRecord
	for _, rec := range records {
		out = out.FillFrom(rec)
	}
	return out
}

// Write applies patch to the local tier immediately, then syncs it to both
// remote tiers or queues it. Remote failures never fail the write; they show
// up as a queued entry.
func (r *Reconciler) Write(ctx context.Context, key domain.AccountKey, patch domain.CachedUserRecord) WriteResult {
	current, _ := r.local.Load(key)
	current = r.baseline(ctx, key, current)
	patch = r.normalize(current, patch)
	updated := current.Apply(patch)
	r.local.Save(key, updated)
	r.broadcast(updated)

	entry := QueuedWrite{ID: uuid.NewString(), Key: key, Patch: patch, EnqueuedAt: r.now()}

	r.mu.Lock()
	online := r.online
	// Earlier queued writes must reach the remotes first
	mustQueue := !online || len(r.queue) > 0
	if mustQueue {
		r.queue = append(r.queue, entry)
	}
	r.mu.Unlock()

	if !online {
		logrus.WithFields(logrus.Fields{"account_id": key.AccountID, "entry": entry.ID}).Info("Offline, write queued")
		return WriteResult{Record: updated, Queued: true}
	}
	if mustQueue {
		_ = r.FlushQueue(ctx)
		return WriteResult{Record: updated, Queued: r.isQueued(entry.ID)}
	}

	if err := r.syncEntry(ctx, &entry); err != nil {
		r.mu.Lock()
		r.queue = append(r.queue, entry)
		r.mu.Unlock()
		return WriteResult{Record: updated, Queued: true}
	}
	return WriteResult{Record: updated}
}

// baseline fills a device cache that has never seen a login count from the
// remote tiers, so the first write on a fresh device continues from the
// highest stored count instead of restarting at one.
func (r *Reconciler) baseline(ctx context.Context, key domain.AccountKey, current domain.CachedUserRecord) domain.CachedUserRecord {
	if current.LoginCount != nil || !r.Online() {
		return current
	}
	sources := []domain.CachedUserRecord{current}
	var highest *int64
	for _, tier := range r.remotes() {
		rec, err := tier.Fetch(ctx, key)
		if err != nil {
			continue
		}
		sources = append(sources, rec)
		if rec.LoginCount != nil && (highest == nil || *rec.LoginCount > *highest) {
			n := *rec.LoginCount
			highest = &n
		}
	}
	merged := Merge(sources...)
	merged.LoginCount = highest
	return merged
}

// normalize overrides caller-supplied audit fields. The login counter only
// ever moves up by one per write and the activity stamp is the local clock.
func (r *Reconciler) normalize(current, patch domain.CachedUserRecord) domain.CachedUserRecord {
	var count int64 = 1
	if current.LoginCount != nil {
		count = *current.LoginCount + 1
	}
	now := r.now()
	patch.LoginCount = &count
	patch.LastActiveAt = &now
	return patch
}

// syncEntry writes one entry to every remote tier
func (r *Reconciler) syncEntry(ctx context.Context, entry *QueuedWrite) error {
	entry.Attempts++
	var errs []error
	for _, tier := range r.remotes() {
		if err := tier.Store(ctx, entry.Key, entry.Patch); err != nil {
			logrus.WithFields(logrus.Fields{
				"tier":       tier.Name(),
				"account_id": entry.Key.AccountID,
				"entry":      entry.ID,
				"attempt":    entry.Attempts,
				"error":      err.Error(),
			}).Warn("Remote write failed")
			errs = append(errs, fmt.Errorf("%s: %w", tier.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrRemoteSyncFailure, errors.Join(errs...))
	}
	return nil
}

// FlushQueue replays queued writes in enqueue order. An entry leaves the queue
// only once both remote tiers accepted it. Replay stops at the first entry
// that still fails so later patches never overtake it.
func (r *Reconciler) FlushQueue(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	flushed := 0
	defer func() {
		if flushed > 0 {
			logrus.WithFields(logrus.Fields{"flushed": flushed, "pending": r.PendingSync()}).Info("Replay queue flushed")
		}
	}()

	for {
		if !r.Online() {
			return nil
		}
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.mu.Unlock()
			return nil
		}
		head := r.queue[0]
		r.mu.Unlock()

		err := r.syncEntry(ctx, &head)

		r.mu.Lock()
		if len(r.queue) > 0 && r.queue[0].ID == head.ID {
			if err == nil {
				r.queue = r.queue[1:]
			} else {
				r.queue[0].Attempts = head.Attempts
			}
		}
		r.mu.Unlock()

		if err != nil {
			return err
		}
		flushed++
	}
}

// SetOnline records a connectivity change. Coming back online flushes the queue.
func (r *Reconciler) SetOnline(ctx context.Context, online bool) error {
	r.mu.Lock()
	was := r.online
	r.online = online
	r.mu.Unlock()

	if online && !was {
		return r.FlushQueue(ctx)
	}
	return nil
}

// PendingSync is the number of writes not yet accepted by both remote tiers
func (r *Reconciler) PendingSync() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Pending returns a copy of the replay queue in order
func (r *Reconciler) Pending() []QueuedWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]QueuedWrite(nil), r.queue...)
}

func (r *Reconciler) isQueued(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.queue {
		if e.ID == id {
			return true
		}
	}
	return false
}

// SignOut drops the device copy of key once no queued write for it is left.
// Writes that still cannot reach both remote tiers keep the local record and
// fail the sign-out, so nothing made offline is lost.
func (r *Reconciler) SignOut(ctx context.Context, key domain.AccountKey) error {
	_ = r.FlushQueue(ctx)
	r.mu.Lock()
	pending := 0
	for _, e := range r.queue {
		if e.Key.AccountID == key.AccountID {
			pending++
		}
	}
	r.mu.Unlock()
	if pending > 0 {
		return fmt.Errorf("%w: %d writes for account %d not synced", domain.ErrRemoteSyncFailure, pending, key.AccountID)
	}
	r.local.Forget(key)
	return nil
}

// Subscribe registers fn to receive every record the Reconciler produces.
// The returned func removes the subscription.
func (r *Reconciler) Subscribe(fn func(domain.CachedUserRecord)) func() {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

func (r *Reconciler) broadcast(rec domain.CachedUserRecord) {
	r.mu.Lock()
	fns := make([]func(domain.CachedUserRecord), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()
	for _, fn := range fns {
		fn(rec)
	}
}
