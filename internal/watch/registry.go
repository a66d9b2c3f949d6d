// Package watch lets screens observe cache mutations for individual items.
package watch

import (
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"

	"todosync/internal/model"
)

// Callback receives the server-canonical item after a cache mutation.
// Callbacks run synchronously with the mutation and must be quick; they
// must not block on network I/O.
type Callback func(model.Item)

// Subscription is a revocable handle for one registered callback.
type Subscription struct {
	id      uuid.UUID
	itemID  string
	revoked atomic.Bool
}

// ItemID reports which item this subscription watches.
func (s *Subscription) ItemID() string { return s.itemID }

type entry struct {
	sub *Subscription
	cb  Callback
}

// Registry dispatches item notifications to subscribers. Notify is invoked
// only by the sync controller after a cache mutation.
type Registry struct {
	mu   sync.Mutex
	subs map[string]map[uuid.UUID]entry // item id -> subscription id -> entry
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]map[uuid.UUID]entry)}
}

// Subscribe registers cb for mutations of itemID and returns its handle.
// Multiple subscriptions may watch the same item.
func (r *Registry) Subscribe(itemID string, cb Callback) *Subscription {
	sub := &Subscription{id: uuid.Must(uuid.NewV4()), itemID: itemID}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.subs[itemID]
	if !ok {
		m = make(map[uuid.UUID]entry)
		r.subs[itemID] = m
	}
	m[sub.id] = entry{sub: sub, cb: cb}
	return sub
}

// Unsubscribe revokes sub. It is idempotent and safe on nil. The revocation
// flag is set before removal, so a notification already dispatching cannot
// reach the callback afterwards.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.revoked.Store(true)
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.subs[sub.itemID]; ok {
		delete(m, sub.id)
		if len(m) == 0 {
			delete(r.subs, sub.itemID)
		}
	}
}

// Notify delivers item to every live subscriber of itemID. Revoked
// subscriptions are skipped at delivery time, so a handle torn down while a
// write was in flight never hears about its result.
func (r *Registry) Notify(itemID string, item model.Item) {
	r.mu.Lock()
	entries := make([]entry, 0, len(r.subs[itemID]))
	for _, e := range r.subs[itemID] {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	for _, e := range entries {
		if e.sub.revoked.Load() {
			continue
		}
		e.cb(item)
	}
}

// Count reports the number of live subscriptions for itemID.
func (r *Registry) Count(itemID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[itemID])
}
