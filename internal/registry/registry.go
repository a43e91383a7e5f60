// Package registry implements the per-group peer registry of §4.C: one
// ordered peer set per group name, with evict-on-duplicate-id admission.
package registry

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("registry")

// PeerHandle is the minimal surface the registry needs from a session in
// order to enforce the unique-id invariant and drive duplicate-id eviction.
// session.Peer implements this.
type PeerHandle interface {
	ID() string
	Close()
}

// Registry maps group name to an ordered sequence of peers.
type Registry struct {
	mu     sync.Mutex
	groups map[string][]PeerHandle
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{groups: make(map[string][]PeerHandle)}
}

// Ensure creates the group entry if it does not already exist. Safe to call
// redundantly.
func (r *Registry) Ensure(group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[group]; !ok {
		r.groups[group] = []PeerHandle{}
	}
}

// Add admits p into group. If a peer with the same id is already present,
// it is atomically replaced in place and its Close is invoked — the caller
// never observes two peers with the same (group, id) between these two
// events, even though the incumbent's transport has not yet finished
// closing. Returns the evicted peer, or nil if this was a fresh id.
func (r *Registry) Add(group string, p PeerHandle) PeerHandle {
	r.mu.Lock()
	list := r.groups[group]

	var evicted PeerHandle
	idx := -1
	for i, q := range list {
		if q.ID() == p.ID() {
			idx = i
			break
		}
	}
	if idx >= 0 {
		evicted = list[idx]
		list[idx] = p
	} else {
		list = append(list, p)
	}
	r.groups[group] = list
	r.mu.Unlock()

	if evicted != nil {
		log.Infof("group %s: evicting duplicate id %s", group, p.ID())
		evicted.Close()
	}
	return evicted
}

// Remove unlinks p from group by identity, not by id — a close event for a
// peer that has already been superseded by a duplicate-id admission finds
// no matching entry and is a no-op. Returns whether anything was removed.
func (r *Registry) Remove(group string, p PeerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.groups[group]
	for i, q := range list {
		if q == p {
			r.groups[group] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// FindByID returns the current peer registered under id in group, if any.
func (r *Registry) FindByID(group, id string) (PeerHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, q := range r.groups[group] {
		if q.ID() == id {
			return q, true
		}
	}
	return nil, false
}

// List returns a snapshot of group's current peers in insertion order.
// Delivery order across the result is not itself a guarantee — callers must
// not depend on it beyond what §5 promises.
func (r *Registry) List(group string) []PeerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	src := r.groups[group]
	out := make([]PeerHandle, len(src))
	copy(out, src)
	return out
}

// Has reports whether p is the entry currently registered for its own id —
// used by the router to detect a sender that has been evicted or never
// registered before treating a frame as coming from a live group member.
func (r *Registry) Has(group string, p PeerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.groups[group] {
		if q == p {
			return true
		}
	}
	return false
}

// GroupNames returns a snapshot of known group names, including empty ones
// left behind by the last departing peer (§9: pruning is not required).
func (r *Registry) GroupNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.groups))
	for name := range r.groups {
		out = append(out, name)
	}
	return out
}
