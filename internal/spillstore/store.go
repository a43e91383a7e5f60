// Package spillstore holds oversized message bodies spilled out of the
// frame-size budget, addressable by a short-lived opaque slot id.
package spillstore

import (
	"sync"
	"sync/atomic"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("spillstore")

// TTL is how long a slot survives if never retrieved.
const TTL = 60 * time.Second

type slot struct {
	payload []byte
	timer   *time.Timer
}

// Store is the Large-Message Store of §4.B: put/take/expire on opaque slot
// ids, each slot readable exactly once and for at most TTL.
type Store struct {
	mu    sync.Mutex
	slots map[string]*slot
	seq   uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{slots: make(map[string]*slot)}
}

// Put stores payload under a freshly minted slot id and schedules its expiry.
func (s *Store) Put(payload []byte) string {
	seq := atomic.AddUint64(&s.seq, 1)
	id := newSlotID(seq)

	cp := make([]byte, len(payload))
	copy(cp, payload)

	sl := &slot{payload: cp}

	s.mu.Lock()
	sl.timer = time.AfterFunc(TTL, func() { s.Expire(id) })
	s.slots[id] = sl
	s.mu.Unlock()

	log.Debugf("spilled %d bytes into slot %s", len(payload), id)
	return id
}

// Take atomically removes and returns the slot's payload. Concurrent Take
// calls for the same id result in exactly one success.
func (s *Store) Take(id string) ([]byte, bool) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if ok {
		delete(s.slots, id)
	}
	s.mu.Unlock()

	if !ok {
		return nil, false
	}
	sl.timer.Stop()
	return sl.payload, true
}

// Expire silently drops the slot if it is still present.
func (s *Store) Expire(id string) {
	s.mu.Lock()
	_, ok := s.slots[id]
	if ok {
		delete(s.slots, id)
	}
	s.mu.Unlock()
	if ok {
		log.Debugf("slot %s expired unread", id)
	}
}

// Len reports the number of currently live slots. Used by the status page.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
