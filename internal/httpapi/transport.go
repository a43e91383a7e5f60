package httpapi

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// softBackpressureBytes and hardBackpressureBytes bound the outbound queue
// of one streaming connection, per §4.D/§5: beyond the soft limit Send keeps
// accepting but reports back-pressure; beyond the hard limit the transport
// closes itself.
const (
	softBackpressureBytes = 1 << 20
	hardBackpressureBytes = 2 * softBackpressureBytes

	writeTimeout = 10 * time.Second
)

// wsTransport implements session.Transport over a gorilla/websocket
// connection. Writes are serialized through a single background goroutine so
// that concurrent Send calls from the router never race on the same
// connection (gorilla/websocket permits only one writer at a time).
type wsTransport struct {
	conn *websocket.Conn

	queued    int64 // atomic: bytes currently enqueued but not yet written
	closed    atomic.Bool
	closeOnce sync.Once
	outbound  chan []byte
	done      chan struct{}
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{
		conn:     conn,
		outbound: make(chan []byte, 256),
		done:     make(chan struct{}),
	}
	go t.writeLoop()
	return t
}

func (t *wsTransport) writeLoop() {
	defer close(t.done)
	for b := range t.outbound {
		atomic.AddInt64(&t.queued, -int64(len(b)))
		if t.closed.Load() {
			continue
		}
		_ = t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := t.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			t.Close()
		}
	}
}

// Send enqueues b for delivery and reports whether the transport is still
// under its soft back-pressure limit. It never blocks the caller on the
// network write itself.
func (t *wsTransport) Send(b []byte) bool {
	if t.closed.Load() {
		return false
	}

	n := atomic.AddInt64(&t.queued, int64(len(b)))
	if n > hardBackpressureBytes {
		atomic.AddInt64(&t.queued, -int64(len(b)))
		t.Close()
		return false
	}

	select {
	case t.outbound <- b:
	default:
		atomic.AddInt64(&t.queued, -int64(len(b)))
		t.Close()
		return false
	}

	return n <= softBackpressureBytes
}

// Close tears down the connection and stops the write loop. Safe to call
// more than once and from more than one goroutine.
func (t *wsTransport) Close() {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.outbound)
		_ = t.conn.Close()
	})
}
