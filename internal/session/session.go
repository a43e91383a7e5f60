// Package session models one connected peer: its chosen identity, its
// transport handle, and the single-writer send path described in §4.D.
package session

import (
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("session")

// Transport is the minimal surface a streaming connection must provide. The
// HTTP sideband has no Transport of its own: it injects frames on behalf of
// the sender's registered Peer. Send reports whether the
// write was accepted without the transport reporting back-pressure; it is
// never retried here — the transport itself buffers up to its own limit and
// closes the connection beyond that, per §4.D/§5.
type Transport interface {
	Send(b []byte) bool
	Close()
}

// Peer is one connected participant, unique within (group, id) at any
// instant the registry observes it.
type Peer struct {
	id          string
	group       string
	version     string
	connectedAt time.Time
	transport   Transport
}

// New creates a Peer bound to transport. connectedAt is assigned here, at
// admission time, per §3.
func New(id, group, version string, transport Transport) *Peer {
	return &Peer{
		id:          id,
		group:       group,
		version:     version,
		connectedAt: time.Now(),
		transport:   transport,
	}
}

func (p *Peer) ID() string             { return p.id }
func (p *Peer) Group() string          { return p.group }
func (p *Peer) Version() string        { return p.version }
func (p *Peer) ConnectedAt() time.Time { return p.connectedAt }

// Send delegates to the transport. A reported back-pressure condition is
// logged and otherwise ignored — the session never reorders or retries.
func (p *Peer) Send(b []byte) {
	if ok := p.transport.Send(b); !ok {
		log.Warnf("back-pressure sending to peer %s in group %s", p.id, p.group)
	}
}

// Close tears down the underlying transport. Idempotent by convention of the
// Transport implementations used here.
func (p *Peer) Close() {
	p.transport.Close()
}
