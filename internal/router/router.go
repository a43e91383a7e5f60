// Package router implements the central dispatch routine of §4.E: frame
// parsing, direct/broadcast recipient resolution, and the spill-to-store
// fallback for oversized bodies.
package router

import (
	"bytes"

	"github.com/ipcmux/ipcmux/internal/frame"
	"github.com/ipcmux/ipcmux/internal/registry"
	"github.com/ipcmux/ipcmux/internal/session"
	"github.com/ipcmux/ipcmux/internal/spillstore"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("router")

// recipientAll is the literal recipient value meaning "every other peer in
// the group, delivered individually" — identical in effect to the empty
// (broadcast) case, kept only for testing per §4.E.
const recipientAll = "all"

// Router ties the group registry and the large-message store together and
// implements handleIncoming.
type Router struct {
	reg        *registry.Registry
	store      *spillstore.Store
	maxPayload int

	onAdmit  func(group, id string)
	onDepart func(group, id string)
	onEvict  func(group, id string)
	onSpill  func(group, id, slotID string)
}

// New creates a Router bound to reg and store, spilling bodies whose length
// (after prefix handling) exceeds maxPayload.
func New(reg *registry.Registry, store *spillstore.Store, maxPayload int) *Router {
	return &Router{reg: reg, store: store, maxPayload: maxPayload}
}

// MaxPayload returns the configured spill threshold.
func (r *Router) MaxPayload() int { return r.maxPayload }

// SetAuditHooks wires optional observers invoked after admission, departure,
// duplicate-id eviction, and spill. Any of the four may be nil. Hooks run
// synchronously on the calling goroutine, after the corresponding state
// change has taken effect.
func (r *Router) SetAuditHooks(onAdmit, onDepart, onEvict func(group, id string), onSpill func(group, id, slotID string)) {
	r.onAdmit = onAdmit
	r.onDepart = onDepart
	r.onEvict = onEvict
	r.onSpill = onSpill
}

// Admit registers p into group, sends its welcome frame, and announces it
// to the group's existing peers. Mirrors the ADMITTED -> ACTIVE transition
// of §4.E's state machine.
//
// If p's id collides with an already-registered peer, registry.Add evicts
// the incumbent (closing its transport) and returns it here; per §4.E's
// duplicate-id eviction and §8 scenario 6, that eviction itself must be
// observable to the rest of the group as a disconnect:<id> broadcast — the
// incumbent's own close event later finds no matching registry entry and is
// a no-op, so this is the only place that broadcast can originate.
func (r *Router) Admit(group string, p *session.Peer) {
	evicted := r.reg.Add(group, p)
	if evicted != nil {
		r.broadcastRaw(group, frame.EncodeDisconnect(evicted.ID()), p)
		if r.onEvict != nil {
			r.onEvict(group, evicted.ID())
		}
	}

	p.Send(frame.EncodeWelcome(r.maxPayload))
	r.broadcastRaw(group, frame.EncodeConnect(p.ID()), p)
	if r.onAdmit != nil {
		r.onAdmit(group, p.ID())
	}
}

// Depart unlinks p from group and, only if it was actually still registered
// (idempotent with respect to repeated close events on the same transport),
// announces its departure.
func (r *Router) Depart(group string, p *session.Peer) {
	if r.reg.Remove(group, p) {
		r.broadcastRaw(group, frame.EncodeDisconnect(p.ID()), nil)
		if r.onDepart != nil {
			r.onDepart(group, p.ID())
		}
	}
}

// HandleIncoming implements the routine of §4.E.
func (r *Router) HandleIncoming(group string, sender *session.Peer, raw []byte) {
	if bytes.Equal(raw, []byte("ping")) {
		sender.Send(frame.Pong())
		return
	}

	in, err := frame.ParseInbound(raw)
	if err != nil {
		log.Warnf("dropping malformed frame from %s/%s: %v", group, sender.ID(), err)
		return
	}

	body := in.Body
	if len(body) > r.maxPayload {
		slotID := r.store.Put([]byte(body))
		body = frame.EncodeGet(slotID)
		if r.onSpill != nil {
			r.onSpill(group, sender.ID(), slotID)
		}
	}

	switch in.Recipient {
	case "":
		r.dispatchBroadcast(group, sender, body)
	case recipientAll:
		r.dispatchAll(group, sender, body)
	default:
		r.dispatchDirect(group, in.Recipient, body)
	}
}

// dispatchBroadcast delivers body unprefixed to every peer in group except
// sender, mirroring the native publish/subscribe fan-out the wire peers
// would otherwise join.
func (r *Router) dispatchBroadcast(group string, sender *session.Peer, body string) {
	if !r.reg.Has(group, sender) {
		log.Warnf("broadcast from unregistered sender %s/%s dropped", group, sender.ID())
		return
	}
	r.broadcastRaw(group, []byte(body), sender)
}

// dispatchAll is behaviorally equivalent to dispatchBroadcast but delivers
// individually with a msg: prefix, per §4.E's testing-only "all" recipient.
func (r *Router) dispatchAll(group string, sender *session.Peer, body string) {
	if !r.reg.Has(group, sender) {
		log.Warnf("broadcast from unregistered sender %s/%s dropped", group, sender.ID())
		return
	}
	framed := frame.EncodeMsg(body)
	for _, ph := range r.reg.List(group) {
		if ph.ID() == sender.ID() {
			continue
		}
		if peer, ok := ph.(*session.Peer); ok {
			peer.Send(framed)
		}
	}
}

// dispatchDirect delivers body, msg:-prefixed, to the single named
// recipient. Zero peers match when the id is unknown — a silent no-op.
func (r *Router) dispatchDirect(group, recipient, body string) {
	ph, ok := r.reg.FindByID(group, recipient)
	if !ok {
		return
	}
	peer, ok := ph.(*session.Peer)
	if !ok {
		return
	}
	peer.Send(frame.EncodeMsg(body))
}

// broadcastRaw sends raw to every peer in group except the optionally-given
// sender. Used for connect:/disconnect: service frames and for unprefixed
// broadcast delivery.
func (r *Router) broadcastRaw(group string, raw []byte, except *session.Peer) {
	for _, ph := range r.reg.List(group) {
		if except != nil && ph.ID() == except.ID() {
			continue
		}
		if peer, ok := ph.(*session.Peer); ok {
			peer.Send(raw)
		}
	}
}
