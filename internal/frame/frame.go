// Package frame implements the text-framed control protocol peers speak
// over the streaming transport: ping/pong liveness, welcome/connect/disconnect
// service frames, and the to:/msg:/get: payload forms.
package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed is returned by ParseInbound for a frame that cannot be
// interpreted. Per-frame failures never disconnect the session — the caller
// logs and drops.
var ErrMalformed = errors.New("frame: malformed")

const (
	pingLiteral = "ping"
	pongLiteral = "pong"

	prefixTo         = "to:"
	prefixMsg        = "msg:"
	prefixGet        = "get:"
	prefixWelcome    = "welcome:"
	prefixConnect    = "connect:"
	prefixDisconnect = "disconnect:"
)

// Inbound is the result of parsing a single frame received from a peer.
type Inbound struct {
	Ping      bool
	Recipient string // empty means broadcast ("all" is a distinct literal value)
	Body      string
}

// ParseInbound applies the rules of the wire protocol: a bare "ping" is a
// liveness probe, a "to:" prefix carries an explicit recipient up to the
// first ';' with the remainder as body, and anything else is a broadcast
// whose body is the entire frame.
func ParseInbound(raw []byte) (Inbound, error) {
	if bytes.Equal(raw, []byte(pingLiteral)) {
		return Inbound{Ping: true}, nil
	}
	if bytes.HasPrefix(raw, []byte(prefixTo)) {
		rest := raw[len(prefixTo):]
		idx := bytes.IndexByte(rest, ';')
		if idx < 0 {
			return Inbound{}, fmt.Errorf("%w: to: frame missing ';' delimiter", ErrMalformed)
		}
		return Inbound{
			Recipient: string(rest[:idx]),
			Body:      string(rest[idx+1:]),
		}, nil
	}
	return Inbound{Body: string(raw)}, nil
}

// Pong returns the wire form of a liveness reply.
func Pong() []byte { return []byte(pongLiteral) }

// welcomePayload is the JSON body of a welcome: frame.
type welcomePayload struct {
	MaxPayload int `json:"maxPayload"`
}

// EncodeWelcome builds the once-per-session admission frame.
func EncodeWelcome(maxPayload int) []byte {
	b, _ := json.Marshal(welcomePayload{MaxPayload: maxPayload})
	return append([]byte(prefixWelcome), b...)
}

// EncodeConnect builds a connect: broadcast announcing a new group member.
func EncodeConnect(peerID string) []byte {
	return []byte(prefixConnect + peerID)
}

// EncodeDisconnect builds a disconnect: broadcast announcing a departed member.
func EncodeDisconnect(peerID string) []byte {
	return []byte(prefixDisconnect + peerID)
}

// EncodeMsg wraps a body for direct (non-broadcast) delivery.
func EncodeMsg(body string) []byte {
	return []byte(prefixMsg + body)
}

// EncodeGet builds the spill reference that replaces an oversized body.
func EncodeGet(slotID string) string {
	return prefixGet + slotID
}
