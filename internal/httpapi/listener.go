// Package httpapi implements the Transport Listener of §4.F: the streaming
// upgrade handshake and the HTTP sideband endpoints (clients/send/receive),
// plus the operator-facing docs and status routes.
package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ipcmux/ipcmux/internal/audit"
	"github.com/ipcmux/ipcmux/internal/docspage"
	"github.com/ipcmux/ipcmux/internal/registry"
	"github.com/ipcmux/ipcmux/internal/router"
	"github.com/ipcmux/ipcmux/internal/session"
	"github.com/ipcmux/ipcmux/internal/spillstore"
	"github.com/ipcmux/ipcmux/internal/statuspage"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("httpapi")

// maxSendBodyBytes bounds the untrusted POST /send request body, per §9's
// open question: the source enforces no such cap.
const maxSendBodyBytes = 8 << 20

// Listener wires the router, registry, store, and optional audit log to
// net/http handlers, and owns the websocket upgrade.
type Listener struct {
	reg     *registry.Registry
	store   *spillstore.Store
	rt      *router.Router
	auditLg *audit.Log

	token   string
	devMode bool

	upgrader websocket.Upgrader
	docs     *docspage.Page
	started  time.Time
}

// Config holds the construction-time options a Listener needs beyond the
// core engine it wraps.
type Config struct {
	Token   string
	DevMode bool
}

// New creates a Listener. It loads the embedded protocol documentation once;
// a failure there is a startup error since /docs is an advertised route.
func New(rt *router.Router, reg *registry.Registry, store *spillstore.Store, auditLg *audit.Log, cfg Config) (*Listener, error) {
	page, err := docspage.Load()
	if err != nil {
		return nil, fmt.Errorf("httpapi: load docs: %w", err)
	}

	l := &Listener{
		reg:     reg,
		store:   store,
		rt:      rt,
		auditLg: auditLg,
		token:   cfg.Token,
		devMode: cfg.DevMode,
		docs:    page,
		started: time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Peers here are sibling database processes, not browsers; there
			// is no cross-origin concern to police.
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}

	rt.SetAuditHooks(
		func(group, id string) { auditLg.Record(group, id, audit.KindConnect, "") },
		func(group, id string) { auditLg.Record(group, id, audit.KindDisconnect, "") },
		func(group, id string) { auditLg.Record(group, id, audit.KindEvict, "") },
		func(group, id, slotID string) { auditLg.Record(group, id, audit.KindSpill, slotID) },
	)

	return l, nil
}

// Mux builds the complete route table.
func (l *Listener) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{group}/connect", l.handleConnect)
	mux.HandleFunc("GET /{group}/clients", l.handleClients)
	mux.HandleFunc("POST /{group}/send", l.handleSendPost)
	mux.HandleFunc("GET /{group}/send", l.handleSendGet)
	mux.HandleFunc("GET /{group}/receive", l.handleReceive)
	mux.HandleFunc("GET /{group}/audit", l.handleAudit)
	mux.HandleFunc("GET /docs", l.handleDocs)
	mux.HandleFunc("GET /", l.handleStatus)

	return mux
}

func (l *Listener) tokenOK(q map[string][]string) bool {
	if l.token == "" {
		return true
	}
	vals, ok := q["t"]
	return ok && len(vals) > 0 && vals[0] == l.token
}

// handleConnect implements the HANDSHAKE state of §4.E's state machine.
func (l *Listener) handleConnect(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	q := r.URL.Query()
	id := q.Get("id")
	v := q.Get("v")

	if !l.tokenOK(q) {
		writeRejection(w, "403 Unauthorized")
		return
	}
	if !isVersion1(v) {
		writeRejection(w, fmt.Sprintf("409 Unsupported client IPC version %q", v))
		return
	}
	if len(id) < 5 {
		writeRejection(w, fmt.Sprintf("500 Invalid IPC client id %q", id))
		return
	}

	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("upgrade failed for %s/%s: %v", group, id, err)
		return
	}
	// §3 distinguishes the transport's own inbound frame ceiling (left at the
	// websocket library's default, which imposes no limit — not wired to
	// SetReadLimit(maxPayload) here, since §8 scenario 5 requires a peer to
	// be able to *send* a frame well above maxPayload and have the router
	// spill it on forward, not have the transport reject it outright) from
	// the router's forwarding-time spill threshold enforced in Router.

	transport := newWSTransport(conn)
	peer := session.New(id, group, v, transport)

	l.reg.Ensure(group)
	l.rt.Admit(group, peer)

	go l.readLoop(group, peer, conn, transport)
}

// readLoop pumps inbound frames until the connection closes, then drives the
// ACTIVE -> REMOVED transition.
func (l *Listener) readLoop(group string, peer *session.Peer, conn *websocket.Conn, transport *wsTransport) {
	defer func() {
		l.rt.Depart(group, peer)
		transport.Close()
	}()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			// Binary frames on the streaming transport are silently dropped.
			continue
		}
		l.rt.HandleIncoming(group, peer, msg)
	}
}

// isVersion1 reports whether v's major component is the literal "1".
func isVersion1(v string) bool {
	major, _, _ := strings.Cut(v, ".")
	return major == "1"
}

type clientInfo struct {
	ID        string `json:"id"`
	Connected int64  `json:"connected"`
}

func (l *Listener) handleClients(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	peers := l.reg.List(group)

	out := make([]clientInfo, 0, len(peers))
	for _, ph := range peers {
		p, ok := ph.(*session.Peer)
		if !ok {
			continue
		}
		out = append(out, clientInfo{ID: p.ID(), Connected: p.ConnectedAt().UnixMilli()})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(out)
}

func (l *Listener) handleSendPost(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	q := r.URL.Query()

	peer, ok := l.senderOrUnauthorized(w, group, q.Get("id"), q)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxSendBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "413 Payload Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	l.rt.HandleIncoming(group, peer, body)
	_, _ = w.Write([]byte("ok"))
}

// handleSendGet is the GET-query variant of send, gated on dev mode per
// §4.F and §9's open question about the source's environment sniff.
func (l *Listener) handleSendGet(w http.ResponseWriter, r *http.Request) {
	if !l.devMode {
		http.Error(w, "405 Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	group := r.PathValue("group")
	q := r.URL.Query()

	peer, ok := l.senderOrUnauthorized(w, group, q.Get("id"), q)
	if !ok {
		return
	}

	l.rt.HandleIncoming(group, peer, []byte(q.Get("msg")))
	_, _ = w.Write([]byte("ok"))
}

func (l *Listener) senderOrUnauthorized(w http.ResponseWriter, group, id string, q map[string][]string) (*session.Peer, bool) {
	if !l.tokenOK(q) {
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	ph, ok := l.reg.FindByID(group, id)
	if !ok {
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	peer, ok := ph.(*session.Peer)
	if !ok {
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return peer, true
}

func (l *Listener) handleReceive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if !l.tokenOK(q) {
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return
	}

	payload, ok := l.store.Take(q.Get("msg"))
	if !ok {
		http.Error(w, "404 Not Found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(payload)
}

func (l *Listener) handleAudit(w http.ResponseWriter, r *http.Request) {
	group := r.PathValue("group")
	if !l.tokenOK(r.URL.Query()) {
		http.Error(w, "401 Unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := l.auditLg.Recent(group, limit)
	if err != nil {
		http.Error(w, "500 Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(events)
}

func (l *Listener) handleDocs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, string(l.docs.HTML))
}

func (l *Listener) handleStatus(w http.ResponseWriter, r *http.Request) {
	names := l.reg.GroupNames()
	summaries := make([]statuspage.GroupSummary, 0, len(names))
	for _, name := range names {
		summaries = append(summaries, statuspage.GroupSummary{
			Name:      name,
			PeerCount: len(l.reg.List(name)),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, statuspage.Render(summaries, l.store.Len()))
}

// writeRejection emits statusLine as the literal HTTP status line, byte-exact,
// since peers parse the reason phrase rather than just the numeric code.
// net/http's ResponseWriter cannot set an arbitrary reason phrase, so the
// connection is hijacked to write the raw response line directly.
func writeRejection(w http.ResponseWriter, statusLine string) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		code := statusCode(statusLine)
		http.Error(w, statusLine, code)
		return
	}

	conn, bufrw, err := hj.Hijack()
	if err != nil {
		code := statusCode(statusLine)
		http.Error(w, statusLine, code)
		return
	}
	defer conn.Close()

	_, _ = bufrw.WriteString("HTTP/1.1 " + statusLine + "\r\nConnection: close\r\n\r\n")
	_ = bufrw.Flush()
}

func statusCode(statusLine string) int {
	fields := strings.Fields(statusLine)
	if len(fields) == 0 {
		return http.StatusBadRequest
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return http.StatusBadRequest
	}
	return n
}
