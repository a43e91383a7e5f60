// Package ipcserver wires the Frame Codec, Large-Message Store, Group
// Registry, Router, and Transport Listener together into one bindable
// server, per §4.G: start/stop lifecycle, ready/error signaling, and
// teardown of every active session on shutdown.
package ipcserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ipcmux/ipcmux/internal/audit"
	"github.com/ipcmux/ipcmux/internal/httpapi"
	"github.com/ipcmux/ipcmux/internal/registry"
	"github.com/ipcmux/ipcmux/internal/router"
	"github.com/ipcmux/ipcmux/internal/spillstore"
	"github.com/ipcmux/ipcmux/internal/tlsconfig"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ipcserver")

// defaultMaxPayload is the §3 default for the streaming-transport frame
// budget when Config.MaxPayload is left at zero.
const defaultMaxPayload = 16384

// Config is the immutable-after-construction configuration surface of §3.
type Config struct {
	Host string
	Port int

	MaxPayload int
	Token      string
	DevMode    bool

	TLS tlsconfig.Options

	// AuditPath is the SQLite database path for the connection audit log.
	// Empty means an in-memory, process-lifetime-only log.
	AuditPath string
}

// Server owns exactly one Group Registry and one Large-Message Store, per
// §4.G, and the HTTP listener that fronts them.
type Server struct {
	cfg Config

	reg   *registry.Registry
	store *spillstore.Store
	rt    *router.Router
	audit *audit.Log

	tlsMgr *tlsconfig.Manager
	httpSrv *http.Server
	ln      net.Listener
}

// New constructs a Server without binding anything yet.
func New(cfg Config) *Server {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = defaultMaxPayload
	}
	return &Server{cfg: cfg}
}

// Start binds the listener and resolves once the socket is bound, per §4.G.
// Serving continues in the background until ctx is cancelled or Stop is
// called.
func (s *Server) Start(ctx context.Context) error {
	auditPath := s.cfg.AuditPath
	if auditPath == "" {
		auditPath = ":memory:"
	}
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		return fmt.Errorf("ipcserver: open audit log: %w", err)
	}
	s.audit = auditLog

	s.reg = registry.New()
	s.store = spillstore.New()
	s.rt = router.New(s.reg, s.store, s.cfg.MaxPayload)

	listener, err := httpapi.New(s.rt, s.reg, s.store, s.audit, httpapi.Config{
		Token:   s.cfg.Token,
		DevMode: s.cfg.DevMode,
	})
	if err != nil {
		return fmt.Errorf("ipcserver: build listener: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           listener.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if s.cfg.TLS.Enabled() {
		mgr, err := tlsconfig.New(s.cfg.TLS)
		if err != nil {
			return fmt.Errorf("ipcserver: load TLS material: %w", err)
		}
		s.tlsMgr = mgr
		s.httpSrv.TLSConfig = mgr.Config()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ipcserver: bind %s: %w", addr, err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	go func() {
		var serveErr error
		if s.cfg.TLS.Enabled() {
			serveErr = s.httpSrv.ServeTLS(ln, "", "")
		} else {
			serveErr = s.httpSrv.Serve(ln)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.Errorf("serve error: %v", serveErr)
		}
	}()

	log.Infof("listening on %s (tls=%v)", addr, s.cfg.TLS.Enabled())
	return nil
}

// Addr reports the bound address. Only meaningful after Start succeeds.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener and every active session, triggering the normal
// disconnect broadcasts, per §4.G. Safe to call more than once.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.httpSrv.Shutdown(shCtx)

	if s.reg != nil {
		for _, group := range s.reg.GroupNames() {
			for _, peer := range s.reg.List(group) {
				peer.Close()
			}
		}
	}

	if s.tlsMgr != nil {
		_ = s.tlsMgr.Close()
	}
	if s.audit != nil {
		_ = s.audit.Close()
	}

	return nil
}

// tlsConfigForDial is used only by tests that need to dial this server over
// TLS with certificate verification disabled.
func tlsConfigForDial() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
