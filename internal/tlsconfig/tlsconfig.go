// Package tlsconfig builds the *tls.Config for both the streaming transport
// and the HTTP sideband from §3's ssl.{certPath,keyPath,pfxPath,passphrase}
// configuration, and hot-reloads the certificate when its backing file
// changes on disk.
package tlsconfig

import (
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	logging "github.com/ipfs/go-log/v2"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var log = logging.Logger("tlsconfig")

// Options mirrors the ssl.* configuration options of §3.
type Options struct {
	CertPath   string
	KeyPath    string
	PfxPath    string
	Passphrase string
}

// Enabled reports whether any TLS material was configured.
func (o Options) Enabled() bool {
	return o.PfxPath != "" || (o.CertPath != "" && o.KeyPath != "")
}

// Manager serves the current certificate to net/http and net/tls via
// GetCertificate, reloading it whenever its source file is rewritten.
type Manager struct {
	opts    Options
	current atomic.Pointer[tls.Certificate]
	watcher *fsnotify.Watcher
	done    chan struct{}
	once    sync.Once
}

// New loads the initial certificate and starts a watcher on its source
// file(s). Call Close to stop the watcher.
func New(opts Options) (*Manager, error) {
	cert, err := loadCertificate(opts)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: create watcher: %w", err)
	}
	for _, f := range watchedFiles(opts) {
		if err := watcher.Add(f); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("tlsconfig: watch %s: %w", f, err)
		}
	}

	m := &Manager{opts: opts, watcher: watcher, done: make(chan struct{})}
	m.current.Store(cert)

	go m.watch()
	return m, nil
}

// Config returns a *tls.Config whose GetCertificate always serves the
// most recently loaded certificate.
func (m *Manager) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return m.current.Load(), nil
		},
		MinVersion: tls.VersionTLS12,
	}
}

// Close stops the file watcher. Calls after the first are no-ops.
func (m *Manager) Close() error {
	var err error
	m.once.Do(func() {
		close(m.done)
		err = m.watcher.Close()
	})
	return err
}

func (m *Manager) watch() {
	for {
		select {
		case <-m.done:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cert, err := loadCertificate(m.opts)
			if err != nil {
				log.Warnf("reload certificate after %s: %v", ev.Name, err)
				continue
			}
			m.current.Store(cert)
			log.Infof("reloaded TLS certificate after change to %s", ev.Name)
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("tls watcher error: %v", err)
		}
	}
}

func watchedFiles(opts Options) []string {
	if opts.PfxPath != "" {
		return []string{opts.PfxPath}
	}
	return []string{opts.CertPath, opts.KeyPath}
}

func loadCertificate(opts Options) (*tls.Certificate, error) {
	if opts.PfxPath != "" {
		return loadPfx(opts.PfxPath, opts.Passphrase)
	}
	cert, err := tls.LoadX509KeyPair(opts.CertPath, opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: load key pair: %w", err)
	}
	return &cert, nil
}

func loadPfx(path, passphrase string) (*tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: read pfx: %w", err)
	}

	key, leaf, cas, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("tlsconfig: decode pfx: %w", err)
	}

	chain := make([][]byte, 0, 1+len(cas))
	chain = append(chain, leaf.Raw)
	for _, ca := range cas {
		chain = append(chain, ca.Raw)
	}

	return &tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}
