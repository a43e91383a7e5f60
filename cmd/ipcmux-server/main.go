// Command ipcmux-server is the process-startup wrapper of §6: it sources
// configuration from NAME=value command-line arguments and uppercased
// environment variables (argument wins), then runs the router until
// interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ipcmux/ipcmux/internal/ipcserver"
	"github.com/ipcmux/ipcmux/internal/tlsconfig"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("ipcmux-server")

func main() {
	logging.SetLogLevel("*", "info")

	cfg, err := loadConfig(os.Args[1:], os.Environ())
	if err != nil {
		fmt.Fprintln(os.Stderr, "ipcmux-server:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv := ipcserver.New(cfg)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ipcmux-server: start:", err)
		os.Exit(1)
	}
	defer srv.Stop()

	log.Infof("ipcmux-server listening on %s", srv.Addr())
	notifyPM2Ready()

	<-ctx.Done()
	log.Info("shutting down")
}

// loadConfig sources values from args (NAME=value) and env (uppercased),
// with arguments winning over environment, per §6.
func loadConfig(args, env []string) (ipcserver.Config, error) {
	values := map[string]string{}
	for _, kv := range env {
		if name, val, ok := strings.Cut(kv, "="); ok {
			values[strings.ToUpper(name)] = val
		}
	}
	for _, kv := range args {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return ipcserver.Config{}, fmt.Errorf("malformed argument %q, want NAME=value", kv)
		}
		values[strings.ToUpper(name)] = val
	}

	port, err := strconv.Atoi(values["PORT"])
	if err != nil {
		return ipcserver.Config{}, fmt.Errorf("PORT is required and must be numeric: %w", err)
	}

	cfg := ipcserver.Config{
		Host:    values["HOST"],
		Port:    port,
		Token:   values["TOKEN"],
		DevMode: values["DEV_MODE"] == "1",
	}

	if raw := values["MAX_PAYLOAD"]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ipcserver.Config{}, fmt.Errorf("MAX_PAYLOAD must be numeric: %w", err)
		}
		cfg.MaxPayload = n
	}

	if values["SSL"] == "1" {
		cfg.TLS = tlsconfig.Options{
			CertPath:   values["CERT_PATH"],
			KeyPath:    values["KEY_PATH"],
			PfxPath:    values["PFX_PATH"],
			Passphrase: values["PASSPHRASE"],
		}
		if !cfg.TLS.Enabled() {
			return ipcserver.Config{}, fmt.Errorf("SSL=1 requires CERT_PATH+KEY_PATH or PFX_PATH")
		}
	}

	return cfg, nil
}
