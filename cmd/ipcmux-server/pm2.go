package main

import (
	"encoding/json"
	"fmt"
	"os"
)

// notifyPM2Ready sends a ready signal on the process-manager IPC channel
// when PM2's indicators are present in the environment, per §6. PM2 hands a
// child process its IPC channel as fd 3 (surfaced via NODE_CHANNEL_FD) and
// expects a single JSON message of {"type":"ready"} once the service is
// listening.
func notifyPM2Ready() {
	if os.Getenv("NODE_APP_INSTANCE") == "" && os.Getenv("pm_id") == "" {
		return
	}

	fdName := os.Getenv("NODE_CHANNEL_FD")
	if fdName == "" {
		return
	}

	var fd uintptr
	if _, err := fmt.Sscan(fdName, &fd); err != nil {
		log.Warnf("pm2 ready signal: bad NODE_CHANNEL_FD %q: %v", fdName, err)
		return
	}

	ch := os.NewFile(fd, "pm2-ipc")
	if ch == nil {
		return
	}
	defer ch.Close()

	msg, _ := json.Marshal(map[string]string{"type": "ready"})
	if _, err := ch.Write(append(msg, '\n')); err != nil {
		log.Warnf("pm2 ready signal: write failed: %v", err)
	}
}
