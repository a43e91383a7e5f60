// Package httpapi — swaggo annotation stubs.
// Each function below is a documentation stub only; the real handler logic
// lives in the methods registered on Listener.Mux(). Run `swag init` from the
// project root to regenerate ./docs/ from these annotations.
package httpapi

// clientInfoDoc mirrors the clients response element shape.
type clientInfoDoc struct {
	ID        string `json:"id" example:"client1"`
	Connected int64  `json:"connected" example:"1690000000000"`
}

// auditEventDoc mirrors audit.Event for swag's response model inference.
type auditEventDoc struct {
	ID     string `json:"id" example:"6ba7b810-9dad-11d1-80b4-00c04fd430c8"`
	Group  string `json:"group" example:"mydb"`
	PeerID string `json:"peer_id" example:"client1"`
	Kind   string `json:"kind" example:"connect"`
	At     string `json:"at" example:"2026-08-03T12:00:00Z"`
	Detail string `json:"detail,omitempty"`
}

// swagConnect godoc
// @Summary      Upgrade to the streaming transport
// @Description  Validates version, id, and token, then upgrades to a websocket peer session.
// @Tags         ipc
// @Param        group path string true "database group name"
// @Param        id query string true "peer id, >=5 chars"
// @Param        v query string true "peer semantic version, major must be 1"
// @Param        t query string false "auth token, if configured"
// @Success      101 {string} string "Switching Protocols"
// @Failure      409 {string} string "Unsupported client IPC version"
// @Failure      500 {string} string "Invalid IPC client id"
// @Failure      403 {string} string "Unauthorized"
// @Router       /{group}/connect [get]
func swagConnect() {}

// swagClients godoc
// @Summary      List connected peers
// @Tags         ipc
// @Param        group path string true "database group name"
// @Success      200 {array} clientInfoDoc
// @Router       /{group}/clients [get]
func swagClients() {}

// swagSend godoc
// @Summary      Inject a sideband frame
// @Description  Body is treated identically to an inbound streaming-transport frame.
// @Tags         ipc
// @Param        group path string true "database group name"
// @Param        id query string true "sender peer id"
// @Param        t query string false "auth token, if configured"
// @Success      200 {string} string "ok"
// @Failure      401 {string} string "Unauthorized"
// @Router       /{group}/send [post]
func swagSend() {}

// swagReceive godoc
// @Summary      Fetch a spilled large-message slot
// @Tags         ipc
// @Param        group path string true "database group name"
// @Param        msg query string true "slot id"
// @Param        t query string false "auth token, if configured"
// @Success      200 {string} string "raw payload"
// @Failure      404 {string} string "Not Found"
// @Router       /{group}/receive [get]
func swagReceive() {}

// swagAudit godoc
// @Summary      Recent connection lifecycle events for a group
// @Tags         ipc
// @Param        group path string true "database group name"
// @Param        limit query int false "max rows, default 100"
// @Param        t query string false "auth token, if configured"
// @Success      200 {array} auditEventDoc
// @Failure      401 {string} string "Unauthorized"
// @Router       /{group}/audit [get]
func swagAudit() {}
