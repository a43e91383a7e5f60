package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ipcmux/ipcmux/internal/audit"
	"github.com/ipcmux/ipcmux/internal/registry"
	"github.com/ipcmux/ipcmux/internal/router"
	"github.com/ipcmux/ipcmux/internal/spillstore"
)

func newTestServer(t *testing.T, token string, devMode bool) (*httptest.Server, *Listener) {
	t.Helper()

	reg := registry.New()
	store := spillstore.New()
	rt := router.New(reg, store, 50)
	al, err := audit.Open(":memory:")
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { al.Close() })

	l, err := New(rt, reg, store, al, Config{Token: token, DevMode: devMode})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	srv := httptest.NewServer(l.Mux())
	t.Cleanup(srv.Close)
	return srv, l
}

func dialGroup(t *testing.T, srv *httptest.Server, group, id, version, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/" + group + "/connect?id=" + id + "&v=" + version + "&t=" + token
	return websocket.DefaultDialer.Dial(wsURL, nil)
}

func TestHandshakeOkReceivesWelcome(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	conn, resp, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v (status %v)", err, resp)
	}
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `welcome:{"maxPayload":50}` {
		t.Fatalf("welcome = %q", msg)
	}
}

func TestHandshakeRejectedBadVersion(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	_, resp, err := dialGroup(t, srv, "mydb", "client1", "2.0.0", "s")
	if err == nil {
		t.Fatal("expected dial to fail on rejected handshake")
	}
	if resp == nil {
		t.Fatal("expected an HTTP response on rejection")
	}
	if !strings.HasPrefix(resp.Status, "409 Unsupported client IPC version \"2.0.0\"") {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestHandshakeRejectedBadToken(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	_, resp, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "wrong")
	if err == nil {
		t.Fatal("expected dial to fail on bad token")
	}
	if !strings.HasPrefix(resp.Status, "403 Unauthorized") {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestHandshakeRejectedShortID(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	_, resp, err := dialGroup(t, srv, "mydb", "ab", "1.0.0", "s")
	if err == nil {
		t.Fatal("expected dial to fail on short id")
	}
	if !strings.HasPrefix(resp.Status, "500 Invalid IPC client id \"ab\"") {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestDirectDeliveryOverWebsocket(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	c1, _, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial client1: %v", err)
	}
	defer c1.Close()
	drainOne(t, c1) // welcome

	c2, _, err := dialGroup(t, srv, "mydb", "client2", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial client2: %v", err)
	}
	defer c2.Close()
	drainOne(t, c2) // welcome
	drainOne(t, c1) // connect:client2

	if err := c1.WriteMessage(websocket.TextMessage, []byte("to:client2;hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, msg := readWithTimeout(t, c2)
	if string(msg) != "msg:hello" {
		t.Fatalf("client2 got %q", msg)
	}
}

func TestClientsEndpointListsConnectedPeers(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	c1, _, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c1.Close()
	drainOne(t, c1)

	// Give the server a moment to finish registering before we poll it.
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Get(srv.URL + "/mydb/clients")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var got []clientInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "client1" {
		t.Fatalf("unexpected clients list: %+v", got)
	}
}

func TestReceiveAfterSpillThenNotFound(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	c1, _, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c1.Close()
	drainOne(t, c1)

	c2, _, err := dialGroup(t, srv, "mydb", "client2", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c2.Close()
	drainOne(t, c2)
	drainOne(t, c1)

	big := strings.Repeat("x", 200)
	if err := c1.WriteMessage(websocket.TextMessage, []byte("to:client2;"+big)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, msg := readWithTimeout(t, c2)
	if !strings.HasPrefix(string(msg), "msg:get:") {
		t.Fatalf("expected spill reference, got %q", msg)
	}
	slotID := strings.TrimPrefix(string(msg), "msg:get:")

	resp, err := http.Get(srv.URL + "/mydb/receive?id=client2&msg=" + slotID + "&t=s")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != big {
		t.Fatalf("unexpected receive response: %d %q", resp.StatusCode, body)
	}

	resp2, err := http.Get(srv.URL + "/mydb/receive?id=client2&msg=" + slotID + "&t=s")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 on second read, got %d", resp2.StatusCode)
	}
}

func TestSendPostInjectsFrame(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	c1, _, err := dialGroup(t, srv, "mydb", "client1", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c1.Close()
	drainOne(t, c1)

	c2, _, err := dialGroup(t, srv, "mydb", "client2", "1.0.0", "s")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c2.Close()
	drainOne(t, c2)
	drainOne(t, c1)

	resp, err := http.Post(srv.URL+"/mydb/send?id=client1&t=s", "text/plain", strings.NewReader("to:client2;via-http"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != "ok" {
		t.Fatalf("unexpected send response: %d %q", resp.StatusCode, body)
	}

	_, msg := readWithTimeout(t, c2)
	if string(msg) != "msg:via-http" {
		t.Fatalf("client2 got %q", msg)
	}
}

func TestSendGetDisabledOutsideDevMode(t *testing.T) {
	srv, _ := newTestServer(t, "s", false)

	resp, err := http.Get(srv.URL + "/mydb/send?id=client1&t=s&msg=hi")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
}

func TestStatusAndDocsPagesRender(t *testing.T) {
	srv, _ := newTestServer(t, "", false)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("get /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || !strings.Contains(string(body), "ipcmux") {
		t.Fatalf("unexpected status page: %d %q", resp.StatusCode, body)
	}

	resp2, err := http.Get(srv.URL + "/docs")
	if err != nil {
		t.Fatalf("get /docs: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()
	if resp2.StatusCode != 200 || !strings.Contains(string(body2), "<h1") {
		t.Fatalf("unexpected docs page: %d %q", resp2.StatusCode, body2)
	}
}

func drainOne(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_, _ = readWithTimeout(t, c)
}

func readWithTimeout(t *testing.T, c *websocket.Conn) (int, []byte) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return mt, msg
}
