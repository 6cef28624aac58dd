package ws_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	wsHub "github.com/phenowatch/phenowatch/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// counterBuild returns a BuildFunc whose payload counts how often it ran.
func counterBuild() (wsHub.BuildFunc, *atomic.Int64) {
	var n atomic.Int64
	return func(context.Context) (interface{}, error) {
		return map[string]int64{"seq": n.Add(1)}, nil
	}, &n
}

// startHub starts a test HTTP server with the hub as its handler.
// The hub's Run loop is started with a cancellable context.
func startHub(t *testing.T, build wsHub.BuildFunc, interval time.Duration) (string, *wsHub.Hub, func()) {
	t.Helper()

	hub := wsHub.New(build, interval)
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeHTTP))
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

// dial connects a WebSocket client to wsURL and returns the connection.
func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateReport(t *testing.T) {
	build, _ := counterBuild()
	wsURL, _, _ := startHub(t, build, 0)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != wsHub.EventReport {
		t.Errorf("event: got %q, want report", m.Event)
	}
	data, ok := m.Data.(map[string]interface{})
	if !ok || data["seq"] == nil {
		t.Errorf("data: got %#v", m.Data)
	}
}

func TestHub_BroadcastsOnInterval(t *testing.T) {
	build, _ := counterBuild()
	wsURL, _, _ := startHub(t, build, testInterval)

	conn := dial(t, wsURL)
	first := readMessage(t, conn)
	second := readMessage(t, conn)

	a := first.Data.(map[string]interface{})["seq"].(float64)
	b := second.Data.(map[string]interface{})["seq"].(float64)
	if b <= a {
		t.Errorf("seq did not advance: %v then %v", a, b)
	}
}

func TestHub_Notify(t *testing.T) {
	build, n := counterBuild()
	wsURL, hub, _ := startHub(t, build, 0)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.Count() == 1 })

	before := n.Load()
	hub.Notify()
	m := readMessage(t, conn)
	if got := m.Data.(map[string]interface{})["seq"].(float64); int64(got) <= before {
		t.Errorf("seq after notify: got %v, want > %d", got, before)
	}
}

func TestHub_ErrorEvent(t *testing.T) {
	build := func(context.Context) (interface{}, error) {
		return nil, errors.New("week column missing")
	}
	wsURL, _, _ := startHub(t, build, 0)

	m := readMessage(t, dial(t, wsURL))
	if m.Event != wsHub.EventError {
		t.Errorf("event: got %q, want error", m.Event)
	}
	if m.Error != "week column missing" {
		t.Errorf("error: got %q", m.Error)
	}
}

func TestHub_CountTracksClients(t *testing.T) {
	build, _ := counterBuild()
	wsURL, hub, _ := startHub(t, build, 0)

	c1 := dial(t, wsURL)
	dial(t, wsURL)
	waitFor(t, func() bool { return hub.Count() == 2 })

	c1.Close()
	waitFor(t, func() bool { return hub.Count() == 1 })
}

func TestHub_CancelClosesClients(t *testing.T) {
	build, _ := counterBuild()
	wsURL, hub, cancel := startHub(t, build, 0)

	conn := dial(t, wsURL)
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.Count() == 1 })

	cancel()
	waitFor(t, func() bool { return hub.Count() == 0 })

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected read error after hub shutdown")
	}
}
