package notify //nolint:testpackage // internal white-box tests need access to unexported fields

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hive/pkg/bus"
	"hive/pkg/protocol"
)

const testKey = "hunter2"

func newTestServer(t *testing.T) (*Server, *bus.Bus, string) {
	t.Helper()
	eventBus := bus.New()
	s := NewServer(Config{
		PresharedKey: testKey,
		PingInterval: 50 * time.Millisecond,
		PongWait:     time.Second,
	}, eventBus)
	s.logf = t.Logf

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	return s, eventBus, wsURL
}

func dial(t *testing.T, rawURL string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(rawURL, header)
	if err != nil {
		t.Fatalf("dial %s: %v", rawURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatal(err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg protocol.ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return msg
}

func subscribe(t *testing.T, conn *websocket.Conn, projects ...int) {
	t.Helper()
	err := conn.WriteJSON(protocol.ClientMessage{Type: protocol.MsgSubscribe, ProjectNumbers: projects})
	if err != nil {
		t.Fatal(err)
	}
	ack := readServerMessage(t, conn)
	if ack.Type != protocol.MsgError || !strings.Contains(ack.Message, "subscribed") {
		t.Fatalf("subscribe ack = %+v", ack)
	}
}

func TestAuthAcceptsAllThreeKeyForms(t *testing.T) {
	_, _, wsURL := newTestServer(t)

	forms := []struct {
		name   string
		url    string
		header http.Header
	}{
		{"query parameter", wsURL + "/ws?key=" + testKey, nil},
		{"bearer token", wsURL + "/ws", http.Header{"Authorization": {"Bearer " + testKey}}},
		{"dedicated header", wsURL + "/ws", http.Header{KeyHeader: {testKey}}},
	}
	for _, form := range forms {
		t.Run(form.name, func(t *testing.T) {
			conn := dial(t, form.url, form.header)
			welcome := readServerMessage(t, conn)
			if welcome.Type != protocol.MsgError || welcome.Message != "connected" {
				t.Fatalf("welcome = %+v", welcome)
			}
		})
	}
}

func TestAuthRejectsBadKeyWithPolicyViolation(t *testing.T) {
	_, _, wsURL := newTestServer(t)

	for _, u := range []string{wsURL + "/ws", wsURL + "/ws?key=wrong"} {
		conn := dial(t, u, nil)
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatal(err)
		}
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("read after bad key = %v, want policy violation close", err)
		}
	}
}

func TestSubscribedClientReceivesFilteredEvents(t *testing.T) {
	_, eventBus, wsURL := newTestServer(t)

	conn := dial(t, wsURL+"/ws?key="+testKey, nil)
	if msg := readServerMessage(t, conn); msg.Message != "connected" {
		t.Fatalf("welcome = %+v", msg)
	}
	subscribe(t, conn, 72)

	eventBus.Publish(protocol.StateChangeEvent{
		Type: protocol.EventIssueCreated, Timestamp: time.Now(), ProjectNumber: 99,
	})
	eventBus.Publish(protocol.StateChangeEvent{
		Type: protocol.EventIssueCreated, Timestamp: time.Now(), ProjectNumber: 72, IssueNumber: 5,
	})

	// Only the project-72 event arrives.
	got := readServerMessage(t, conn)
	if got.Type != protocol.MsgEvent || got.Event == nil {
		t.Fatalf("message = %+v, want event", got)
	}
	if got.Event.ProjectNumber != 72 || got.Event.IssueNumber != 5 {
		t.Fatalf("event = %+v, want project 72 issue 5", got.Event)
	}
}

func TestResubscribeReplacesFilter(t *testing.T) {
	_, eventBus, wsURL := newTestServer(t)

	conn := dial(t, wsURL+"/ws?key="+testKey, nil)
	readServerMessage(t, conn) // welcome
	subscribe(t, conn, 72)
	subscribe(t, conn, 99)

	// The old subscription is gone, not doubled up.
	if n := eventBus.SubscriberCount(); n != 1 {
		t.Fatalf("bus subscriptions = %d, want 1", n)
	}

	eventBus.Publish(protocol.StateChangeEvent{
		Type: protocol.EventIssueUpdated, Timestamp: time.Now(), ProjectNumber: 99,
	})
	got := readServerMessage(t, conn)
	if got.Event == nil || got.Event.ProjectNumber != 99 {
		t.Fatalf("event = %+v, want project 99", got)
	}
}

func TestUnknownMessageTypeGetsErrorReply(t *testing.T) {
	_, _, wsURL := newTestServer(t)

	conn := dial(t, wsURL+"/ws?key="+testKey, nil)
	readServerMessage(t, conn) // welcome

	if err := conn.WriteJSON(protocol.ClientMessage{Type: "bogus"}); err != nil {
		t.Fatal(err)
	}
	reply := readServerMessage(t, conn)
	if reply.Type != protocol.MsgError || !strings.Contains(reply.Message, "unknown message type") {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestDisconnectTearsDownSubscription(t *testing.T) {
	s, eventBus, wsURL := newTestServer(t)

	conn := dial(t, wsURL+"/ws?key="+testKey, nil)
	readServerMessage(t, conn) // welcome
	subscribe(t, conn)

	if n := s.ConnectionCount(); n != 1 {
		t.Fatalf("connections = %d, want 1", n)
	}
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.ConnectionCount() == 0 && eventBus.SubscriberCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("teardown incomplete: connections=%d subscriptions=%d",
		s.ConnectionCount(), eventBus.SubscriberCount())
}

func TestHealthEndpoint(t *testing.T) {
	s, _, wsURL := newTestServer(t)
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Connections   int `json:"connections"`
		UptimeSeconds int `json:"uptimeSeconds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Connections != s.ConnectionCount() {
		t.Fatalf("health connections = %d, server says %d", body.Connections, s.ConnectionCount())
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	_, _, wsURL := newTestServer(t)
	httpURL := "http" + strings.TrimPrefix(wsURL, "ws")

	resp, err := http.Get(httpURL + "/nope")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
