package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/core"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	relay := app.NewRelay(core.NewRoomRegistry())
	ctl := NewRelayWSController(relay, NewRateLimiter(100, time.Second))
	ctl.PingPeriod = 10 * time.Second

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(context.Background(), c)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, room, name string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=" + url.QueryEscape(room) + "&name=" + url.QueryEscape(name)
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn, out any) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
}

func expectSilence(t *testing.T, ws *websocket.Conn) {
	t.Helper()
	// Peek at the raw connection instead of ws.ReadMessage: gorilla makes
	// read errors sticky, so a timed-out websocket read would poison the
	// connection for any later readFrame on the same ws.
	raw := ws.UnderlyingConn()
	_ = raw.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	buf := make([]byte, 1)
	if n, err := raw.Read(buf); err == nil && n > 0 {
		t.Fatal("expected no frame, but data arrived")
	}
	_ = raw.SetReadDeadline(time.Time{})
}

// joinAndGreet dials into a room and returns the connection along with the
// session id the relay assigned.
func joinAndGreet(t *testing.T, srv *httptest.Server, room, name string) (*websocket.Conn, core.SessionID) {
	t.Helper()
	ws := dialRoom(t, srv, room, name)
	var hello core.RoomMembersMsg
	readFrame(t, ws, &hello)
	if hello.Type != core.TypeRoomMembers {
		t.Fatalf("first frame should be %s, got %s", core.TypeRoomMembers, hello.Type)
	}
	if hello.Self == "" {
		t.Fatal("relay must assign a session id")
	}
	return ws, hello.Self
}

func TestJoinReceivesRoomMembers(t *testing.T) {
	srv := newTestServer(t)

	ws1 := dialRoom(t, srv, "alpha", "alice")
	var first core.RoomMembersMsg
	readFrame(t, ws1, &first)
	if len(first.Members) != 0 {
		t.Fatalf("first joiner should see an empty room, got %v", first.Members)
	}

	ws2 := dialRoom(t, srv, "alpha", "bob")
	var second core.RoomMembersMsg
	readFrame(t, ws2, &second)
	if len(second.Members) != 1 || second.Members[0] != first.Self {
		t.Fatalf("second joiner should see [%s], got %v", first.Self, second.Members)
	}

	// The member already in the room is never notified about the join.
	expectSilence(t, ws1)
}

func TestMissingRoomRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestSignalRoutedWithSenderStamp(t *testing.T) {
	srv := newTestServer(t)
	ws1, sid1 := joinAndGreet(t, srv, "beta", "alice")
	ws2, sid2 := joinAndGreet(t, srv, "beta", "bob")

	offer := core.SignalMsg{
		Type:    core.TypeSignal,
		Kind:    core.SignalOffer,
		Target:  sid1,
		Payload: json.RawMessage(`{"sdp":"v=0"}`),
	}
	if err := ws2.WriteJSON(offer); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got core.SignalMsg
	readFrame(t, ws1, &got)
	if got.Kind != core.SignalOffer {
		t.Fatalf("expected offer, got %s", got.Kind)
	}
	if got.Sender != sid2 {
		t.Fatalf("sender must be stamped with %s, got %s", sid2, got.Sender)
	}
	if got.Target != "" {
		t.Fatalf("target must not be echoed back, got %s", got.Target)
	}
	if string(got.Payload) != `{"sdp":"v=0"}` {
		t.Fatalf("payload must pass through untouched, got %s", got.Payload)
	}

	// Nothing leaks to the sender.
	expectSilence(t, ws2)
}

func TestSignalToStaleTargetDropped(t *testing.T) {
	srv := newTestServer(t)
	ws1, _ := joinAndGreet(t, srv, "gamma", "alice")
	ws2, sid2 := joinAndGreet(t, srv, "gamma", "bob")

	ws2.Close()
	var left core.PeerLeftMsg
	readFrame(t, ws1, &left)
	if left.Type != core.TypePeerLeft || left.SID != sid2 {
		t.Fatalf("expected peer-left for %s, got %+v", sid2, left)
	}

	// A signal aimed at the departed member vanishes without an error frame.
	msg := core.SignalMsg{Type: core.TypeSignal, Kind: core.SignalCandidate, Target: sid2}
	if err := ws1.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectSilence(t, ws1)
}

func TestPeerLeftOnlyInOwnRoom(t *testing.T) {
	srv := newTestServer(t)
	ws1, _ := joinAndGreet(t, srv, "delta", "alice")
	wsOther, _ := joinAndGreet(t, srv, "epsilon", "carol")
	ws2, _ := joinAndGreet(t, srv, "delta", "bob")

	ws2.Close()
	var left core.PeerLeftMsg
	readFrame(t, ws1, &left)
	if left.Type != core.TypePeerLeft {
		t.Fatalf("expected peer-left, got %+v", left)
	}
	expectSilence(t, wsOther)
}

func TestEndCallClosesConnection(t *testing.T) {
	srv := newTestServer(t)
	ws1, _ := joinAndGreet(t, srv, "zeta", "alice")
	ws2, sid2 := joinAndGreet(t, srv, "zeta", "bob")

	if err := ws2.WriteJSON(map[string]string{"type": core.TypeEndCall}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var left core.PeerLeftMsg
	readFrame(t, ws1, &left)
	if left.SID != sid2 {
		t.Fatalf("expected peer-left for %s, got %+v", sid2, left)
	}

	_ = ws2.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws2.ReadMessage(); err == nil {
		t.Fatal("connection should be closed after end-call")
	}
}

func TestMalformedFramesIgnored(t *testing.T) {
	srv := newTestServer(t)
	ws1, sid1 := joinAndGreet(t, srv, "eta", "alice")
	ws2, _ := joinAndGreet(t, srv, "eta", "bob")

	for _, raw := range []string{
		"not json",
		`{"type":"mystery"}`,
		`{"type":"signal","kind":"offer"}`,              // no target
		`{"type":"signal","kind":"reset","target":"x"}`, // unknown kind
	} {
		if err := ws2.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("write %q: %v", raw, err)
		}
	}
	expectSilence(t, ws1)

	// The connection survives the garbage.
	ok := core.SignalMsg{Type: core.TypeSignal, Kind: core.SignalAnswer, Target: sid1, Payload: json.RawMessage(`{}`)}
	if err := ws2.WriteJSON(ok); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got core.SignalMsg
	readFrame(t, ws1, &got)
	if got.Kind != core.SignalAnswer {
		t.Fatalf("expected answer after garbage, got %+v", got)
	}
}
