package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/realm/internal/adapters/auth"
	"github.com/dkeye/realm/internal/adapters/memory"
	"github.com/dkeye/realm/internal/app/orch"
	"github.com/dkeye/realm/internal/config"
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type testServer struct {
	srv    *httptest.Server
	store  *memory.Store
	tokens *auth.Verifier
	orch   *orch.Orchestrator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	store.AddUser(domain.User{ID: "alice", FirstName: "Alice"})
	store.AddUser(domain.User{ID: "bob", FirstName: "Bob"})
	store.Befriend("alice", "bob")
	store.CreateConversation("c1", "alice", "bob")

	cfg := &config.Config{
		Mode:       "release",
		Port:       8080,
		Secret:     "cookie-secret",
		JWTSecret:  "jwt-secret",
		PingPeriod: time.Second,
		PongWait:   5 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 64,
		ReadLimit:  1 << 16,
	}
	tokens := auth.NewVerifier(cfg.JWTSecret)
	o := orch.New(orch.Deps{
		Auth:          tokens,
		Directory:     store,
		Conversations: store,
		Messages:      store,
		Records:       store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	r, err := SetupRouter(ctx, cfg, o)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{srv: srv, store: store, tokens: tokens, orch: o}
}

func (s *testServer) token(t *testing.T, id domain.UserID) string {
	t.Helper()
	tok, _, err := s.tokens.Sign(id)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (s *testServer) dial(t *testing.T, id domain.UserID) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws"
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.token(t, id))
	conn, resp, err := websocket.DefaultDialer.Dial(url, h)
	if err != nil {
		t.Fatalf("dial %s: %v (%v)", id, err, resp)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(typ string, data any) {
	c.t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal: %v", err)
	}
	b, _ := json.Marshal(core.Envelope{Type: typ, Data: raw})
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
}

// expect reads until an event of type typ arrives, skipping others.
func (c *client) expect(typ string, v any) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", typ, err)
		}
		env, err := core.Decode(b)
		if err != nil {
			c.t.Fatalf("bad frame %s: %v", b, err)
		}
		if env.Type != typ {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(env.Data, v); err != nil {
				c.t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return
	}
}

// sync round-trips a whoami so earlier frames from c are processed.
func (c *client) sync() {
	c.t.Helper()
	c.send("whoami", nil)
	c.expect(core.EventWhoAmI, nil)
}

func TestRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/api/online")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401, got %d", resp.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/api/ws?token=garbage"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("upgrade with a bad token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("want 401 on upgrade, got %v", resp)
	}
	if s.orch.Registry.Count() != 0 {
		t.Fatalf("rejected handshake registered a session")
	}
}

func TestSessionCookieAuth(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(map[string]string{"token": s.token(t, "alice")})
	resp, err := http.Post(s.srv.URL+"/api/session", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	cookies := resp.Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no session cookie set")
	}

	req, _ := http.NewRequest(http.MethodGet, s.srv.URL+"/api/online", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cookie session not accepted: %d", resp.StatusCode)
	}
}

func TestICEServersEndpoint(t *testing.T) {
	s := newTestServer(t)
	resp, err := http.Get(s.srv.URL + "/api/ice-servers")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var out struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.ICEServers) == 0 || len(out.ICEServers[0].URLs) == 0 {
		t.Fatalf("no ice servers returned")
	}
}

func TestChatOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")
	var online []string
	alice.expect(core.EventOnlineUsers, &online)
	if len(online) != 1 || online[0] != "alice" {
		t.Fatalf("unexpected online snapshot %v", online)
	}

	bob := s.dial(t, "bob")
	bob.expect(core.EventOnlineUsers, &online)
	if len(online) != 2 {
		t.Fatalf("bob should see two online, got %v", online)
	}
	var status struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
	}
	alice.expect(core.EventUserStatusChange, &status)
	if status.UserID != "bob" || !status.IsOnline {
		t.Fatalf("unexpected status %+v", status)
	}

	bob.send("join-room", map[string]string{"conversationId": "c1"})
	bob.sync()
	alice.send("join-conversation", map[string]string{"conversationId": "c1"})
	alice.send("send-message", map[string]string{"conversationId": "c1", "content": "hi"})

	var msg domain.FormattedMessage
	bob.expect(core.EventNewMessage, &msg)
	if msg.Content != "hi" || msg.Sender.ID != "alice" || msg.Sender.Name != "Alice" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if n := s.store.Unread("c1", "bob"); n != 0 {
		t.Fatalf("bob is in the room, unread %d", n)
	}

	alice.send("send-message", map[string]string{"conversationId": "c404", "content": "hi"})
	var e struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Op      string `json:"op"`
	}
	alice.expect(core.EventError, &e)
	if e.Code != "membership_error" || e.Message != "conversation not found" || e.Op != "send-message" {
		t.Fatalf("unexpected error %+v", e)
	}
}

func TestCallOverWebSocket(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")
	alice.expect(core.EventOnlineUsers, nil)

	alice.send("call-initiate", map[string]any{"recipientId": "bob", "callType": "audio", "signal": map[string]string{"sdp": "o"}})
	var e struct {
		Code string `json:"code"`
	}
	alice.expect(core.EventError, &e)
	if e.Code != "offline_peer" {
		t.Fatalf("want offline_peer, got %+v", e)
	}

	bob := s.dial(t, "bob")
	bob.expect(core.EventOnlineUsers, nil)

	alice.send("call-user", map[string]any{"recipientId": "bob", "callType": "video", "signal": map[string]string{"sdp": "o"}})
	var initiated struct {
		CallID string `json:"callId"`
	}
	alice.expect(core.EventCallInitiated, &initiated)
	var incoming struct {
		CallID string         `json:"callId"`
		Caller domain.Profile `json:"caller"`
	}
	bob.expect(core.EventIncomingCall, &incoming)
	if incoming.CallID != initiated.CallID || incoming.Caller.ID != "alice" {
		t.Fatalf("unexpected incoming call %+v", incoming)
	}

	bob.send("ice-candidate", map[string]any{"recipientId": "alice", "candidate": map[string]string{"candidate": "c0"}})
	var cand struct {
		SenderID string `json:"senderId"`
	}
	alice.expect(core.EventICECandidate, &cand)
	if cand.SenderID != "bob" {
		t.Fatalf("unexpected candidate %+v", cand)
	}

	bob.send("call-accept", map[string]any{"callId": incoming.CallID, "signal": map[string]string{"sdp": "a"}})
	alice.expect(core.EventCallAccepted, nil)

	alice.send("call-end", map[string]string{"callId": initiated.CallID})
	bob.expect(core.EventCallEnded, nil)

	deadline := time.Now().Add(2 * time.Second)
	for len(s.store.CallRecords()) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("call record not persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if r := s.store.CallRecords()[0]; r.Status != domain.CallAnswered || r.Kind != domain.CallVideo {
		t.Fatalf("unexpected record %+v", r)
	}

	bob.send("accept-call", map[string]any{"callId": incoming.CallID})
	bob.expect(core.EventError, &e)
	if e.Code != "unknown_call" {
		t.Fatalf("want unknown_call, got %+v", e)
	}
}

func TestDisconnectEndsCall(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")
	alice.expect(core.EventOnlineUsers, nil)
	bob := s.dial(t, "bob")
	bob.expect(core.EventOnlineUsers, nil)

	alice.send("call-initiate", map[string]any{"recipientId": "bob", "callType": "audio"})
	var incoming struct {
		CallID string `json:"callId"`
	}
	bob.expect(core.EventIncomingCall, &incoming)
	bob.send("call-accept", map[string]any{"callId": incoming.CallID})
	alice.expect(core.EventCallAccepted, nil)

	_ = bob.conn.Close()

	var status struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
	}
	alice.expect(core.EventUserStatusChange, &status)
	if status.UserID != "bob" || status.IsOnline {
		t.Fatalf("unexpected status %+v", status)
	}
	var ended struct {
		Reason string `json:"reason"`
	}
	alice.expect(core.EventCallEnded, &ended)
	if ended.Reason != "disconnected" {
		t.Fatalf("unexpected reason %q", ended.Reason)
	}
}

func TestLogoutClosesLiveConnection(t *testing.T) {
	s := newTestServer(t)
	alice := s.dial(t, "alice")
	alice.expect(core.EventOnlineUsers, nil)
	bob := s.dial(t, "bob")
	bob.expect(core.EventOnlineUsers, nil)

	req, _ := http.NewRequest(http.MethodDelete, s.srv.URL+"/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "alice"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	var out struct {
		Kicked bool `json:"kicked"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK || !out.Kicked {
		t.Fatalf("logout failed: %d %+v %v", resp.StatusCode, out, err)
	}

	_ = alice.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := alice.conn.ReadMessage(); err != nil {
			break
		}
	}
	var status struct {
		UserID   string `json:"userId"`
		IsOnline bool   `json:"isOnline"`
	}
	bob.expect(core.EventUserStatusChange, &status)
	if status.UserID != "alice" || status.IsOnline {
		t.Fatalf("unexpected status %+v", status)
	}

	req, _ = http.NewRequest(http.MethodDelete, s.srv.URL+"/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+s.token(t, "alice"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	resp.Body.Close()
	if err != nil || out.Kicked {
		t.Fatalf("second logout should find no connection: %+v %v", out, err)
	}
}
