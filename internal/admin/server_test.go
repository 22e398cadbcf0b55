package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/smppctl/internal/event"
	"github.com/danmuck/smppctl/internal/protocol/pdu"
	"github.com/danmuck/smppctl/internal/protocol/session"
	"github.com/danmuck/smppctl/internal/testutil/testlog"
)

type fakeSession struct {
	mu      sync.Mutex
	state   session.State
	factory *pdu.Factory
	exit    *event.Event
	sent    []*pdu.Packet
	reply   func(req *pdu.Packet) (*pdu.Packet, error)
}

func newFakeSession(state session.State) *fakeSession {
	f := pdu.NewFactory(nil)
	return &fakeSession{
		state:   state,
		factory: f,
		reply: func(req *pdu.Packet) (*pdu.Packet, error) {
			resp := f.Make(pdu.SubmitSMResp, &pdu.MessageIDResp{MessageID: "msg-1"})
			resp.Sequence = req.Sequence
			return resp, nil
		},
	}
}

func (f *fakeSession) ID() string            { return "esme-test" }
func (f *fakeSession) State() session.State  { return f.state }
func (f *fakeSession) Type() session.Type    { return session.Transceiver }
func (f *fakeSession) Version() pdu.Version  { return pdu.V34 }
func (f *fakeSession) OptionalParams() bool  { return true }
func (f *fakeSession) Factory() *pdu.Factory { return f.factory }
func (f *fakeSession) ExitEvent() (event.Event, bool) {
	if f.exit == nil {
		return event.Event{}, false
	}
	return *f.exit, true
}

func (f *fakeSession) Pending() []session.PendingRequest {
	return []session.PendingRequest{{Sequence: 7, Command: pdu.QuerySM, SentAt: time.Now()}}
}

func (f *fakeSession) Request(_ context.Context, req *pdu.Packet) (*pdu.Packet, error) {
	f.mu.Lock()
	req.Sequence = uint32(len(f.sent) + 1)
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	return f.reply(req)
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	var out map[string]any
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode body: %v (%s)", err, rr.Body.String())
		}
	}
	return rr, out
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	fs := newFakeSession(session.Binding)
	s := New("admin-test", fs, DefaultConfig())

	rr, body := do(t, s, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health: code=%d body=%v", rr.Code, body)
	}

	rr, body = do(t, s, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusServiceUnavailable || body["state"] != "binding" {
		t.Fatalf("ready while binding: code=%d body=%v", rr.Code, body)
	}

	fs.state = session.Bound
	rr, body = do(t, s, http.MethodGet, "/ready", nil)
	if rr.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("ready while bound: code=%d body=%v", rr.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	testlog.Start(t)
	s := New("admin-test", newFakeSession(session.Bound), DefaultConfig())
	do(t, s, http.MethodGet, "/health", nil)

	rr, _ := do(t, s, http.MethodGet, "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: code=%d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("smppctl_http_requests_total")) {
		t.Fatalf("metrics output missing http counter")
	}
}

func TestSessionStatus(t *testing.T) {
	testlog.Start(t)
	fs := newFakeSession(session.Unbound)
	fs.exit = &event.Event{Kind: event.ReceiverExit, Reason: event.ReasonBindTimeout, Err: errors.New("no response")}
	s := New("admin-test", fs, DefaultConfig())

	rr, body := do(t, s, http.MethodGet, "/session", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("session: code=%d", rr.Code)
	}
	if body["id"] != "esme-test" || body["state"] != "unbound" || body["type"] != "transceiver" {
		t.Fatalf("unexpected status %v", body)
	}
	pending, _ := body["pending"].([]any)
	if len(pending) != 1 {
		t.Fatalf("expected one pending request, got %v", body["pending"])
	}
	exit, _ := body["exit"].(map[string]any)
	if exit["reason"] != "bind_timeout" || exit["error"] != "no response" {
		t.Fatalf("unexpected exit %v", body["exit"])
	}
}

func TestSubmit(t *testing.T) {
	testlog.Start(t)
	fs := newFakeSession(session.Bound)
	s := New("admin-test", fs, DefaultConfig())

	rr, body := do(t, s, http.MethodPost, "/submit", SubmitRequest{Source: "100", Dest: "200", Text: "hi"})
	if rr.Code != http.StatusOK {
		t.Fatalf("submit: code=%d body=%v", rr.Code, body)
	}
	if body["message_id"] != "msg-1" || body["status"] != pdu.StatusOK.String() {
		t.Fatalf("unexpected submit response %v", body)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("expected one submit_sm, got %d", len(fs.sent))
	}
	sm := fs.sent[0].Body.(*pdu.ShortMessage)
	if fs.sent[0].CommandID != pdu.SubmitSM || sm.Dest.Addr != "200" || string(sm.Message) != "hi" {
		t.Fatalf("unexpected packet %v body %+v", fs.sent[0], sm)
	}
}

func TestSubmitErrors(t *testing.T) {
	testlog.Start(t)

	s := New("admin-test", newFakeSession(session.Unbound), DefaultConfig())
	if rr, _ := do(t, s, http.MethodPost, "/submit", SubmitRequest{Dest: "1"}); rr.Code != http.StatusConflict {
		t.Fatalf("unbound submit: expected 409, got %d", rr.Code)
	}

	fs := newFakeSession(session.Bound)
	s = New("admin-test", fs, DefaultConfig())
	if rr, _ := do(t, s, http.MethodPost, "/submit", map[string]any{"text": "x"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("missing dest: expected 400, got %d", rr.Code)
	}
	if rr, _ := do(t, s, http.MethodPost, "/submit", SubmitRequest{Dest: "1", Text: "héllo"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("unencodable text: expected 400, got %d", rr.Code)
	}

	fs.reply = func(*pdu.Packet) (*pdu.Packet, error) { return nil, context.DeadlineExceeded }
	if rr, _ := do(t, s, http.MethodPost, "/submit", SubmitRequest{Dest: "1"}); rr.Code != http.StatusGatewayTimeout {
		t.Fatalf("timeout: expected 504, got %d", rr.Code)
	}

	fs.reply = func(req *pdu.Packet) (*pdu.Packet, error) {
		resp := fs.factory.Make(pdu.SubmitSMResp, &pdu.MessageIDResp{})
		resp.Sequence = req.Sequence
		resp.Status = pdu.StatusInvPaswd
		return resp, nil
	}
	if rr, _ := do(t, s, http.MethodPost, "/submit", SubmitRequest{Dest: "1"}); rr.Code != http.StatusBadGateway {
		t.Fatalf("rejected: expected 502, got %d", rr.Code)
	}
}

func TestSubmitRequiresToken(t *testing.T) {
	testlog.Start(t)
	cfg := DefaultConfig()
	cfg.Token = "ops-token"
	fs := newFakeSession(session.Bound)
	s := New("admin-test", fs, cfg)

	if rr, _ := do(t, s, http.MethodPost, "/submit", SubmitRequest{Dest: "1"}); rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", rr.Code)
	}
	if len(fs.sent) != 0 {
		t.Fatalf("unauthorized submit reached the session")
	}

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(SubmitRequest{Dest: "1", Text: "ok"})
	req := httptest.NewRequest(http.MethodPost, "/submit", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer ops-token")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("with token: expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	if rr, _ := do(t, s, http.MethodGet, "/session", nil); rr.Code != http.StatusOK {
		t.Fatalf("reads stay open: got %d", rr.Code)
	}
}
