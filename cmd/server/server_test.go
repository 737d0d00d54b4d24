package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"shopkeep.ai/internal/config"
	persistlog "shopkeep.ai/internal/persistence/log"
	"shopkeep.ai/internal/persistence/shopdb"
	"shopkeep.ai/internal/protocol"
	"shopkeep.ai/internal/text"
	"shopkeep.ai/internal/transfer/model"
)

func newTestServer(t *testing.T) (*runtime, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	db, err := shopdb.Open(filepath.Join(dir, "shopkeep.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	auditLog := persistlog.NewAuditLogger(dir)
	rt, err := newRuntime(config.Defaults(), db, auditLog, text.New(nil), nil)
	if err != nil {
		t.Fatalf("newRuntime: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.svc.Run(ctx)
	}()
	ts := httptest.NewServer(rt.routes(true))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		_ = auditLog.Close()
		_ = db.Close()
	})
	return rt, ts
}

func dialPlayer(t *testing.T, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: name}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		t.Fatalf("welcome: %+v %v", welcome, err)
	}
	return conn
}

func sendCmd(t *testing.T, conn *websocket.Conn, id string, args ...string) {
	t.Helper()
	if err := conn.WriteJSON(protocol.CmdMsg{Type: protocol.TypeCmd, ProtocolVersion: protocol.Version, ID: id, Args: args}); err != nil {
		t.Fatalf("cmd: %v", err)
	}
}

// waitFor reads frames until one of type typ (and key, for notices) shows up.
func waitFor(t *testing.T, conn *websocket.Conn, typ, key string) []byte {
	t.Helper()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s %s: %v", typ, key, err)
		}
		var m struct {
			Type string `json:"type"`
			Key  string `json:"key"`
		}
		_ = json.Unmarshal(b, &m)
		if m.Type == typ && (key == "" || m.Key == key) {
			return b
		}
	}
}

func TestServer_ConsentFlowEndToEnd(t *testing.T) {
	rt, ts := newTestServer(t)
	ctx := context.Background()

	alice := dialPlayer(t, ts, "alice")
	bob := dialPlayer(t, ts, "bob")
	aliceID := model.OfflineIdentity("alice")
	bobID := model.OfflineIdentity("bob")

	for i := 0; i < 3; i++ {
		shop := &model.Asset{Owner: aliceID, World: "overworld", X: i, Y: 64, Item: "STONE", Unlimited: i == 1}
		if err := rt.db.CreateShop(ctx, shop); err != nil {
			t.Fatalf("CreateShop: %v", err)
		}
	}

	sendCmd(t, alice, "c1", "bob")
	waitFor(t, alice, protocol.TypeNotice, "transfer-sent")
	waitFor(t, bob, protocol.TypeNotice, "transfer-request")
	b := waitFor(t, bob, protocol.TypeNotice, "transfer-ask")
	var ask protocol.NoticeMsg
	_ = json.Unmarshal(b, &ask)
	if len(ask.Args) != 1 || ask.Args[0] != "60" {
		t.Fatalf("ask args=%v want [60]", ask.Args)
	}

	sendCmd(t, bob, "c2", "yes")
	waitFor(t, bob, protocol.TypeNotice, "transfer-accepted-toside")
	b = waitFor(t, bob, protocol.TypeResult, "")
	var res protocol.ResultMsg
	_ = json.Unmarshal(b, &res)
	if !res.OK || res.Ref != "c2" {
		t.Fatalf("accept result: %s", b)
	}
	waitFor(t, alice, protocol.TypeNotice, "transfer-accepted-fromside")

	moved, _ := rt.db.ListOwnedAssets(ctx, bobID)
	kept, _ := rt.db.ListOwnedAssets(ctx, aliceID)
	if len(moved) != 2 || len(kept) != 1 || !kept[0].Unlimited {
		t.Fatalf("ownership after accept: bob=%d alice=%d", len(moved), len(kept))
	}

	// Second accept has nothing left to consume.
	sendCmd(t, bob, "c3", "accept")
	b = waitFor(t, bob, protocol.TypeResult, "")
	res = protocol.ResultMsg{}
	_ = json.Unmarshal(b, &res)
	if res.OK || res.Code != protocol.ErrNoPending {
		t.Fatalf("second accept: %s", b)
	}

	// No override capability granted by default.
	sendCmd(t, bob, "c4", "bob", "alice")
	b = waitFor(t, bob, protocol.TypeResult, "")
	res = protocol.ResultMsg{}
	_ = json.Unmarshal(b, &res)
	if res.Code != protocol.ErrNoPermission {
		t.Fatalf("override without permission: %s", b)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`shopkeep_transfer_outcomes_total{kind="COMMITTED"} 1`,
		`shopkeep_transfer_assets_total{result="moved"} 2`,
		`shopkeep_transfer_assets_total{result="kept"} 1`,
		`shopkeep_ws_sessions 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	resp, err = http.Get(ts.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	var st adminState
	_ = json.NewDecoder(resp.Body).Decode(&st)
	resp.Body.Close()
	if st.Negotiation.Committed != 1 || st.NegotiationTTLSeconds != 60 || len(st.Online) != 2 {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestAdminState_LoopbackOnly(t *testing.T) {
	rt, _ := newTestServer(t)
	mux := rt.routes(true)
	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status=%d want=403", rec.Code)
	}

	off := rt.routes(false)
	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	off.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("disabled admin status=%d want=404", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:80":    true,
		"[::1]:8080":      true,
		"10.0.0.2:1":      false,
		"not-an-address":  false,
		"198.51.100.7:22": false,
	}
	for addr, want := range cases {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}

type countingSink struct{ n int }

func (c *countingSink) RecordOutcome(model.Outcome) { c.n++ }

func TestMultiAuditSink_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := multiAuditSink{a, b}
	m.RecordOutcome(model.Outcome{Kind: model.OutcomeExpired})
	if a.n != 1 || b.n != 1 {
		t.Fatalf("fan out: a=%d b=%d", a.n, b.n)
	}
}
