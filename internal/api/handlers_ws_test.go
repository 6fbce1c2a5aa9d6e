// Fieldcheck - Field-Service Job Sync and Billing Validation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fieldcheck

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"

	ws "github.com/tomtom215/fieldcheck/internal/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
}

func TestWebSocket_ReceivesBroadcast(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = env.hub.Serve(ctx) }()

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://dash.example"}}
	conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL(srv), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	env.hub.BroadcastJSON(ws.MessageTypeSyncCompleted, map[string]string{"resource": "jobs"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if msg.Type != ws.MessageTypeSyncCompleted {
		t.Errorf("type = %q", msg.Type)
	}
}

func TestWebSocket_RejectsOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"unlisted origin", "http://evil.example"},
		{"no origin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			srv := httptest.NewServer(env.router)
			defer srv.Close()

			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := gorillaws.DefaultDialer.Dial(wsURL(srv), header)
			if err == nil {
				conn.Close()
				t.Fatal("dial succeeded")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("resp = %+v, want 403", resp)
			}
		})
	}
}

func TestNewUpgrader_Wildcard(t *testing.T) {
	u := newUpgrader([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	if !u.CheckOrigin(r) {
		t.Error("wildcard rejected origin")
	}
	r.Header.Del("Origin")
	if u.CheckOrigin(r) {
		t.Error("missing origin accepted")
	}
}
