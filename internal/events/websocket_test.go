package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestStreamWebSocket(t *testing.T) {
	h := NewHub(DefaultConfig(), nil, nil)
	served := make(chan error, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			served <- err
			return
		}
		sub, err := h.Attach("ws1")
		if err != nil {
			served <- err
			return
		}
		served <- h.StreamWebSocket(r.Context(), sub, conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read connected: %v", err)
	}
	if ev.Type != TypeConnected || ev.SessionID != "ws1" {
		t.Fatalf("first event = %+v", ev)
	}

	if !h.Publish("ws1", TypeCompleted, "u1", map[string]any{"artifactId": "q1"}) {
		t.Fatal("publish to websocket session failed")
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read completed: %v", err)
	}
	if ev.Type != TypeCompleted || ev.UnitID != "u1" {
		t.Fatalf("event = %+v", ev)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("StreamWebSocket: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server stream did not end after client close")
	}
	if h.Attached("ws1") {
		t.Error("session still attached after client close")
	}
}
