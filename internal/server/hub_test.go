package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.clientCount() == 1 })

	hub.Broadcast([]byte(`{"phase":"ready"}`))

	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast failed: %v", err)
	}
	if string(msg) != `{"phase":"ready"}` {
		t.Fatalf("unexpected broadcast payload: %s", msg)
	}
}

func TestHubEvictsDepartedClient(t *testing.T) {
	hub := NewHub(nil)
	ts := httptest.NewServer(hub)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	waitFor(t, func() bool { return hub.clientCount() == 1 })

	// 关闭帧由读循环处理，无需等到下一次广播写失败
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, func() bool { return hub.clientCount() == 0 })
}
