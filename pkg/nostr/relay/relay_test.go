package relay

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/RUNSTR-LLC/RUNSTR-sub008/pkg/context"
	"golang.org/x/net/websocket"
)

func newWebsocketServer(handler func(conn *websocket.Conn)) *httptest.Server {
	return httptest.NewServer(&websocket.Server{
		Handshake: func(conf *websocket.Config, r *http.Request) error { return nil },
		Handler:   handler,
	})
}

func TestNoticeHandler(t *testing.T) {
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		websocket.JSON.Send(conn, []any{"NOTICE", "rate limited"})
		io.ReadAll(conn)
	})
	defer ws.Close()

	notices := make(chan string, 1)
	r := New(context.Bg(), ws.URL, WithNoticeHandler(func(n string) {
		notices <- n
	}))
	if err := r.Connect(context.Bg()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	select {
	case n := <-notices:
		if n != "rate limited" {
			t.Errorf("notice = %q; want %q", n, "rate limited")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notice never reached the handler")
	}

	// teardown must not race a notice dispatch into a panic
	if err := r.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}

func TestConnectionSurvivesDialContextCancel(t *testing.T) {
	ws := newWebsocketServer(func(conn *websocket.Conn) {
		io.ReadAll(conn)
	})
	defer ws.Close()

	r := New(context.Bg(), ws.URL)
	c, cancel := context.Timeout(context.Bg(), 3*time.Second)
	if err := r.Connect(c); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	cancel()
	time.Sleep(50 * time.Millisecond)
	if !r.IsConnected() {
		t.Error("connection died with the dial context")
	}
	r.Close()
}
