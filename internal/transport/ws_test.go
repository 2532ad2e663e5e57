package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	return Config{
		URL:               url,
		HandshakeTimeout:  5 * time.Second,
		WriteTimeout:      2 * time.Second,
		PingTimeout:       30 * time.Second,
		KeepaliveInterval: 10 * time.Second,
		BufferSize:        16,
	}
}

func TestWSFactory_Open(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	factory := NewWSFactory(testConfig(wsURL(server)), nil)

	ch, err := factory.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if !ch.IsOpen() {
		t.Error("expected IsOpen to return true")
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if ch.IsOpen() {
		t.Error("expected IsOpen to return false after Close")
	}
}

func TestWSFactory_OpenDialError(t *testing.T) {
	factory := NewWSFactory(testConfig("ws://127.0.0.1:1/nowhere"), nil)

	if _, err := factory.Open(context.Background()); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestWSChannel_Send(t *testing.T) {
	received := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- data
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	factory := NewWSFactory(testConfig(wsURL(server)), nil)
	ch, err := factory.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	if err := ch.Send([]byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Errorf("server received %q, want %q", data, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive the frame")
	}
}

func TestWSChannel_ReceiveFrame(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("inbound")); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	factory := NewWSFactory(testConfig(wsURL(server)), nil)
	ch, err := factory.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	select {
	case frame := <-ch.Frames():
		if string(frame.Data) != "inbound" {
			t.Errorf("got frame %q, want %q", frame.Data, "inbound")
		}
		if frame.ReceivedAt.IsZero() {
			t.Error("expected ReceivedAt to be set")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame not delivered")
	}
}

func TestWSChannel_PeerCloseReportsErrClosed(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
		// Wait for the client's close response.
		conn.ReadMessage()
	})
	defer server.Close()

	factory := NewWSFactory(testConfig(wsURL(server)), nil)
	ch, err := factory.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer ch.Close()

	select {
	case err := <-ch.Errors():
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported for peer close")
	}

	if ch.IsOpen() {
		t.Error("expected channel to be marked not open")
	}
}

func TestWSChannel_SendAfterClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	factory := NewWSFactory(testConfig(wsURL(server)), nil)
	ch, err := factory.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Second close is a no-op.
	if err := ch.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if err := ch.Send([]byte("late")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("expected ErrNotOpen, got %v", err)
	}
}
