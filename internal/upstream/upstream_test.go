package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carlosrabelo/atomicalsproxy/internal/pending"
	"github.com/carlosrabelo/atomicalsproxy/internal/rpctypes"
)

func TestDispatchWithoutConnectionErrors(t *testing.T) {
	c := New("u0", []string{"ws://unused"}, nil, 0)
	err := c.Dispatch(1, rpctypes.Request{ID: 1, Method: "m"}, pending.NewSink())
	if err != errNotConnected {
		t.Fatalf("expected errNotConnected, got %v", err)
	}
}

func TestDispatchQueueFullErrorsAndRemovesPending(t *testing.T) {
	c := New("u0", []string{"ws://unused"}, nil, 1)
	c.setConn(&websocket.Conn{})
	c.connected = true

	if err := c.Dispatch(1, rpctypes.Request{ID: 1, Method: "m"}, pending.NewSink()); err != nil {
		t.Fatalf("expected first dispatch to fill the queue without error, got %v", err)
	}
	if err := c.Dispatch(2, rpctypes.Request{ID: 2, Method: "m"}, pending.NewSink()); err != errQueueFull {
		t.Fatalf("expected errQueueFull on second dispatch, got %v", err)
	}
	if _, ok := c.Registry.Take(2); ok {
		t.Fatal("expected pending entry for the rejected id to be removed")
	}
}

func TestAdvanceWrapsEndpointIndex(t *testing.T) {
	c := New("u0", []string{"a", "b", "c"}, nil, 0)
	if c.idx != 0 {
		t.Fatalf("expected initial idx 0, got %d", c.idx)
	}
	c.advance()
	c.advance()
	c.advance()
	if c.idx != 0 {
		t.Fatalf("expected idx to wrap back to 0 after 3 advances over 3 endpoints, got %d", c.idx)
	}
}

// TestRunRoundTripsOverRealWebSocket dials a real in-process websocket
// server, dispatches a request and checks the reply reaches the sink,
// covering the connect/serve/recv path end to end.
func TestRunRoundTripsOverRealWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpctypes.Request
		json.Unmarshal(data, &req)
		resp := rpctypes.Response{ID: req.ID, Result: json.RawMessage(`"pong"`)}
		b, _ := json.Marshal(resp)
		conn.WriteMessage(websocket.TextMessage, b)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	c := New("u0", []string{wsURL}, nil, 4)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go c.Run(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for !c.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !c.IsConnected() {
		t.Fatal("expected client to connect to the test server")
	}

	sink := pending.NewSink()
	if err := c.Dispatch(1, rpctypes.Request{ID: 1, Method: "ping"}, sink); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	select {
	case resp := <-sink:
		if string(resp.Result) != `"pong"` {
			t.Fatalf("expected pong result, got %s", resp.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}
