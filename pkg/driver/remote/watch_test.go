package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mnohosten/laura-odm/pkg/driver"
)

func TestChanges_StreamsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	r := chi.NewRouter()
	r.Get("/{collection}/_changes", func(w http.ResponseWriter, req *http.Request) {
		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		events := []driver.ChangeEvent{
			{Operation: "insert", Collection: "users", DocumentID: "u-1", Timestamp: time.Now()},
			{Operation: "delete", Collection: "users", DocumentID: "u-1", Timestamp: time.Now()},
		}
		for _, event := range events {
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		}

		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	server := httptest.NewServer(r)
	defer server.Close()

	u, _ := url.Parse(server.URL)
	port, _ := strconv.Atoi(u.Port())
	config := DefaultConfig()
	config.Host = u.Hostname()
	config.Port = port
	d := NewDriver(config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := d.Changes(ctx, "users")
	if err != nil {
		t.Fatalf("Changes failed: %v", err)
	}

	first := <-events
	if first.Operation != "insert" || first.DocumentID != "u-1" {
		t.Errorf("unexpected first event: %+v", first)
	}

	second := <-events
	if second.Operation != "delete" {
		t.Errorf("unexpected second event: %+v", second)
	}

	cancel()
	select {
	case _, open := <-events:
		if open {
			t.Error("expected channel closed after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Error("channel not closed after cancellation")
	}
}

func TestChanges_DialFailure(t *testing.T) {
	config := DefaultConfig()
	config.Host = "127.0.0.1"
	config.Port = 1
	d := NewDriver(config)

	if _, err := d.Changes(context.Background(), "users"); err == nil {
		t.Error("expected dial error")
	}
}
