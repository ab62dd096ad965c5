package remote

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/mnohosten/laura-odm/pkg/driver"
)

// Changes opens a change stream for the collection over a WebSocket
// connection. The returned channel is closed when the context is
// canceled or the server closes the stream.
func (d *Driver) Changes(ctx context.Context, collection string) (<-chan driver.ChangeEvent, error) {
	wsURL := url.URL{
		Scheme: "ws",
		Host:   fmt.Sprintf("%s:%d", d.config.Host, d.config.Port),
		Path:   "/" + url.PathEscape(collection) + "/_changes",
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, driver.WrapConnection(fmt.Errorf("failed to open change stream: %w", err))
	}

	events := make(chan driver.ChangeEvent, 16)

	// Reader goroutine owns the connection. The watcher below unblocks
	// it by closing the connection on context cancellation.
	go func() {
		defer close(events)
		defer conn.Close()

		for {
			var event driver.ChangeEvent
			if err := conn.ReadJSON(&event); err != nil {
				return
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}()

	return events, nil
}
