package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const maxInboundFrame = 64 << 10

// WebSocketTransport adapts a gorilla/websocket connection to Transport.
type WebSocketTransport struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// NewWebSocketTransport wraps conn. writeTimeout bounds every write; zero disables it.
func NewWebSocketTransport(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketTransport {
	conn.SetReadLimit(maxInboundFrame)
	return &WebSocketTransport{conn: conn, writeTimeout: writeTimeout}
}

// ReadMessage returns the next text or binary frame.
func (t *WebSocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

// WriteMessage sends data as a text frame.
func (t *WebSocketTransport) WriteMessage(data []byte) error {
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// WriteClose sends a close frame. Safe to call concurrently with WriteMessage.
func (t *WebSocketTransport) WriteClose(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	if t.writeTimeout > 0 {
		deadline = time.Now().Add(t.writeTimeout)
	}
	return t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// Close closes the underlying network connection.
func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
