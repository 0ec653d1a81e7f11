package client

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Subprotocol identifies the v2 BSATN protocol variant during the
// WebSocket handshake.
const Subprotocol = "v2.bsatn.spacetimedb"

// handshakeTimeout bounds the initial WebSocket upgrade.
const handshakeTimeout = 10 * time.Second

// wsTransport adapts a gorilla WebSocket connection to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

// DialWebSocket opens the subscribe endpoint described by cfg and returns
// the transport. The bearer token, when configured, rides the handshake
// request.
func DialWebSocket(cfg Config) (Transport, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: handshakeTimeout,
	}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	url := fmt.Sprintf("ws://%s/v1/database/%s/subscribe?compression=%s",
		cfg.Host, cfg.Database, cfg.Compression)

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrHandshakeFailed, url, resp.Status)
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrConnectionFailed, url, err)
	}
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(frame []byte) error {
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("websocket: write: %w", err)
	}
	return nil
}

// Receive returns the next binary frame. Text frames are skipped by
// reporting (nil, nil); a clean close maps to io.EOF so the receive loop
// sees the protocol's null-receive.
func (t *wsTransport) Receive() ([]byte, error) {
	mt, data, err := t.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("websocket: read: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return nil, nil
	}
	return data, nil
}

func (t *wsTransport) Close() error {
	// Best effort close frame; the peer may already be gone.
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := t.conn.Close(); err != nil {
		return fmt.Errorf("websocket: close: %w", err)
	}
	return nil
}
