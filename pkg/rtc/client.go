package rtc

import (
	"github.com/gorilla/websocket"
)

// WritePump copies queued messages to the socket until Send is closed or a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.Send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// ReadPump hands every inbound frame to handle until the socket fails or closes.
func (c *Client) ReadPump(handle func(message []byte)) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(message)
	}
}

// Reply queues a message for this client only. It reports false when the buffer is full.
func (c *Client) Reply(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// GorillaConn adapts a gorilla connection to Conn.
type GorillaConn struct {
	*websocket.Conn
}

func (g GorillaConn) ReadMessage() (int, []byte, error) {
	return g.Conn.ReadMessage()
}

func (g GorillaConn) WriteMessage(messageType int, data []byte) error {
	return g.Conn.WriteMessage(messageType, data)
}

func (g GorillaConn) Close() error {
	return g.Conn.Close()
}
