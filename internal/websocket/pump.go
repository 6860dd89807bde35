package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// WritePump owns every write to conn: queued frames and periodic pings. It
// returns when the client's send channel is closed or a write fails.
func WritePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				return
			}
			if err := WriteRaw(conn, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// KeepReading extends the read deadline on every pong.
func KeepReading(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}
