package websocket

import (
	"net/http"
	"sync"
	"time"

	"copytrade/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 5 / 6
	maxMessageSize = 512
	sendBuffer     = 16
)

// frame is one queued push. last marks a frame after which the session is
// closed, such as a logout.
type frame struct {
	payload []byte
	last    bool
}

type Client struct {
	id     string
	userID int64
	hub    *Hub
	conn   *websocket.Conn
	send   chan frame
	once   sync.Once
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and blocks until the session ends. The
// session only receives; anything the browser sends is discarded.
func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("websocket").WithError(err).Debug("upgrade failed")
		return
	}
	client := &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan frame, sendBuffer),
	}
	hub.Register(userID, client)
	client.log().WithField("open_sessions", hub.Sessions(userID)).Debug("session opened")
	go client.writePump()
	client.readPump()
}

func (c *Client) log() *logrus.Entry {
	return logger.WithComponent("websocket").WithFields(logrus.Fields{
		"user_id":    c.userID,
		"session_id": c.id,
	})
}

func (c *Client) close() {
	c.once.Do(func() {
		c.hub.Unregister(c.userID, c)
		_ = c.conn.Close()
		c.log().Debug("session closed")
	})
}

func (c *Client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, f.payload); err != nil {
				return
			}
			if f.last {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "logged out"),
					time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
