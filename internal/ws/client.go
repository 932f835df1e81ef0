package ws

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/aolo2/desk/internal/room"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 1024 * 1024
	messagesPerSecond = 200
	messageBurst      = 400
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection bound to a desk session.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	room    *room.Room
	sess    *room.Session
	limiter *rate.Limiter
	log     *logrus.Entry

	mu     sync.Mutex
	closed bool
}

// DeskIDFromPath parses the target desk from the request path; the last
// path segment is the integer desk id.
func DeskIDFromPath(path string) (int64, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	last := parts[len(parts)-1]
	if last == "" {
		return 0, fmt.Errorf("missing desk id")
	}
	id, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed desk id %q", last)
	}
	return id, nil
}

// ServeWs upgrades the connection and attaches it to its desk's room.
func ServeWs(registry *room.Registry, w http.ResponseWriter, r *http.Request) {
	deskID, err := DeskIDFromPath(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &Client{
		conn:    conn,
		send:    make(chan []byte, 512),
		limiter: rate.NewLimiter(rate.Limit(messagesPerSecond), messageBurst),
		log: logrus.WithFields(logrus.Fields{
			"component": "ws",
			"conn_id":   uuid.NewString(),
			"desk_id":   deskID,
			"remote":    conn.RemoteAddr().String(),
		}),
	}

	go client.writePump()

	client.room = registry.GetOrCreate(deskID)
	client.sess = client.room.Join(client)

	go client.readPump()
}

// Send queues raw bytes for delivery. It never blocks; false means the
// buffer is full or the connection is shutting down.
func (c *Client) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears down the connection; the read loop notices and detaches the
// session.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.room.Leave(c.sess)
		c.closeSend()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.WithError(err).Warn("Websocket read error")
			}
			break
		}

		if !c.limiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.log.WithField("warnings", rateLimitWarnings).Warn("Rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				c.log.Warn("Disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		// One transport message is one logical event. A frame that cannot
		// even hold a tag word is dropped here; the room validates the
		// rest.
		if len(message) < 4 || len(message)%4 != 0 {
			c.log.WithField("bytes", len(message)).Warn("Dropping unaligned frame")
			continue
		}

		c.room.Forward(c.sess, message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
