package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"RateCast/internal/domain/models"
	"RateCast/pkg/logger"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan *Event

	mu       sync.RWMutex
	entities map[string]struct{} // empty means all
}

func (c *Client) subscribe(entities []string) {
	set := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		set[e] = struct{}{}
	}
	c.mu.Lock()
	c.entities = set
	c.mu.Unlock()
}

func (c *Client) wants(ev *Event) bool {
	if ev.Forecast == nil {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.entities) == 0 {
		return true
	}
	_, ok := c.entities[ev.Forecast.EntityID]
	return ok
}

func (c *Client) filter(fs []*models.Forecast) []*models.Forecast {
	out := fs[:0:0]
	for _, f := range fs {
		if c.wants(&Event{Forecast: f}) {
			out = append(out, f)
		}
	}
	return out
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.l.Warn("websocket read", logger.Error(err))
			}
			return
		}
		c.hub.handleCommand(c, message)
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
		case ev, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if ev.Type == EventSnapshot {
				ev = &Event{Type: ev.Type, Forecasts: c.filter(ev.Forecasts), Time: ev.Time}
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				c.hub.l.Debug("websocket write", logger.Error(err))
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
