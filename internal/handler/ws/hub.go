package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RateCast/internal/domain/models"
	"RateCast/pkg/logger"
)

const (
	EventForecast = "forecast"
	EventReport   = "report"
	EventSnapshot = "snapshot"
)

// Event is what clients receive. Snapshot events carry every latest forecast at once.
type Event struct {
	Type      string             `json:"type"`
	Forecast  *models.Forecast   `json:"forecast,omitempty"`
	Forecasts []*models.Forecast `json:"forecasts,omitempty"`
	Caption   string             `json:"caption,omitempty"`
	Filename  string             `json:"filename,omitempty"`
	Time      time.Time          `json:"time"`
}

type command struct {
	Command  string   `json:"command"`
	Entities []string `json:"entities"`
}

// Hub fans forecast and report events out to websocket clients on /ws/notifications.
type Hub struct {
	l *logger.Logger

	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Event
	done       chan struct{}

	mu     sync.RWMutex
	latest map[string]*models.Forecast

	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewHub(l *logger.Logger) *Hub {
	return &Hub{
		l:          l,
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Event, 256),
		done:       make(chan struct{}),
		latest:     make(map[string]*models.Forecast),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now: time.Now,
	}
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/notifications", h.serve)
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			if snap := h.snapshot(); len(snap.Forecasts) > 0 {
				c.send <- snap
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev := <-h.broadcast:
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- ev:
				default:
					// slow consumer
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Notify broadcasts an artifact caption. Images stay out of the socket; clients fetch charts elsewhere.
func (h *Hub) Notify(ctx context.Context, a models.Artifact) error {
	return h.publish(ctx, &Event{Type: EventReport, Caption: a.Caption, Filename: a.Filename, Time: h.now().UTC()})
}

// BroadcastReport pushes every forecast of a finished run.
func (h *Hub) BroadcastReport(r *models.RunReport) {
	for _, o := range r.Outcomes {
		if o.Forecast == nil {
			continue
		}
		h.mu.Lock()
		h.latest[o.Forecast.EntityID] = o.Forecast
		h.mu.Unlock()
		_ = h.publish(context.Background(), &Event{Type: EventForecast, Forecast: o.Forecast, Time: h.now().UTC()})
	}
}

// publish never blocks: with no Run loop draining the backlog (one-shot runs) events are dropped.
func (h *Hub) publish(ctx context.Context, ev *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case h.broadcast <- ev:
	case <-h.done:
	default:
		h.l.Debug("websocket backlog full, event dropped", logger.String("type", ev.Type))
	}
	return nil
}

func (h *Hub) snapshot() *Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*models.Forecast, 0, len(h.latest))
	for _, f := range h.latest {
		out = append(out, f)
	}
	return &Event{Type: EventSnapshot, Forecasts: out, Time: h.now().UTC()}
}

func (h *Hub) serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.l.Warn("websocket upgrade", logger.Error(err))
		return nil
	}
	client := &Client{hub: h, conn: conn, send: make(chan *Event, 256)}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()
	return nil
}

func (h *Hub) handleCommand(c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		h.l.Debug("websocket command", logger.Error(err))
		return
	}
	if cmd.Command == "subscribe" {
		c.subscribe(cmd.Entities)
	}
}
