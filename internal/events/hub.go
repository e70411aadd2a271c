// Package events streams monitor and reload messages to websocket clients.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/eapache/queue"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hotswap-go/infrastructure/alert"
	"hotswap-go/monitor/logschema"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
)

// Event is the JSON frame sent to clients.
type Event struct {
	Event     string                 `json:"event,omitempty"`
	Source    string                 `json:"source"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Timestamp time.Time              `json:"ts"`
}

// Stats 接收连接数与发布计数，由 metrics.Collector 实现
type Stats interface {
	SetEventClients(n int)
	RecordEventPublished()
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out alerts to websocket clients and keeps the last events so new
// clients can catch up. It implements alert.Channel.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	history  *queue.Queue
	limit    int
	closed   bool
	upgrader websocket.Upgrader
	stats    Stats
	logger   *zap.Logger
}

// NewHub 创建事件中心，limit 为回放条数（0 表示不回放）
func NewHub(limit int, stats Stats, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		history: queue.New(),
		limit:   limit,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		stats:  stats,
		logger: logger.Named("events"),
	}
}

// Name 返回通道名称
func (h *Hub) Name() string { return "events" }

// Send publishes an alert. Events with a known schema must carry its fields.
func (h *Hub) Send(a alert.Alert) error {
	ev := Event{
		Source:    a.Source,
		Level:     a.Level,
		Message:   a.Message,
		Timestamp: a.Timestamp,
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if len(a.Fields) > 0 {
		ev.Fields = make(map[string]interface{}, len(a.Fields))
		for k, v := range a.Fields {
			if k == "event" {
				ev.Event, _ = v.(string)
				continue
			}
			ev.Fields[k] = v
		}
	}
	if err := logschema.Validate(ev.Event, ev.Fields); err != nil {
		return err
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	h.publish(raw)
	return nil
}

func (h *Hub) publish(raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if h.limit > 0 {
		for h.history.Length() >= h.limit {
			h.history.Remove()
		}
		h.history.Add(raw)
	}
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			// 慢客户端直接断开
			h.dropLocked(c)
		}
	}
	if h.stats != nil {
		h.stats.RecordEventPublished()
	}
}

// History returns the buffered events, oldest first.
func (h *Hub) History() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.historyLocked()
}

func (h *Hub) historyLocked() [][]byte {
	out := make([][]byte, 0, h.history.Length())
	for i := 0; i < h.history.Length(); i++ {
		out = append(out, h.history.Get(i).([]byte))
	}
	return out
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	// 回放与注册在同一把锁内，保证不丢也不重
	backlog := h.historyLocked()
	h.clients[c] = struct{}{}
	h.statsLocked()
	h.mu.Unlock()

	go h.writeLoop(c, backlog)
	h.readLoop(c)
}

// readLoop only handles control frames and detects disconnects.
func (h *Hub) readLoop(c *client) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *client, backlog [][]byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for _, raw := range backlog {
		if err := h.write(c, websocket.TextMessage, raw); err != nil {
			return
		}
	}
	for {
		select {
		case raw, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := h.write(c, websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := h.write(c, websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) write(c *client, kind int, raw []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, raw)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.statsLocked()
}

func (h *Hub) statsLocked() {
	if h.stats != nil {
		h.stats.SetEventClients(len(h.clients))
	}
}

// Close 断开所有客户端，之后的事件被丢弃
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}
