package rest

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	fiberws "github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"yqhp/bench-engine/pkg/types"
)

const (
	clientBuffer = 256
	pingInterval = 20 * time.Second
	writeWait    = 10 * time.Second
)

// wsClient is one subscriber of the event stream.
type wsClient struct {
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans suite events out to websocket subscribers.
// 慢客户端的缓冲区满时丢弃该客户端的消息，不阻塞事件流。
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
	dropped map[*wsClient]int
	logger  *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		dropped: make(map[*wsClient]int),
		logger:  logger,
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast encodes ev once and queues it for every subscriber.
func (h *Hub) Broadcast(ev types.Event) {
	data, err := sonic.Marshal(ev)
	if err != nil {
		h.logger.Warn("encode event failed", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped[c]++
		}
	}
}

// Close disconnects every subscriber. Later subscriptions are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) subscribe() (*wsClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	c := &wsClient{send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *Hub) unsubscribe(c *wsClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
	dropped := h.dropped[c]
	delete(h.dropped, c)
	c.close()
	return dropped
}

func (h *Hub) handleConnection(conn *fiberws.Conn) {
	client, ok := h.subscribe()
	if !ok {
		_ = conn.Close()
		return
	}
	h.logger.Debug("subscriber connected", zap.String("remote", conn.RemoteAddr().String()))

	// 读循环只用于感知断开
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	h.writePump(conn, client)
	dropped := h.unsubscribe(client)
	h.logger.Debug("subscriber disconnected", zap.Int("dropped", dropped))
}

func (h *Hub) writePump(conn *fiberws.Conn, c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case data := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(fiberws.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(fiberws.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = conn.WriteMessage(fiberws.CloseMessage, nil)
			return
		}
	}
}
