package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"execflow/logger"
	"execflow/strategy"
)

// channelKey scopes a registered handler to a channel and an optional filter
// value (e.g. a symbol), matching the exchange's `candles:{key=...}` style
// channel identifiers.
type channelKey struct {
	channel string
	filter  string
}

type handlerEntry struct {
	id      int64
	key     channelKey
	handler strategy.WSHandler
}

// WSManager is a single-multiplexed-socket websocket manager: one connection,
// a reconnect loop with backoff, and a channel dispatch table. It implements
// strategy.WSManager and strategy.Socket.
type WSManager struct {
	url string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers []handlerEntry
	nextID   int64

	connMu sync.Mutex
	conn   *websocket.Conn

	log     *logger.Log
	running bool
}

// NewWSManager creates a manager that will dial url once Start is called.
func NewWSManager(url string) *WSManager {
	return &WSManager{
		url: url,
		log: logger.GetLogger(),
	}
}

// Start dials the socket and begins the reconnect/read loop in the
// background. Safe to call once; a second call returns an error.
func (m *WSManager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("ws manager already running")
	}
	m.running = true
	m.mu.Unlock()

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.readLoop()
	return nil
}

// Stop tears down the socket and waits for the read loop to exit.
func (m *WSManager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	// Cancelling ctx does not interrupt a blocking ReadMessage; closing the
	// live connection does, so the read loop can observe ctx and exit.
	m.connMu.Lock()
	if m.conn != nil {
		_ = m.conn.Close()
	}
	m.connMu.Unlock()
	m.wg.Wait()
}

// OnWS implements strategy.WSManager: attach handler to channel, optionally
// scoped by filter["symbol"] or filter["key"].
func (m *WSManager) OnWS(channel string, filter map[string]string, handler strategy.WSHandler) (unsubscribe func()) {
	key := channelKey{channel: channel}
	if filter != nil {
		if s, ok := filter["symbol"]; ok {
			key.filter = s
		} else if k, ok := filter["key"]; ok {
			key.filter = k
		}
	}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.handlers = append(m.handlers, handlerEntry{id: id, key: key, handler: handler})
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, h := range m.handlers {
			if h.id == id {
				m.handlers = append(m.handlers[:i], m.handlers[i+1:]...)
				return
			}
		}
	}
}

// WithSocket implements strategy.WSManager: hands fn the current socket, or
// an error if none is connected yet.
func (m *WSManager) WithSocket(fn func(strategy.Socket) error) error {
	m.connMu.Lock()
	connected := m.conn != nil
	m.connMu.Unlock()
	if !connected {
		return fmt.Errorf("ws manager has no live socket")
	}
	return fn(m)
}

// Subscribe implements strategy.Socket.
func (m *WSManager) Subscribe(channel string, params map[string]string) error {
	msg := map[string]interface{}{"event": "subscribe", "channel": channel}
	for k, v := range params {
		msg[k] = v
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal subscribe message: %w", err)
	}

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn == nil {
		return fmt.Errorf("no live socket to subscribe on")
	}
	return m.conn.WriteMessage(websocket.TextMessage, payload)
}

func (m *WSManager) readLoop() {
	defer m.wg.Done()
	log := m.log.WithComponent("wsmanager").WithFields(logger.Fields{"worker": "read_loop"})
	reconnectDelay := 2 * time.Second

	for {
		if m.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(m.ctx, m.url, nil)
		if err != nil {
			log.WithError(err).Warn("failed to dial websocket, retrying")
			m.dispatchOpenClose("close")
			if !m.sleepOrDone(reconnectDelay) {
				return
			}
			continue
		}

		m.connMu.Lock()
		m.conn = conn
		m.connMu.Unlock()
		m.dispatchOpenClose("open")
		log.Info("websocket connected")

		m.messageLoop(conn, log)

		m.connMu.Lock()
		m.conn = nil
		m.connMu.Unlock()
		m.dispatchOpenClose("close")

		if m.ctx.Err() != nil {
			return
		}
		log.Warn("websocket disconnected, reconnecting")
		if !m.sleepOrDone(reconnectDelay) {
			return
		}
	}
}

func (m *WSManager) messageLoop(conn *websocket.Conn, log *logger.Entry) {
	defer conn.Close()
	for {
		if m.ctx.Err() != nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.WithError(err).Warn("websocket read error")
			return
		}

		var env struct {
			Channel string          `json:"channel"`
			Key     string          `json:"key"`
			Symbol  string          `json:"symbol"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			log.WithError(err).Debug("failed to decode envelope, dropping message")
			continue
		}

		var payload interface{}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			payload = env.Payload
		}

		filter := env.Key
		if filter == "" {
			filter = env.Symbol
		}
		m.dispatch(env.Channel, filter, payload)
	}
}

func (m *WSManager) dispatch(channel, filter string, payload interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.handlers {
		if h.key.channel != channel {
			continue
		}
		if h.key.filter != "" && h.key.filter != filter {
			continue
		}
		h.handler(payload)
	}
}

func (m *WSManager) dispatchOpenClose(channel string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.handlers {
		if h.key.channel == channel {
			h.handler(nil)
		}
	}
}

func (m *WSManager) sleepOrDone(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
