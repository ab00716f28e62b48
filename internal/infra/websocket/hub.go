// Package websocket is the gorilla/websocket transport for the live channel:
// the server side Hub that farm clients connect to, and the client side
// Dialer used by the connection manager.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"farm-notify/internal/domain/entity"
)

// ErrUnknownEndpoint is returned by SendTo for an endpoint that has gone away.
var ErrUnknownEndpoint = errors.New("unknown live endpoint")

// HubConfig configures the server side of the live channel.
type HubConfig struct {
	// PingInterval is how often the hub pings every connection. A connection
	// that has not answered for two intervals is dropped.
	PingInterval time.Duration
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// ReadLimit is the largest inbound frame accepted.
	ReadLimit int64
	// AllowedOrigins restricts browser origins; empty allows all.
	AllowedOrigins []string
}

// DefaultHubConfig returns the production defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    4096,
	}
}

// endpoint is one open connection.
type endpoint struct {
	id       string
	userID   int64
	farmID   int64
	conn     *websocket.Conn
	writeMu  sync.Mutex
	lastSeen atomic.Int64 // unix nanos
}

func (e *endpoint) write(data []byte, timeout time.Duration) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	_ = e.conn.SetWriteDeadline(time.Now().Add(timeout))
	return e.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub keeps the set of live connections per user. It implements the push
// transport used by the push channel provider.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	byUser map[int64]map[string]*endpoint
	byID   map[string]*endpoint
}

// NewHub creates a Hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultHubConfig().PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultHubConfig().WriteTimeout
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultHubConfig().ReadLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		cfg:    cfg,
		logger: logger,
		byUser: make(map[int64]map[string]*endpoint),
		byID:   make(map[string]*endpoint),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser client
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request and runs the connection until it closes.
// Authentication happens before Serve is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID, farmID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.logger.Warn("live upgrade failed", slog.Any("error", err))
		return
	}

	ep := &endpoint{
		id:     uuid.NewString(),
		userID: userID,
		farmID: farmID,
		conn:   conn,
	}
	ep.lastSeen.Store(time.Now().UnixNano())
	h.add(ep)
	defer h.remove(ep)

	h.readLoop(ep)
}

func (h *Hub) add(ep *endpoint) {
	h.mu.Lock()
	if _, ok := h.byUser[ep.userID]; !ok {
		h.byUser[ep.userID] = make(map[string]*endpoint)
	}
	h.byUser[ep.userID][ep.id] = ep
	h.byID[ep.id] = ep
	total := len(h.byUser[ep.userID])
	h.mu.Unlock()

	liveConnections.Inc()
	h.logger.Info("live endpoint connected",
		slog.Int64("user_id", ep.userID),
		slog.Int64("farm_id", ep.farmID),
		slog.String("endpoint_id", ep.id),
		slog.Int("user_endpoints", total))
}

func (h *Hub) remove(ep *endpoint) {
	h.mu.Lock()
	_, present := h.byID[ep.id]
	if present {
		delete(h.byID, ep.id)
		if eps, ok := h.byUser[ep.userID]; ok {
			delete(eps, ep.id)
			if len(eps) == 0 {
				delete(h.byUser, ep.userID)
			}
		}
	}
	h.mu.Unlock()
	_ = ep.conn.Close()
	if !present {
		return
	}

	liveConnections.Dec()
	h.logger.Info("live endpoint disconnected",
		slog.Int64("user_id", ep.userID),
		slog.String("endpoint_id", ep.id))

	uid := ep.userID
	h.broadcastFarm(ep.farmID, uid, entity.Frame{
		Type:      entity.FramePresenceOffline,
		Payload:   entity.PresencePayload{UserID: uid, FarmID: ep.farmID},
		Timestamp: time.Now(),
		UserID:    &uid,
	})
}

func (h *Hub) readLoop(ep *endpoint) {
	pongWait := 2 * h.cfg.PingInterval
	ep.conn.SetReadLimit(h.cfg.ReadLimit)
	_ = ep.conn.SetReadDeadline(time.Now().Add(pongWait))
	ep.conn.SetPongHandler(func(string) error {
		ep.lastSeen.Store(time.Now().UnixNano())
		return ep.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ep.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("live endpoint read error",
					slog.String("endpoint_id", ep.id),
					slog.Any("error", err))
			}
			return
		}
		ep.lastSeen.Store(time.Now().UnixNano())
		_ = ep.conn.SetReadDeadline(time.Now().Add(pongWait))

		var f entity.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			h.logger.Debug("ignoring malformed live frame",
				slog.String("endpoint_id", ep.id),
				slog.Any("error", err))
			continue
		}
		liveFramesTotal.WithLabelValues("in", string(f.Type)).Inc()
		h.handleInbound(ep, f)
	}
}

// handleInbound answers heartbeats and relays presence to the rest of the farm.
func (h *Hub) handleInbound(ep *endpoint, f entity.Frame) {
	switch f.Type {
	case entity.FrameHeartbeat:
		_ = h.send(ep, entity.Frame{Type: entity.FrameHeartbeat, Payload: entity.HeartbeatPayload{}, Timestamp: time.Now()})
	case entity.FramePresenceOnline:
		uid := ep.userID
		h.broadcastFarm(ep.farmID, uid, entity.Frame{
			Type:      entity.FramePresenceOnline,
			Payload:   entity.PresencePayload{UserID: uid, FarmID: ep.farmID},
			Timestamp: time.Now(),
			UserID:    &uid,
		})
	}
}

func (h *Hub) send(ep *endpoint, f entity.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := ep.write(data, h.cfg.WriteTimeout); err != nil {
		liveWriteFailuresTotal.Inc()
		return fmt.Errorf("%w: write to %s: %v", entity.ErrTransport, ep.id, err)
	}
	liveFramesTotal.WithLabelValues("out", string(f.Type)).Inc()
	return nil
}

// broadcastFarm sends f to every endpoint on farmID except those of exceptUser.
func (h *Hub) broadcastFarm(farmID, exceptUser int64, f entity.Frame) {
	h.mu.RLock()
	targets := make([]*endpoint, 0)
	for _, ep := range h.byID {
		if ep.farmID == farmID && ep.userID != exceptUser {
			targets = append(targets, ep)
		}
	}
	h.mu.RUnlock()

	for _, ep := range targets {
		if err := h.send(ep, f); err != nil {
			h.logger.Debug("presence relay failed",
				slog.String("endpoint_id", ep.id),
				slog.Any("error", err))
		}
	}
}

// Endpoints lists the ids of the user's open connections.
func (h *Hub) Endpoints(userID int64) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.byUser[userID]))
	for id := range h.byUser[userID] {
		ids = append(ids, id)
	}
	return ids
}

// SendTo writes f to one endpoint. The write is synchronous, so a nil error
// means the frame reached the socket.
func (h *Hub) SendTo(ctx context.Context, endpointID string, f entity.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.RLock()
	ep, ok := h.byID[endpointID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", endpointID, ErrUnknownEndpoint)
	}
	if err := h.send(ep, f); err != nil {
		// a broken socket is dropped; the client reconnects
		go h.remove(ep)
		return err
	}
	return nil
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// Run pings every connection each PingInterval and drops silent ones.
// It returns when ctx is done, closing every connection.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.heartbeat()
		}
	}
}

func (h *Hub) heartbeat() {
	deadline := time.Now().Add(-2 * h.cfg.PingInterval).UnixNano()

	h.mu.RLock()
	eps := make([]*endpoint, 0, len(h.byID))
	for _, ep := range h.byID {
		eps = append(eps, ep)
	}
	h.mu.RUnlock()

	for _, ep := range eps {
		if ep.lastSeen.Load() < deadline {
			h.remove(ep)
			continue
		}
		// WriteControl is safe alongside concurrent writers
		if err := ep.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
			h.remove(ep)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	eps := make([]*endpoint, 0, len(h.byID))
	for _, ep := range h.byID {
		eps = append(eps, ep)
	}
	h.mu.RUnlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, ep := range eps {
		_ = ep.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		h.remove(ep)
	}
}
