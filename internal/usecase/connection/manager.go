// Package connection keeps one live duplex channel open for a user session.
//
// The Manager dials the live endpoint, announces presence, answers the
// heartbeat, and reconnects with exponential backoff after an abnormal
// close. Inbound frames go to listeners registered with On; frames of the
// notification-worthy types are also turned into LocalNotification records
// published on the Notifications feed.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"farm-notify/internal/domain/entity"
)

// ErrSessionActive is returned by Connect while a different user/farm pair
// holds the live channel.
var ErrSessionActive = errors.New("another live session is active")

// Mode tells the caller how to receive updates.
type Mode string

const (
	ModeLive    Mode = "live"
	ModePolling Mode = "polling"
)

// maxBackoffShift caps the exponent so the delay cannot overflow.
const maxBackoffShift = 16

// Config controls the live channel client.
type Config struct {
	// Enabled switches the live channel on. When false Connect returns
	// immediately and callers fall back to polling.
	Enabled bool
	URL     string

	ConnectTimeout       time.Duration
	HeartbeatInterval    time.Duration
	ReconnectBase        time.Duration
	MaxReconnectAttempts int

	// FeedBuffer is the per-subscriber buffer of the status and
	// notification feeds.
	FeedBuffer int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		ConnectTimeout:       10 * time.Second,
		HeartbeatInterval:    30 * time.Second,
		ReconnectBase:        2 * time.Second,
		MaxReconnectAttempts: 5,
		FeedBuffer:           16,
	}
}

// BackoffDelay returns ReconnectBase * 2^(attempt-1).
func (c Config) BackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxBackoffShift {
		shift = maxBackoffShift
	}
	return c.ReconnectBase << shift
}

// ConnectResult is the outcome of Connect.
type ConnectResult struct {
	Mode  Mode
	State entity.ConnectionState
	Err   error
}

// ConnectionStatus is published on every state change.
type ConnectionStatus struct {
	State   entity.ConnectionState
	Attempt int
	Err     error
	At      time.Time
}

// Listener receives inbound frames of one type. A returned error is logged.
type Listener func(frame entity.Frame) error

// attempt is the shared outcome of one in-flight Connect.
type attempt struct {
	done   chan struct{}
	result ConnectResult
	err    error
}

func newAttempt() *attempt { return &attempt{done: make(chan struct{})} }

func (a *attempt) wait(ctx context.Context) (ConnectResult, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return ConnectResult{Mode: ModePolling, State: entity.StateConnecting, Err: ctx.Err()}, ctx.Err()
	}
}

// resolve completes a and returns nil so callers can drop their reference.
func resolve(a *attempt, res ConnectResult, err error) *attempt {
	if a != nil {
		a.result, a.err = res, err
		close(a.done)
	}
	return nil
}

// Manager owns at most one live session.
type Manager struct {
	cfg    Config
	dialer Dialer
	tokens TokenSource
	logger *slog.Logger
	now    func() time.Time

	// opMu serializes Connect setup against Disconnect teardown
	opMu sync.Mutex

	mu       sync.Mutex
	session  *entity.Session
	inflight *attempt
	cancel   context.CancelFunc
	lastErr  error
	wg       sync.WaitGroup

	lmu       sync.RWMutex
	listeners map[entity.FrameType]map[uint64]Listener
	nextID    uint64
	// dispatching is non-zero while the read goroutine runs listeners
	dispatching atomic.Int32

	statuses      *feed[ConnectionStatus]
	notifications *feed[entity.LocalNotification]
}

// NewManager creates a Manager. tokens may be nil only when the channel is disabled.
func NewManager(cfg Config, dialer Dialer, tokens TokenSource, logger *slog.Logger) *Manager {
	def := DefaultConfig()
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = def.ReconnectBase
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:           cfg,
		dialer:        dialer,
		tokens:        tokens,
		logger:        logger,
		now:           time.Now,
		listeners:     make(map[entity.FrameType]map[uint64]Listener),
		statuses:      newFeed[ConnectionStatus]("status", cfg.FeedBuffer),
		notifications: newFeed[entity.LocalNotification]("notification", cfg.FeedBuffer),
	}
}

// Connect opens the live channel for userID on farmID and waits for the
// first dial outcome. A second call for the same pair while a session is
// running shares that session instead of dialing again.
//
// Transport failures are not returned as errors: the result reports polling
// mode and the reconnect loop keeps trying in the background. A rejected or
// missing token returns entity.ErrAuth and ends the session.
func (m *Manager) Connect(ctx context.Context, userID, farmID int64) (ConnectResult, error) {
	if !m.cfg.Enabled {
		m.logger.Debug("live channel disabled, using polling",
			slog.Int64("user_id", userID),
			slog.Int64("farm_id", farmID))
		return ConnectResult{Mode: ModePolling, State: entity.StateDisabled}, nil
	}

	m.opMu.Lock()
	m.mu.Lock()
	if s := m.session; s != nil && m.cancel != nil {
		if s.UserID != userID || s.FarmID != farmID {
			m.mu.Unlock()
			m.opMu.Unlock()
			return ConnectResult{}, fmt.Errorf("user %d farm %d holds the channel: %w", s.UserID, s.FarmID, ErrSessionActive)
		}
		a := m.inflight
		res := m.currentLocked()
		m.mu.Unlock()
		m.opMu.Unlock()
		if a != nil {
			return a.wait(ctx)
		}
		return res, nil
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &entity.Session{UserID: userID, FarmID: farmID, State: entity.StateConnecting}
	a := newAttempt()
	m.session = sess
	m.inflight = a
	m.cancel = cancel
	m.lastErr = nil
	m.wg.Add(1)
	m.mu.Unlock()
	m.opMu.Unlock()

	m.publish(entity.StateConnecting, 0, nil)
	go m.run(sessCtx, cancel, sess, a)
	return a.wait(ctx)
}

func (m *Manager) currentLocked() ConnectResult {
	if m.session.State == entity.StateOpen {
		return ConnectResult{Mode: ModeLive, State: entity.StateOpen}
	}
	return ConnectResult{Mode: ModePolling, State: m.session.State, Err: m.lastErr}
}

// run is the session loop. It owns the transport and the reconnect timer.
func (m *Manager) run(ctx context.Context, cancel context.CancelFunc, sess *entity.Session, first *attempt) {
	defer m.wg.Done()
	defer cancel()

	log := m.logger.With(slog.Int64("user_id", sess.UserID), slog.Int64("farm_id", sess.FarmID))
	attempts := 0
	for {
		conn, err := m.dial(ctx, sess)
		if err == nil {
			attempts = 0
			m.opened(sess)
			log.Info("live channel open")
			first = resolve(first, ConnectResult{Mode: ModeLive, State: entity.StateOpen}, nil)

			code, readErr := m.serve(ctx, conn, sess)
			clientConnected.Set(0)
			if ctx.Err() != nil {
				return
			}
			if code == CloseNormalClosure {
				log.Info("live channel closed by server")
				m.finish(sess, entity.StateClosed, 0, nil)
				return
			}
			err = fmt.Errorf("%w: %v", entity.ErrTransport, readErr)
			log.Warn("live channel closed abnormally", slog.Int("code", code), slog.Any("error", readErr))
		}

		switch {
		case ctx.Err() != nil:
			resolve(first, ConnectResult{Mode: ModePolling, State: entity.StateClosed, Err: ctx.Err()}, nil)
			return
		case errors.Is(err, entity.ErrAuth):
			log.Warn("live channel authentication failed", slog.Any("error", err))
			m.finish(sess, entity.StateClosed, attempts, err)
			resolve(first, ConnectResult{Mode: ModePolling, State: entity.StateClosed, Err: err}, err)
			return
		}

		attempts++
		if attempts > m.cfg.MaxReconnectAttempts {
			log.Error("live channel offline, reconnect attempts exhausted",
				slog.Int("attempts", attempts-1),
				slog.Any("error", err))
			clientOfflineTotal.Inc()
			m.finish(sess, entity.StateOffline, attempts-1, err)
			resolve(first, ConnectResult{Mode: ModePolling, State: entity.StateOffline, Err: err}, nil)
			return
		}

		delay := m.cfg.BackoffDelay(attempts)
		m.setState(sess, entity.StateReconnecting, attempts, err)
		first = resolve(first, ConnectResult{Mode: ModePolling, State: entity.StateReconnecting, Err: err}, nil)
		clientReconnectsTotal.Inc()
		log.Info("live channel reconnect scheduled",
			slog.Int("attempt", attempts),
			slog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// dial fetches a token, opens the transport and announces presence.
func (m *Manager) dial(ctx context.Context, sess *entity.Session) (Conn, error) {
	if m.tokens == nil {
		return nil, fmt.Errorf("%w: no token source", entity.ErrAuth)
	}
	token, err := m.tokens.Token(ctx, sess.UserID, sess.FarmID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrAuth, err)
	}
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", entity.ErrAuth)
	}

	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()
	conn, err := m.dialer.Dial(dialCtx, m.cfg.URL, token)
	if err != nil {
		if !errors.Is(err, entity.ErrAuth) && !errors.Is(err, entity.ErrTransport) {
			err = fmt.Errorf("%w: %v", entity.ErrTransport, err)
		}
		return nil, err
	}

	presence, err := json.Marshal(entity.NewPresenceFrame(sess.UserID, sess.FarmID, m.now()))
	if err != nil {
		_ = conn.Close(CloseAbnormal, "")
		return nil, fmt.Errorf("encode presence: %w", err)
	}
	if err := conn.WriteMessage(presence); err != nil {
		_ = conn.Close(CloseAbnormal, "")
		return nil, fmt.Errorf("%w: send presence: %v", entity.ErrTransport, err)
	}
	return conn, nil
}

// serve reads frames until the transport closes and returns the close code.
func (m *Manager) serve(ctx context.Context, conn Conn, sess *entity.Session) (int, error) {
	hbCtx, stop := context.WithCancel(ctx)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		m.heartbeat(hbCtx, ctx, conn)
	}()

	snapshot := entity.Session{UserID: sess.UserID, FarmID: sess.FarmID}
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			stop()
			hb.Wait()
			return closeCode(err), err
		}
		m.handle(data, snapshot)
	}
}

// heartbeat pings the transport and closes it when the session ends, when a
// ping fails, or when the read loop has stopped.
func (m *Manager) heartbeat(ctx, sessCtx context.Context, conn Conn) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if sessCtx.Err() != nil {
				_ = conn.Close(CloseNormalClosure, "client disconnect")
			} else {
				_ = conn.Close(CloseAbnormal, "")
			}
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				m.logger.Warn("live channel heartbeat failed", slog.Any("error", err))
				_ = conn.Close(CloseAbnormal, "heartbeat failed")
				return
			}
		}
	}
}

func (m *Manager) handle(data []byte, sess entity.Session) {
	var f entity.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		m.logger.Warn("dropping malformed frame", slog.Any("error", err), slog.Int("size", len(data)))
		return
	}
	if f.Type == entity.FrameHeartbeat {
		return
	}

	m.dispatch(f)

	if f.Type.NotificationWorthy() {
		n := synthesize(f, sess, m.now())
		localNotificationsTotal.WithLabelValues(string(f.Type)).Inc()
		m.notifications.publish(n)
	}
}

// dispatch calls every listener for f.Type in turn. One listener failing
// does not stop the rest.
func (m *Manager) dispatch(f entity.Frame) {
	m.lmu.RLock()
	ls := make([]Listener, 0, len(m.listeners[f.Type]))
	for _, l := range m.listeners[f.Type] {
		ls = append(ls, l)
	}
	m.lmu.RUnlock()

	m.dispatching.Add(1)
	defer m.dispatching.Add(-1)
	for _, l := range ls {
		m.invoke(l, f)
	}
}

func (m *Manager) invoke(l Listener, f entity.Frame) {
	defer func() {
		if r := recover(); r != nil {
			listenerErrorsTotal.WithLabelValues(string(f.Type), "panic").Inc()
			m.logger.Error("panic in frame listener",
				slog.String("type", string(f.Type)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	if err := l(f); err != nil {
		listenerErrorsTotal.WithLabelValues(string(f.Type), "error").Inc()
		m.logger.Warn("frame listener failed",
			slog.String("type", string(f.Type)),
			slog.Any("error", err))
	}
}

// On registers l for frames of type t and returns its disposer.
func (m *Manager) On(t entity.FrameType, l Listener) (unsubscribe func()) {
	m.lmu.Lock()
	id := m.nextID
	m.nextID++
	if m.listeners[t] == nil {
		m.listeners[t] = make(map[uint64]Listener)
	}
	m.listeners[t][id] = l
	m.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.lmu.Lock()
			delete(m.listeners[t], id)
			m.lmu.Unlock()
		})
	}
}

// Statuses subscribes to connection status changes.
func (m *Manager) Statuses(ctx context.Context) (<-chan ConnectionStatus, func()) {
	return m.statuses.subscribe(ctx)
}

// Notifications subscribes to local notifications synthesized from inbound frames.
func (m *Manager) Notifications(ctx context.Context) (<-chan entity.LocalNotification, func()) {
	return m.notifications.subscribe(ctx)
}

/* ─── state ─── */

func (m *Manager) opened(sess *entity.Session) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	sess.State = entity.StateOpen
	sess.ReconnectAttempts = 0
	m.inflight = nil
	m.lastErr = nil
	m.mu.Unlock()

	clientConnected.Set(1)
	m.publish(entity.StateOpen, 0, nil)
}

func (m *Manager) setState(sess *entity.Session, state entity.ConnectionState, attempt int, err error) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	sess.State = state
	sess.ReconnectAttempts = attempt
	m.inflight = nil
	m.lastErr = err
	m.mu.Unlock()

	m.publish(state, attempt, err)
}

// finish records a terminal state and releases the session slot.
func (m *Manager) finish(sess *entity.Session, state entity.ConnectionState, attempt int, err error) {
	m.mu.Lock()
	if m.session != sess {
		m.mu.Unlock()
		return
	}
	sess.State = state
	sess.ReconnectAttempts = attempt
	m.inflight = nil
	m.cancel = nil
	m.lastErr = err
	m.mu.Unlock()

	m.publish(state, attempt, err)
}

func (m *Manager) publish(state entity.ConnectionState, attempt int, err error) {
	m.statuses.publish(ConnectionStatus{State: state, Attempt: attempt, Err: err, At: m.now()})
}

// State returns the current session state, or idle when there is none.
func (m *Manager) State() entity.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return entity.StateIdle
	}
	return m.session.State
}

// Session returns a copy of the current session.
func (m *Manager) Session() (entity.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return entity.Session{}, false
	}
	return *m.session, true
}

// Disconnect ends the session: the reconnect timer is canceled, the
// transport is closed with a normal closure and every listener is removed.
// It returns once the session goroutines have exited. Called from a
// listener it cannot wait for the read goroutine it runs on; that goroutine
// exits as soon as the listener returns. Calling it again is a no-op.
func (m *Manager) Disconnect() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	cancel := m.cancel
	sess := m.session
	m.cancel = nil
	m.inflight = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m.dispatching.Load() == 0 {
		m.wg.Wait()
	}

	if cancel != nil && sess != nil {
		m.mu.Lock()
		if m.session == sess {
			sess.State = entity.StateClosed
			sess.ReconnectAttempts = 0
		}
		m.mu.Unlock()
		clientConnected.Set(0)
		m.publish(entity.StateClosed, 0, nil)
		m.logger.Info("live channel disconnected",
			slog.Int64("user_id", sess.UserID),
			slog.Int64("farm_id", sess.FarmID))
	}

	m.lmu.Lock()
	clear(m.listeners)
	m.lmu.Unlock()
}

// Close disconnects and ends every feed subscription.
func (m *Manager) Close() {
	m.Disconnect()
	m.statuses.close()
	m.notifications.close()
}
