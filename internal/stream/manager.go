// Package stream runs the per-connection WebSocket state machine shared by
// every venue: connect, authenticate, subscribe, read, keep alive,
// reconnect with capped random backoff.
package stream

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	json "github.com/goccy/go-json"

	"github.com/exwrap/martin/internal/observability"
	"github.com/exwrap/martin/internal/telemetry"
)

// State is the connection lifecycle position.
type State int32

const (
	StateInit State = iota
	StateConnecting
	StateAuthenticating
	StateSubscribing
	StateOpen
	StateClosing
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateSubscribing:
		return "SUBSCRIBING"
	case StateOpen:
		return "OPEN"
	case StateClosing:
		return "CLOSING"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "CLOSED"
	}
}

// ActionKind tells the read loop what to do after a frame was handled.
type ActionKind int

const (
	// ActionControl marks a handled control frame (ack, ping reply, log).
	ActionControl ActionKind = iota
	// ActionData marks a successfully decoded data frame; resets the
	// reconnect try counter.
	ActionData
	// ActionReconnect drops the connection and re-enters CONNECTING.
	ActionReconnect
	// ActionStop terminates the stream with an error (venue rejected the
	// subscription or sent a terminal control code).
	ActionStop
)

// Action is a frame handler's verdict, optionally delaying the reconnect.
type Action struct {
	Kind  ActionKind
	Delay time.Duration
}

// Config wires one venue's behavior into the shared state machine.
type Config struct {
	URL      string
	Channels []string

	// ResolveURL computes the dial URL per connection attempt (listen-key
	// sessions); when set it takes precedence over URL.
	ResolveURL func(ctx context.Context) (string, error)

	// Authenticate runs after dial on private streams; nil skips the
	// AUTHENTICATING state.
	Authenticate func(ctx context.Context, conn *websocket.Conn) error
	// Subscribe emits the subscription frames for Channels.
	Subscribe func(ctx context.Context, conn *websocket.Conn, channels []string) error
	// OnFrame handles one frame (already gunzipped for gzip venues).
	OnFrame func(ctx context.Context, conn *websocket.Conn, data []byte) (Action, error)
	// Keepalive runs while the connection is open (app pings, listen-key
	// renewal); it returns when ctx is done. Optional.
	Keepalive func(ctx context.Context, conn *websocket.Conn)

	// GzipBinary gunzips binary frames before OnFrame.
	GzipBinary bool
	// Heartbeat sets the transport-level ping cadence; zero disables it.
	Heartbeat time.Duration

	Name    string
	Logger  observability.Logger
	Metrics *telemetry.Instruments
}

// Manager owns one upstream WebSocket connection.
type Manager struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	backoff *retryBackOff

	conn   *websocket.Conn
	connMu sync.RWMutex

	done chan struct{}
	err  error
}

// NewManager builds a stopped manager for cfg.
func NewManager(ctx context.Context, cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = observability.Log()
	}
	mctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		cfg:     cfg,
		ctx:     mctx,
		cancel:  cancel,
		backoff: newRetryBackOff(),
		done:    make(chan struct{}),
	}
	m.state.Store(int32(StateInit))
	return m
}

// State reports the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Done closes when the run loop has exited.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Err reports the terminal error after Done, nil on a clean stop.
func (m *Manager) Err() error { return m.err }

// Start launches the connection loop.
func (m *Manager) Start() {
	go func() {
		defer close(m.done)
		m.err = m.run()
		m.state.Store(int32(StateClosed))
	}()
}

// Stop requests a clean shutdown; a concurrent WS close is not an error.
func (m *Manager) Stop() {
	m.state.Store(int32(StateClosing))
	m.cancel()
	m.connMu.Lock()
	if m.conn != nil {
		_ = m.conn.Close(websocket.StatusNormalClosure, "shutdown")
		m.conn = nil
	}
	m.connMu.Unlock()
}

func (m *Manager) run() error {
	for {
		if err := m.ctx.Err(); err != nil {
			return nil
		}
		m.state.Store(int32(StateConnecting))

		conn, err := m.dial()
		if err != nil {
			if m.ctx.Err() != nil {
				return nil
			}
			m.cfg.Logger.Warn("ws dial failed",
				observability.String("stream", m.cfg.Name), observability.Err(err))
			m.cfg.Metrics.Reconnect(m.ctx, m.cfg.Name)
			if !m.sleep(m.backoff.NextBackOff()) {
				return nil
			}
			continue
		}

		stop, err := m.session(conn)
		m.setConn(nil)
		_ = conn.Close(websocket.StatusNormalClosure, "")
		if stop {
			return err
		}
		if m.ctx.Err() != nil {
			return nil
		}
		m.state.Store(int32(StateReconnecting))
		m.cfg.Metrics.Reconnect(m.ctx, m.cfg.Name)
		delay := m.backoff.NextBackOff()
		if err != nil {
			m.cfg.Logger.Warn("ws session ended, reconnecting",
				observability.String("stream", m.cfg.Name), observability.Err(err))
		}
		if !m.sleep(delay) {
			return nil
		}
	}
}

// session drives one connection from auth to close. It returns stop=true
// when the stream must not reconnect.
func (m *Manager) session(conn *websocket.Conn) (bool, error) {
	m.setConn(conn)

	if m.cfg.Authenticate != nil {
		m.state.Store(int32(StateAuthenticating))
		if err := m.cfg.Authenticate(m.ctx, conn); err != nil {
			return false, err
		}
	}
	if m.cfg.Subscribe != nil && len(m.cfg.Channels) > 0 {
		m.state.Store(int32(StateSubscribing))
		if err := m.cfg.Subscribe(m.ctx, conn, m.cfg.Channels); err != nil {
			return false, err
		}
	}
	m.state.Store(int32(StateOpen))

	sessionCtx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	if m.cfg.Keepalive != nil {
		go m.cfg.Keepalive(sessionCtx, conn)
	}
	if m.cfg.Heartbeat > 0 {
		go m.heartbeat(sessionCtx, conn)
	}

	return m.readLoop(conn)
}

func (m *Manager) readLoop(conn *websocket.Conn) (bool, error) {
	for {
		msgType, data, err := conn.Read(m.ctx)
		if err != nil {
			if m.ctx.Err() != nil {
				return true, nil
			}
			return false, err
		}
		if msgType == websocket.MessageBinary && m.cfg.GzipBinary {
			data, err = gunzip(data)
			if err != nil {
				m.cfg.Logger.Warn("ws gunzip failed",
					observability.String("stream", m.cfg.Name), observability.Err(err))
				continue
			}
		}

		action, err := m.cfg.OnFrame(m.ctx, conn, data)
		if err != nil {
			m.cfg.Logger.Warn("ws frame handler",
				observability.String("stream", m.cfg.Name), observability.Err(err))
			continue
		}
		switch action.Kind {
		case ActionData:
			m.backoff.Reset()
		case ActionReconnect:
			if action.Delay > 0 && !m.sleep(action.Delay) {
				return true, nil
			}
			return false, nil
		case ActionStop:
			return true, errors.New("stream terminated by venue")
		}
	}
}

func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(m.cfg.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (m *Manager) dial() (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(m.ctx, 15*time.Second)
	defer cancel()
	url := m.cfg.URL
	if m.cfg.ResolveURL != nil {
		resolved, err := m.cfg.ResolveURL(dialCtx)
		if err != nil {
			return nil, err
		}
		url = resolved
	}
	conn, _, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(4 << 20)
	return conn, nil
}

func (m *Manager) setConn(conn *websocket.Conn) {
	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()
}

func (m *Manager) sleep(d time.Duration) bool {
	if d <= 0 {
		return m.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func gunzip(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = reader.Close()
	}()
	return io.ReadAll(io.LimitReader(reader, 8<<20))
}

// WriteJSON marshals v and writes it as one text frame.
func WriteJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
