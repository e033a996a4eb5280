package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matter-conformance/yamltests/pkg/wire"
)

// Connection defaults.
const (
	DefaultAddress          = "localhost"
	DefaultPort             = 9002
	DefaultRetryCount       = 5
	DefaultRetryInterval    = time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// ServerConfig describes an interactive server process launched before
// connecting.
type ServerConfig struct {
	// Path is the server executable.
	Path string

	// Arguments are split on whitespace and passed to the server.
	Arguments string

	// Output receives the server's stdout and stderr. Nil discards it.
	Output io.Writer
}

// WebSocketConfig configures a WebSocket transport.
type WebSocketConfig struct {
	Address string
	Port    int

	// RetryCount is the number of retries after the first failed attempt.
	RetryCount int

	// RetryInterval is the wait between attempts.
	RetryInterval time.Duration

	// HandshakeTimeout bounds a single connection attempt.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds the wait for each payload when the context has
	// no deadline (0 = no timeout).
	ReadTimeout time.Duration

	// Server, when set, is launched by Start and killed by Stop.
	Server *ServerConfig

	// Hooks observes connection attempts.
	Hooks ConnectionHooks
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		Address:          DefaultAddress,
		Port:             DefaultPort,
		RetryCount:       DefaultRetryCount,
		RetryInterval:    DefaultRetryInterval,
		HandshakeTimeout: DefaultHandshakeTimeout,
		Hooks:            NoopConnectionHooks{},
	}
}

// URL returns the ws:// endpoint for the configured address and port.
func (c WebSocketConfig) URL() string {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(c.Address, strconv.Itoa(c.Port))}
	return u.String()
}

// WebSocket is a Transport over a persistent WebSocket connection.
type WebSocket struct {
	config WebSocketConfig
	url    string
	dialer *websocket.Dialer

	state atomic.Int32

	// mu serializes Execute; one request is in flight at a time.
	mu     sync.Mutex
	conn   *websocket.Conn
	server *exec.Cmd
}

// NewWebSocket creates a WebSocket transport (not yet connected).
func NewWebSocket(config WebSocketConfig) *WebSocket {
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.RetryCount < 0 {
		config.RetryCount = 0
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if config.Hooks == nil {
		config.Hooks = NoopConnectionHooks{}
	}
	return &WebSocket{
		config: config,
		url:    config.URL(),
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}
}

// URL returns the endpoint this transport connects to.
func (w *WebSocket) URL() string {
	return w.url
}

// State returns the current connection state.
func (w *WebSocket) State() State {
	return State(w.state.Load())
}

// Start launches the server if configured and connects to it, retrying
// failed attempts up to the retry budget.
func (w *WebSocket) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateStopped), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	if w.config.Server != nil {
		if err := w.startServer(); err != nil {
			w.state.Store(int32(StateStopped))
			return err
		}
	}

	conn, err := w.connect(ctx)
	if err != nil {
		w.stopServer()
		w.state.Store(int32(StateStopped))
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
	w.state.Store(int32(StateConnected))
	return nil
}

func (w *WebSocket) connect(ctx context.Context) (*websocket.Conn, error) {
	hooks := w.config.Hooks
	attempts := 0
	for {
		attempts++
		hooks.Connecting(w.url)
		start := time.Now()
		conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
		if err == nil {
			hooks.Success(time.Since(start))
			return conn, nil
		}
		hooks.Failure(time.Since(start))

		if attempts > w.config.RetryCount || ctx.Err() != nil {
			hooks.Abort(w.url)
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return nil, &ConnectError{URL: w.url, Attempts: attempts, Err: err}
		}

		hooks.Retry(w.config.RetryInterval)
		timer := time.NewTimer(w.config.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			hooks.Abort(w.url)
			return nil, &ConnectError{URL: w.url, Attempts: attempts, Err: ctx.Err()}
		case <-timer.C:
		}
	}
}

// Execute sends request and collects payloads until a terminal marker.
// An empty request sends nothing and returns after the first payload.
func (w *WebSocket) Execute(ctx context.Context, request string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	conn := w.conn
	if conn == nil {
		return nil, ErrNotConnected
	}

	// Unblock pending I/O when ctx ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
		_ = conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	if request != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(request)); err != nil {
			return nil, w.fail(ctx, fmt.Errorf("send request: %w", err))
		}
	}

	var payloads []string
	for {
		if err := conn.SetReadDeadline(w.readDeadline(ctx)); err != nil {
			return payloads, w.fail(ctx, err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return payloads, w.fail(ctx, fmt.Errorf("receive response: %w", err))
		}
		payload := string(data)
		payloads = append(payloads, payload)
		if request == "" || wire.IsTerminal(payload) {
			return payloads, nil
		}
	}
}

func (w *WebSocket) readDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	if w.config.ReadTimeout > 0 {
		return time.Now().Add(w.config.ReadTimeout)
	}
	return time.Time{}
}

// fail drops the connection after an I/O error; gorilla connections are
// unusable once a read or write has failed. Caller must hold w.mu.
func (w *WebSocket) fail(ctx context.Context, err error) error {
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.state.Store(int32(StateStopped))
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

// Stop closes the connection and kills a launched server.
// It is safe to call Stop multiple times.
func (w *WebSocket) Stop() error {
	w.state.Store(int32(StateClosing))
	defer w.state.Store(int32(StateStopped))

	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}
	w.stopServer()
	return err
}

func (w *WebSocket) startServer() error {
	cfg := w.config.Server
	cmd := exec.Command(cfg.Path, strings.Fields(cfg.Arguments)...)
	if cfg.Output != nil {
		cmd.Stdout = cfg.Output
		cmd.Stderr = cfg.Output
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch server %s: %w", cfg.Path, err)
	}
	w.server = cmd
	return nil
}

func (w *WebSocket) stopServer() {
	if w.server == nil {
		return
	}
	if w.server.Process != nil {
		_ = w.server.Process.Kill()
	}
	_ = w.server.Wait()
	w.server = nil
}

// Compile-time interface satisfaction check.
var _ Transport = (*WebSocket)(nil)
