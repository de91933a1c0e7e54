package recording

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethanbaker/meetingroom/pkg/apperr"
	"github.com/ethanbaker/meetingroom/pkg/logging"
	"github.com/ethanbaker/meetingroom/pkg/metrics"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// State is the lifecycle of the session with the recording agent
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateRecording    State = "recording"
	StateStopping     State = "stopping"
	StateError        State = "error"
)

// Default connection settings
const (
	DefaultURL     = "ws://127.0.0.1:4455"
	DefaultScene   = "Reuniao"
	DefaultTimeout = 5 * time.Second
)

// Session is a snapshot of the client's state
type Session struct {
	State     State  `json:"state"`
	LastError string `json:"lastError,omitempty"`
}

// Options configures a recording Client
type Options struct {
	URL      string
	Password string
	Timeout  time.Duration // bounds the handshake and each command
	Metrics  *metrics.Metrics
}

// Client drives an OBS Studio instance over obs-websocket v5. Commands are
// serialized: one request is in flight at a time
type Client struct {
	url      string
	password string
	timeout  time.Duration
	metrics  *metrics.Metrics
	dialer   *websocket.Dialer
	log      zerolog.Logger

	mutex   sync.Mutex
	conn    *websocket.Conn
	state   State
	lastErr string
	nextID  uint64
}

// NewClient creates a disconnected client
func NewClient(opts Options) *Client {
	c := &Client{
		url:      opts.URL,
		password: opts.Password,
		timeout:  opts.Timeout,
		metrics:  opts.Metrics,
		dialer:   &websocket.Dialer{HandshakeTimeout: opts.Timeout},
		log:      logging.For("RECORDING"),
		state:    StateDisconnected,
	}

	if c.url == "" {
		c.url = DefaultURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
		c.dialer.HandshakeTimeout = DefaultTimeout
	}
	if c.metrics == nil {
		c.metrics = metrics.Nop()
	}

	return c
}

// Session returns the current state and last error
func (c *Client) Session() Session {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return Session{State: c.state, LastError: c.lastErr}
}

// EnsureConnected opens and identifies a session unless one is already live
func (c *Client) EnsureConnected(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.ensureConnected(ctx)
}

// StartRecording switches to scene and starts recording. No command is sent if
// the agent cannot be reached
func (c *Client) StartRecording(ctx context.Context, scene string) error {
	if scene == "" {
		scene = DefaultScene
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		c.metrics.RecordingCommandsTotal.WithLabelValues("start", "unreachable").Inc()
		return err
	}

	if _, err := c.call(ctx, "SetCurrentProgramScene", map[string]string{"sceneName": scene}); err != nil {
		c.metrics.RecordingCommandsTotal.WithLabelValues("start", "error").Inc()
		return err
	}
	if _, err := c.call(ctx, "StartRecord", nil); err != nil {
		c.metrics.RecordingCommandsTotal.WithLabelValues("start", "error").Inc()
		return err
	}

	c.state = StateRecording
	c.lastErr = ""
	c.metrics.RecordingCommandsTotal.WithLabelValues("start", "ok").Inc()
	c.log.Info().Str("scene", scene).Msg("recording started")

	return nil
}

// StopRecording stops an active recording
func (c *Client) StopRecording(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		c.metrics.RecordingCommandsTotal.WithLabelValues("stop", "unreachable").Inc()
		return err
	}

	previous := c.state
	c.state = StateStopping

	if _, err := c.call(ctx, "StopRecord", nil); err != nil {
		if errors.Is(err, apperr.ErrCommand) {
			// The session is still alive, the agent refused
			c.state = previous
		}
		c.metrics.RecordingCommandsTotal.WithLabelValues("stop", "error").Inc()
		return err
	}

	c.state = StateConnected
	c.lastErr = ""
	c.metrics.RecordingCommandsTotal.WithLabelValues("stop", "ok").Inc()
	c.log.Info().Msg("recording stopped")

	return nil
}

// Status probes the agent and reports Connected or Disconnected. A dead session
// is detected and replaced by a fresh connection attempt
func (c *Client) Status(ctx context.Context) State {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn != nil {
		if _, err := c.call(ctx, "GetVersion", nil); err == nil {
			return StateConnected
		}
	}

	if err := c.ensureConnected(ctx); err != nil {
		return StateDisconnected
	}
	return StateConnected
}

// Close terminates the session
func (c *Client) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn == nil {
		c.state = StateDisconnected
		return nil
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	c.state = StateDisconnected

	return err
}

/** Internal helpers (mutex must be held) */

// ensureConnected performs Hello -> Identify -> Identified
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.conn != nil && c.state != StateError && c.state != StateDisconnected {
		return nil
	}

	c.dropConn()
	c.state = StateConnecting

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.handshake(ctx)
	if err != nil {
		c.state = StateError
		c.lastErr = err.Error()
		c.log.Warn().Err(err).Str("url", c.url).Msg("failed to connect to recording agent")
		return fmt.Errorf("%w: %s", apperr.ErrConnection, err.Error())
	}

	c.conn = conn
	c.state = StateConnected
	c.lastErr = ""
	c.log.Info().Str("url", c.url).Msg("connected to recording agent")

	return nil
}

func (c *Client) handshake(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	fail := func(err error) (*websocket.Conn, error) {
		conn.Close()
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	var msg envelope
	if err := conn.ReadJSON(&msg); err != nil {
		return fail(fmt.Errorf("read hello: %w", err))
	}
	if msg.Op != opHello {
		return fail(fmt.Errorf("expected hello, got op %d", msg.Op))
	}

	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return fail(fmt.Errorf("decode hello: %w", err))
	}

	ident := identify{RPCVersion: rpcVersion}
	if h.Authentication != nil {
		if c.password == "" {
			return fail(fmt.Errorf("agent requires a password"))
		}
		ident.Authentication = authResponse(c.password, h.Authentication.Salt, h.Authentication.Challenge)
	}

	if err := writeMessage(conn, opIdentify, ident); err != nil {
		return fail(fmt.Errorf("send identify: %w", err))
	}

	if err := conn.ReadJSON(&msg); err != nil {
		// Authentication failures close the socket here
		return fail(fmt.Errorf("read identified: %w", err))
	}
	if msg.Op != opIdentified {
		return fail(fmt.Errorf("expected identified, got op %d", msg.Op))
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Time{})

	return conn, nil
}

// call sends one request and waits for its response
func (c *Client) call(ctx context.Context, requestType string, data any) (json.RawMessage, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("%w: not connected", apperr.ErrConnection)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)

	c.conn.SetWriteDeadline(deadline)
	if err := writeMessage(c.conn, opRequest, request{RequestType: requestType, RequestID: id, RequestData: data}); err != nil {
		return nil, c.transportError(requestType, err)
	}

	c.conn.SetReadDeadline(deadline)
	for {
		var msg envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			return nil, c.transportError(requestType, err)
		}
		if msg.Op != opRequestResponse {
			continue
		}

		var resp requestResponse
		if err := json.Unmarshal(msg.D, &resp); err != nil {
			return nil, c.transportError(requestType, err)
		}
		if resp.RequestID != id {
			continue
		}

		if !resp.RequestStatus.Result {
			c.lastErr = fmt.Sprintf("%s rejected (%d): %s", requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
			return nil, fmt.Errorf("%w: %s", apperr.ErrCommand, c.lastErr)
		}
		return resp.ResponseData, nil
	}
}

// transportError marks the session dead
func (c *Client) transportError(requestType string, err error) error {
	c.dropConn()
	c.state = StateError
	c.lastErr = fmt.Sprintf("%s: %s", requestType, err.Error())
	return fmt.Errorf("%w: %s", apperr.ErrConnection, c.lastErr)
}

func (c *Client) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func writeMessage(conn *websocket.Conn, op int, payload any) error {
	d, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(envelope{Op: op, D: d})
}
