package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lexiqai/interview-client/internal/audio"
	"github.com/lexiqai/interview-client/internal/capture"
	"github.com/lexiqai/interview-client/internal/observability"
	"github.com/lexiqai/interview-client/internal/playback"
	"github.com/lexiqai/interview-client/internal/resilience"
	"github.com/rs/zerolog"
)

// Capture is the outbound audio side of a session
type Capture interface {
	Start(ctx context.Context) error
	Stop()
}

// Playback is the inbound audio side of a session
type Playback interface {
	Enqueue(text string) error
	Close() error
}

// Options configures a Transport
type Options struct {
	Endpoint string
	Session  SessionConfig

	// NewCapture builds the capture side with the transport as its sink
	NewCapture func(sink capture.Sink) Capture
	Playback   Playback
	Transcript *Transcript

	Dialer           *websocket.Dialer
	Retry            *resilience.RetryConfig
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// Generation tags every notification so owners can discard stale ones.
	// OnChange runs on the goroutine that made the change and may call Stop.
	Generation uint64
	OnChange   func(generation uint64)

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Transport owns one connection to the interview server and drives the
// capture and playback sides from the messages it exchanges. A transport is
// used for exactly one session; after Stop nothing it does can change state.
type Transport struct {
	endpoint   string
	session    SessionConfig
	generation uint64
	onChange   func(uint64)

	capture    Capture
	playback   Playback
	transcript *Transcript
	handlers   map[string]func(Inbound)

	dialer       websocket.Dialer
	retry        *resilience.RetryConfig
	writeTimeout time.Duration

	logger  zerolog.Logger
	metrics *observability.Metrics

	// ctx is cancelled on Stop and bounds device acquisition
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	sessionActive bool
	lastErr       string
	started       bool
	stopped       bool
	peerClosed    bool
	open          bool
	conn          *websocket.Conn
	dialCancel    context.CancelFunc
	readDone      chan struct{}

	// gorilla allows one concurrent writer
	writeMu sync.Mutex

	// callbacks counts OnChange calls in progress
	callbacks atomic.Int32
}

// NewTransport creates a disconnected transport
func NewTransport(opts Options) *Transport {
	ctx, cancel := context.WithCancel(context.Background())

	t := &Transport{
		endpoint:     opts.Endpoint,
		session:      opts.Session,
		generation:   opts.Generation,
		onChange:     opts.OnChange,
		playback:     opts.Playback,
		transcript:   opts.Transcript,
		retry:        opts.Retry,
		writeTimeout: opts.WriteTimeout,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		state:        StateDisconnected,
	}

	if opts.Dialer != nil {
		t.dialer = *opts.Dialer
	} else {
		t.dialer = *websocket.DefaultDialer
	}
	if opts.HandshakeTimeout > 0 {
		t.dialer.HandshakeTimeout = opts.HandshakeTimeout
	}
	if t.transcript == nil {
		t.transcript = NewTranscript()
	}
	if opts.NewCapture != nil {
		t.capture = opts.NewCapture(t)
	}
	if t.capture == nil {
		t.capture = noCapture{}
	}
	if t.playback == nil {
		t.playback = noPlayback{}
	}

	t.handlers = map[string]func(Inbound){
		TypeSessionStarted:  t.onSessionStarted,
		TypeAudioDelta:      t.onAudioDelta,
		TypeTranscriptDelta: t.onTranscriptDelta,
		TypeUserTranscript:  t.onUserTranscript,
		TypeError:           t.onError,
		TypeSessionEnded:    t.onSessionEnded,
	}
	return t
}

// Connect dials the server and sends start_session. Transient dial failures
// are retried; the final failure moves the transport to StateError.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	dialCtx, cancel := context.WithCancel(ctx)
	t.dialCancel = cancel
	t.state = StateConnecting
	t.mu.Unlock()
	defer cancel()
	t.notify()

	if err := validateEndpoint(t.endpoint); err != nil {
		t.logger.Error().Err(err).Msg("Cannot start interview")
		t.fail(MsgStartFailed)
		return &TransportError{Op: "start", Err: err}
	}

	t.logger.Info().Str("endpoint", t.endpoint).Msg("Connecting to interview server")
	t.metrics.RecordDialStart()

	var conn *websocket.Conn
	err := resilience.Retry(dialCtx, func(ctx context.Context) error {
		c, err := t.dial(ctx)
		if err != nil {
			t.logger.Warn().Err(err).Msg("Dial attempt failed")
			return err
		}
		conn = c
		return nil
	}, t.retry, resilience.IsRetryableNetworkError)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		t.logger.Debug().Msg("Transport stopped while dialing, connection discarded")
		return ErrStopped
	}
	if err != nil {
		t.state = StateError
		t.lastErr = MsgConnectionError
		t.mu.Unlock()
		t.metrics.RecordError("dial_error", "transport")
		t.logger.Error().Err(err).Msg("Failed to connect to interview server")
		t.notify()
		return &TransportError{Op: "dial", Err: err}
	}
	done := make(chan struct{})
	t.conn = conn
	t.readDone = done
	t.open = true
	t.state = StateConnected
	t.mu.Unlock()

	t.metrics.RecordSessionOpen()
	t.logger.Info().Msg("Connected to interview server")
	t.notify()

	go t.readLoop(conn, done)

	sessionID := t.session.SessionID
	if sessionID == "" {
		sessionID = FallbackSessionID(time.Now())
		t.logger.Debug().Str("fallback_session_id", sessionID).Msg("No session id supplied, generated one")
	}
	start := StartSession{
		Type:           TypeStartSession,
		JobDescription: t.session.JobDescription,
		SessionID:      sessionID,
	}
	if err := t.write(conn, TypeStartSession, start); err != nil {
		t.fail(MsgConnectionError)
		return err
	}
	t.logger.Info().Msg("Interview session requested")
	return nil
}

// dial performs one handshake. The raw socket is closed as soon as ctx is
// done so that Stop interrupts a handshake stuck on a silent server.
func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := t.dialer
	netDial := dialer.NetDialContext
	if netDial == nil {
		netDial = (&net.Dialer{}).DialContext
	}

	var (
		mu  sync.Mutex
		raw net.Conn
	)
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		c, err := netDial(ctx, network, addr)
		if err == nil {
			mu.Lock()
			raw = c
			mu.Unlock()
		}
		return c, err
	}
	stop := context.AfterFunc(ctx, func() {
		mu.Lock()
		defer mu.Unlock()
		if raw != nil {
			raw.Close()
		}
	})

	conn, _, err := dialer.DialContext(ctx, t.endpoint, nil)
	if !stop() {
		if conn != nil {
			conn.Close()
		}
		return nil, ctx.Err()
	}
	return conn, err
}

// readLoop handles inbound messages until the connection closes
func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.handleClose(conn, err)
			return
		}
		t.dispatch(data)
	}
}

// dispatch routes one raw message to its handler. A malformed message is
// logged and skipped without affecting later ones.
func (t *Transport) dispatch(data []byte) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		t.protocolError(&ProtocolError{Err: err})
		return
	}
	if !t.live() {
		return
	}

	t.metrics.RecordInbound(msg.Type)
	handler, ok := t.handlers[msg.Type]
	if !ok {
		t.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown message type")
		return
	}
	handler(msg)
}

func (t *Transport) onSessionStarted(Inbound) {
	if !t.update(func() { t.sessionActive = true }) {
		return
	}
	t.logger.Info().Msg("Interview session started")
	go t.startCapture()
}

// startCapture acquires the microphone. Device acquisition can take
// arbitrarily long, so the session is re-checked once it returns.
func (t *Transport) startCapture() {
	err := t.capture.Start(t.ctx)
	if err == nil {
		t.mu.Lock()
		keep := !t.stopped && t.sessionActive
		t.mu.Unlock()
		if !keep {
			t.capture.Stop()
		}
		return
	}
	if errors.Is(err, capture.ErrStopped) {
		return
	}

	var permErr *capture.PermissionError
	if errors.As(err, &permErr) {
		t.logger.Error().Err(err).Msg("Microphone unavailable")
		t.fail(MsgMicrophoneDenied)
		return
	}
	t.logger.Error().Err(err).Msg("Failed to start capture")
}

func (t *Transport) onAudioDelta(msg Inbound) {
	if msg.Audio == "" {
		t.protocolError(&ProtocolError{Type: msg.Type, Err: errors.New("missing audio")})
		return
	}
	err := t.playback.Enqueue(msg.Audio)
	switch {
	case err == nil, errors.Is(err, playback.ErrClosed):
	case audio.IsDecodeError(err):
		// already logged and counted by the queue
		t.protocolError(&ProtocolError{Type: msg.Type, Err: err})
	default:
		t.logger.Warn().Err(err).Msg("Audio chunk dropped")
	}
}

func (t *Transport) onTranscriptDelta(msg Inbound) {
	t.update(func() { t.transcript.AppendAssistant(msg.Text) })
}

func (t *Transport) onUserTranscript(msg Inbound) {
	t.update(func() { t.transcript.AppendUser(msg.Text) })
}

func (t *Transport) onError(msg Inbound) {
	message := msg.Message
	if message == "" {
		message = MsgServerError
	}
	t.logger.Warn().Str("server_message", message).Msg("Interview server reported an error")
	t.metrics.RecordError("server_error", "transport")
	t.update(func() {
		t.state = StateError
		t.lastErr = message
	})
}

func (t *Transport) onSessionEnded(Inbound) {
	if !t.update(func() { t.sessionActive = false }) {
		return
	}
	t.logger.Info().Msg("Interview session ended by server")
	t.capture.Stop()
}

// handleClose runs when the read side fails, which is how both a peer close
// and a network failure surface. Anything but a clean close frame leaves
// MsgConnectionError as the last error.
func (t *Transport) handleClose(conn *websocket.Conn, err error) {
	abnormal := !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.peerClosed = true
	t.open = false
	t.state = StateDisconnected
	t.sessionActive = false
	if abnormal {
		t.lastErr = MsgConnectionError
	}
	t.mu.Unlock()

	if abnormal {
		t.logger.Warn().Err(&TransportError{Op: "read", Err: err}).Msg("Connection closed abnormally")
		t.metrics.RecordError("abnormal_close", "transport")
	} else {
		t.logger.Info().Msg("Connection closed by server")
	}

	conn.Close()
	t.metrics.RecordSessionClose()
	t.capture.Stop()
	t.notify()
}

// Stop ends the session: sends stop_session when the socket is open, closes
// it, and tears down capture and playback in parallel. Safe to call at any
// time and more than once. Called from an OnChange callback, it returns once
// the connection is closed and finishes the teardown in the background.
func (t *Transport) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	conn := t.conn
	open := conn != nil && !t.peerClosed
	done := t.readDone
	dialCancel := t.dialCancel
	t.open = false
	t.state = StateDisconnected
	t.sessionActive = false
	t.mu.Unlock()

	t.cancel()
	if dialCancel != nil {
		dialCancel()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t.capture.Stop()
	}()
	go func() {
		defer wg.Done()
		if err := t.playback.Close(); err != nil {
			t.logger.Warn().Err(err).Msg("Error closing playback")
		}
	}()

	if open {
		if err := t.write(conn, TypeStopSession, StopSession{Type: TypeStopSession}); err != nil {
			t.logger.Debug().Err(err).Msg("Failed to send stop_session")
		}
		t.closeConn(conn)
	}

	finish := func() {
		if done != nil {
			<-done
		}
		wg.Wait()

		if conn != nil {
			t.metrics.RecordSessionClose()
		}
		t.logger.Info().Msg("Interview stopped")
		t.notifyAlways()
	}

	// the callback may be running on the read loop or the capture loop,
	// both of which finish waits for
	if t.callbacks.Load() > 0 {
		go finish()
		return
	}
	finish()
}

func (t *Transport) closeConn(conn *websocket.Conn) {
	t.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	t.writeMu.Unlock()
	if err != nil {
		t.logger.Debug().Err(err).Msg("Failed to send close frame")
	}
	if err := conn.Close(); err != nil {
		t.logger.Debug().Err(err).Msg("Error closing connection")
	}
}

// IsOpen reports whether the socket is open. Unlike Connected it stays true
// in StateError until the connection actually closes.
func (t *Transport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// Connected reports whether audio may be sent
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped && t.state == StateConnected && t.conn != nil
}

// SendAudio sends one encoded frame
func (t *Transport) SendAudio(text string) error {
	t.mu.Lock()
	if t.stopped || t.state != StateConnected || t.conn == nil {
		t.mu.Unlock()
		return ErrNotConnected
	}
	conn := t.conn
	t.mu.Unlock()

	if err := t.write(conn, TypeAudio, AudioMessage{Type: TypeAudio, Audio: text}); err != nil {
		t.fail(MsgConnectionError)
		return err
	}
	return nil
}

// write serializes one JSON message onto the connection
func (t *Transport) write(conn *websocket.Conn, msgType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &TransportError{Op: "encode", Err: err}
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.metrics.RecordError("write_error", "transport")
		return &TransportError{Op: "write", Err: err}
	}
	t.metrics.RecordOutbound(msgType)
	return nil
}

// fail records a user-visible error and moves to StateError
func (t *Transport) fail(message string) {
	t.update(func() {
		t.state = StateError
		t.lastErr = message
	})
}

func (t *Transport) protocolError(err *ProtocolError) {
	t.logger.Warn().Err(err).Msg("Ignoring malformed message")
	t.metrics.RecordError("protocol_error", "transport")
}

// update applies fn under the state lock and notifies, unless the transport
// has been stopped. Reports whether fn ran.
func (t *Transport) update(fn func()) bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return false
	}
	fn()
	t.mu.Unlock()
	t.notify()
	return true
}

func (t *Transport) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (t *Transport) notify() {
	if t.live() {
		t.notifyAlways()
	}
}

func (t *Transport) notifyAlways() {
	if t.onChange == nil {
		return
	}
	t.callbacks.Add(1)
	defer t.callbacks.Add(-1)
	t.onChange(t.generation)
}

// State returns the connection state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SessionActive reports whether the server has started the interview and not yet ended it
func (t *Transport) SessionActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sessionActive
}

// Err returns the last user-visible error, or "" if there is none
func (t *Transport) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// Generation returns the tag passed in Options
func (t *Transport) Generation() uint64 {
	return t.generation
}

// Transcript returns the transcript this transport writes to
func (t *Transport) Transcript() *Transcript {
	return t.transcript
}

type noCapture struct{}

func (noCapture) Start(context.Context) error { return nil }
func (noCapture) Stop()                       {}

type noPlayback struct{}

func (noPlayback) Enqueue(string) error { return nil }
func (noPlayback) Close() error         { return nil }
