package o3chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/EetuSeppa/O3-chat-client/internal/clock"
	"github.com/google/uuid"
)

const (
	// DefaultConnectTimeout bounds dialing and the TLS handshake.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultRequestTimeout bounds a whole request/response exchange.
	DefaultRequestTimeout = 30 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Server paths this client implements.
const (
	pathChat          = "chat"
	pathRegistration  = "registration"
	pathUpdateProfile = "updateUserInfo"
	pathCreateChannel = "createChannel"
	pathChangeChannel = "changeChannel"
)

// Config configures a Client.
type Config struct {
	// Credentials is read at the start of every operation. Required.
	Credentials CredentialContext
	// HTTPClient is used for all requests. If nil, a client with
	// DefaultRequestTimeout is used. See NewHTTPClient for TLS setup.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
	// Clock stamps outgoing messages. If nil, the real clock is used.
	Clock clock.Clock
}

// Client synchronizes one session with an O3 chat server.
//
// Every operation holds the client lock for its whole request/response
// exchange, so a background poll and a foreground command never interleave
// their effects on the session state.
type Client struct {
	creds      CredentialContext
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
	clock      clock.Clock

	mu sync.Mutex // held for the duration of each exchange

	// codec, state and notification are written with mu held and read by
	// the accessors under infoMu.
	infoMu       sync.RWMutex
	codec        Codec
	state        *SyncState
	notification string
}

// New creates a client. The codec is chosen from the protocol version of
// the current credentials.
func New(config Config) (*Client, error) {
	if config.Credentials == nil {
		return nil, errors.New("o3chat: Credentials is required")
	}
	codec, err := CodecFor(config.Credentials.Credentials().Version)
	if err != nil {
		return nil, fmt.Errorf("o3chat: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Client{
		creds:      config.Credentials,
		httpClient: httpClient,
		logger:     logger,
		metrics:    config.Metrics,
		clock:      clk,
		codec:      codec,
		state:      NewSyncState(),
	}, nil
}

// ResetState discards the session state and re-selects the codec from the
// current credentials. Call it whenever the server or the user changes, so
// that no token or message leaks into the new session. It waits for any
// in-flight exchange to finish.
func (c *Client) ResetState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	codec, err := CodecFor(c.creds.Credentials().Version)
	if err != nil {
		return fmt.Errorf("o3chat: %w", err)
	}
	c.infoMu.Lock()
	c.codec = codec
	c.state = NewSyncState()
	c.notification = ""
	c.infoMu.Unlock()
	return nil
}

// Notification returns the diagnostic text of the last failed request, or
// "" after a success.
func (c *Client) Notification() string {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.notification
}

// CurrentChannel returns the selected channel; "" is the default channel.
func (c *Client) CurrentChannel() string {
	return c.currentState().Channel()
}

// Messages returns every message received in this session, oldest first.
func (c *Client) Messages() []ChatMessage {
	return c.currentState().Messages()
}

// Lines returns every plain-text line received from a v2 server.
func (c *Client) Lines() []string {
	return c.currentState().Lines()
}

// ConditionalToken returns the stored v5 modification marker.
func (c *Client) ConditionalToken() string {
	return c.currentState().ConditionalToken()
}

// Version returns the protocol version of the active codec.
func (c *Client) Version() ProtocolVersion {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.codec.Version()
}

func (c *Client) currentState() *SyncState {
	c.infoMu.RLock()
	defer c.infoMu.RUnlock()
	return c.state
}

func (c *Client) setNotification(s string) {
	c.infoMu.Lock()
	c.notification = s
	c.infoMu.Unlock()
}

// exchange is one request/response cycle in flight.
type exchange struct {
	op     string
	id     string
	start  time.Time
	logger *slog.Logger
}

func (c *Client) begin(op string) *exchange {
	id := uuid.NewString()
	return &exchange{
		op:     op,
		id:     id,
		start:  c.clock.Now(),
		logger: c.logger.With("op", op, "request_id", id),
	}
}

// finish records metrics and logs the outcome of x.
func (c *Client) finish(x *exchange, status int, err error) {
	took := c.clock.Now().Sub(x.start)
	outcome := outcomeOf(status, err)
	c.metrics.observeRequest(x.op, outcome, took)
	if err != nil {
		x.logger.Warn("chat request failed", "status", status, "outcome", outcome, "duration", took, "error", err)
		return
	}
	x.logger.Debug("chat request done", "status", status, "duration", took)
}

func outcomeOf(status int, err error) string {
	var (
		transportErr *TransportError
		decodeErr    *DecodeError
		serverErr    *ServerError
	)
	switch {
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &serverErr):
		return "server_error"
	case err != nil:
		return "error"
	case status == http.StatusNoContent:
		return "no_content"
	}
	return "ok"
}

// send performs the HTTP exchange. Any failure before a status line is
// received is a TransportError.
func (c *Client) send(ctx context.Context, x *exchange, creds Credentials, method, path string, payload *Payload, header func(http.Header)) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, joinURL(creds.Server, path), body)
	if err != nil {
		return nil, &TransportError{Op: x.op, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", payload.ContentType)
	}
	req.Header.Set("Cache-Control", "no-cache")
	if header != nil {
		header(req.Header)
	}

	x.logger.Debug("sending chat request", "method", method, "url", req.URL.String())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: x.op, Err: err}
	}
	return resp, nil
}

// failure turns a non-2xx response into a ServerError and records its
// body as the notification. If the body cannot be read, a placeholder
// takes its place; the status code is always preserved.
func (c *Client) failure(x *exchange, resp *http.Response) error {
	text, err := readNotification(resp.Body)
	if err != nil {
		x.logger.Debug("reading error body failed", "status", resp.StatusCode, "error", err)
		text = "could not read server error message: " + err.Error()
	}
	c.setNotification(text)
	return &ServerError{StatusCode: resp.StatusCode, Body: text}
}

func readBody(x *exchange, body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxResponseSize))
	if err != nil {
		return nil, &TransportError{Op: x.op, Err: fmt.Errorf("reading response body: %w", err)}
	}
	return data, nil
}

// command runs an exchange whose only result is the status code. The body
// of a successful response is discarded.
func (c *Client) command(ctx context.Context, op string, creds Credentials, method, path string, payload Payload, header func(http.Header)) (int, error) {
	x := c.begin(op)
	resp, err := c.send(ctx, x, creds, method, path, &payload, header)
	if err != nil {
		c.finish(x, 0, err)
		return 0, err
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		err := c.failure(x, resp)
		c.finish(x, resp.StatusCode, err)
		return resp.StatusCode, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
	c.setNotification("")
	c.finish(x, resp.StatusCode, nil)
	return resp.StatusCode, nil
}

// structuredOnly rejects op on servers that only speak plain text.
func (c *Client) structuredOnly(op string) error {
	if !c.codec.Structured() {
		return precondition(op, ErrUnsupported)
	}
	return nil
}

// snapshot reads the credentials and checks the server address. Must be
// called with mu held.
func (c *Client) snapshot(op string) (Credentials, error) {
	creds := c.creds.Credentials()
	if creds.Server == "" {
		return creds, precondition(op, ErrNoServer)
	}
	return creds, nil
}
