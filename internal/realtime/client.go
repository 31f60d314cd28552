package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrClosed is returned once the client has been closed.
	ErrClosed = errors.New("realtime client closed")
	// ErrJoinRejected is returned when the server refuses a channel join.
	ErrJoinRejected = errors.New("channel join rejected")
	// ErrAlreadySubscribed is returned when a channel name is already in use on the socket.
	ErrAlreadySubscribed = errors.New("channel already subscribed")
)

const (
	defaultHeartbeat = 30 * time.Second
	writeTimeout     = 10 * time.Second
	realtimePath     = "/realtime/v1/websocket"
)

// Options configure a Client.
type Options struct {
	ProjectURL        string
	APIKey            string
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
	Dialer            *websocket.Dialer
}

// Client multiplexes realtime channels over one websocket. The socket is
// dialed lazily by Subscribe and redialed after it fails.
type Client struct {
	endpoint  string
	apiKey    string
	heartbeat time.Duration
	dialer    *websocket.Dialer
	logger    *slog.Logger
	id        string

	ref atomic.Uint64

	mu     sync.Mutex
	sock   *socket
	closed bool
}

// NewClient validates opts and returns an unconnected Client.
func NewClient(opts Options) (*Client, error) {
	endpoint, err := endpointURL(opts.ProjectURL, opts.APIKey)
	if err != nil {
		return nil, err
	}
	heartbeat := opts.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	id := uuid.NewString()
	return &Client{
		endpoint:  endpoint,
		apiKey:    strings.TrimSpace(opts.APIKey),
		heartbeat: heartbeat,
		dialer:    dialer,
		logger:    logger.With("component", "realtime", "client", id[:8]),
		id:        id,
	}, nil
}

func endpointURL(projectURL, apiKey string) (string, error) {
	trimmed := strings.TrimSpace(projectURL)
	if trimmed == "" {
		return "", fmt.Errorf("project url is empty")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse project url %q: %w", projectURL, err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = realtimePath
	u.Fragment = ""
	q := url.Values{}
	if key := strings.TrimSpace(apiKey); key != "" {
		q.Set("apikey", key)
	}
	q.Set("vsn", protocolVsn)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) nextRef() string {
	return strconv.FormatUint(c.ref.Add(1), 10)
}

// connect returns the live socket, dialing a new one when none is usable.
func (c *Client) connect(ctx context.Context) (*socket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.sock != nil && !c.sock.isDone() {
		return c.sock, nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	s := newSocket(c, conn)
	s.start()
	c.sock = s
	c.logger.Debug("socket connected")
	return s, nil
}

// Subscribe joins channel name with the given bindings and blocks until the
// server acknowledges the join or ctx ends. onChange runs on the socket's
// read goroutine in arrival order.
func (c *Client) Subscribe(ctx context.Context, name string, bindings []Binding, onChange func(Change)) (*Channel, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("channel name required")
	}
	s, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, topicPrefix+name, bindings, onChange)
}

// Unsubscribe leaves ch. It is safe to call more than once.
func (c *Client) Unsubscribe(ch *Channel) error {
	if ch == nil {
		return nil
	}
	return ch.Unsubscribe()
}

// Close shuts the socket down and waits for its goroutines to exit.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	s := c.sock
	c.sock = nil
	c.mu.Unlock()

	if s != nil {
		s.shutdown(ErrClosed)
		s.wait()
	}
	return nil
}
