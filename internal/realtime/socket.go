package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var errHeartbeatTimeout = errors.New("heartbeat timeout")

// socket is one websocket connection and the channels joined on it.
type socket struct {
	client *Client
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu           sync.Mutex
	channels     map[string]*Channel
	pending      map[string]chan reply
	heartbeatRef string
	err          error

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func newSocket(c *Client, conn *websocket.Conn) *socket {
	return &socket{
		client:   c,
		conn:     conn,
		logger:   c.logger,
		channels: make(map[string]*Channel),
		pending:  make(map[string]chan reply),
		done:     make(chan struct{}),
	}
}

func (s *socket) start() {
	s.wg.Add(2)
	go s.readLoop()
	go s.heartbeatLoop()
}

func (s *socket) wait() {
	s.wg.Wait()
}

func (s *socket) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *socket) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return ErrClosed
	}
	return s.err
}

func (s *socket) send(msg outbound) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isDone() {
		return s.failure()
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Event, err)
	}
	return nil
}

// shutdown closes the connection once and moves every joined channel to
// errored, or closed when the client is shutting down on purpose.
func (s *socket) shutdown(cause error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = cause
		channels := make([]*Channel, 0, len(s.channels))
		for _, ch := range s.channels {
			channels = append(channels, ch)
		}
		s.channels = make(map[string]*Channel)
		s.pending = make(map[string]chan reply)
		s.mu.Unlock()

		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()

		next := StateErrored
		if errors.Is(cause, ErrClosed) {
			next = StateClosed
		} else {
			s.logger.Warn("socket closed", "error", cause, "channels", len(channels))
		}
		for _, ch := range channels {
			ch.setState(next)
		}
	})
}

func (s *socket) readLoop() {
	defer s.wg.Done()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.shutdown(fmt.Errorf("read: %w", err))
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		s.dispatch(msg)
	}
}

func (s *socket) heartbeatLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.client.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			missed := s.heartbeatRef != ""
			ref := s.client.nextRef()
			s.heartbeatRef = ref
			s.mu.Unlock()
			if missed {
				s.shutdown(errHeartbeatTimeout)
				return
			}
			if err := s.send(outbound{Topic: phoenixTopic, Event: eventHeartbeat, Payload: struct{}{}, Ref: ref}); err != nil {
				s.shutdown(err)
				return
			}
		}
	}
}

func (s *socket) channel(topic string) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[topic]
}

func (s *socket) forget(ch *Channel, ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[ch.topic] == ch {
		delete(s.channels, ch.topic)
	}
	if ref != "" {
		delete(s.pending, ref)
	}
}

func (s *socket) dispatch(msg inbound) {
	switch msg.Event {
	case eventReply:
		if msg.Ref == nil {
			return
		}
		ref := *msg.Ref
		s.mu.Lock()
		if msg.Topic == phoenixTopic {
			if s.heartbeatRef == ref {
				s.heartbeatRef = ""
			}
			s.mu.Unlock()
			return
		}
		waiter, ok := s.pending[ref]
		delete(s.pending, ref)
		s.mu.Unlock()
		if ok {
			waiter <- decodeReply(msg.Payload)
		}

	case eventChanges:
		ch := s.channel(msg.Topic)
		if ch == nil {
			return
		}
		change, err := decodeChange(msg.Payload)
		if err != nil {
			s.logger.Warn("dropping change", "topic", msg.Topic, "error", err)
			return
		}
		ch.deliver(change)

	case eventError:
		if ch := s.channel(msg.Topic); ch != nil {
			s.logger.Warn("channel error", "topic", msg.Topic)
			ch.setState(StateErrored)
		}

	case eventClose:
		if ch := s.channel(msg.Topic); ch != nil {
			s.forget(ch, "")
			ch.setState(StateClosed)
		}

	case eventSystem:
		var p systemPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return
		}
		if p.Status == "error" {
			s.logger.Warn("realtime system error", "topic", msg.Topic, "extension", p.Extension, "message", p.Message)
			if ch := s.channel(msg.Topic); ch != nil {
				ch.setState(StateErrored)
			}
			return
		}
		s.logger.Debug("realtime system message", "topic", msg.Topic, "message", p.Message)
	}
}

func (s *socket) join(ctx context.Context, topic string, bindings []Binding, onChange func(Change)) (*Channel, error) {
	ref := s.client.nextRef()
	ch := &Channel{
		sock:     s,
		topic:    topic,
		joinRef:  ref,
		onChange: onChange,
		state:    StateJoining,
	}
	waiter := make(chan reply, 1)

	s.mu.Lock()
	if s.isDone() {
		s.mu.Unlock()
		return nil, s.failureLocked()
	}
	if _, exists := s.channels[topic]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, topic)
	}
	s.channels[topic] = ch
	s.pending[ref] = waiter
	s.mu.Unlock()

	if bindings == nil {
		bindings = []Binding{}
	}
	payload := joinPayload{AccessToken: s.client.apiKey}
	payload.Config.PostgresChanges = bindings
	if err := s.send(outbound{Topic: topic, Event: eventJoin, Payload: payload, Ref: ref, JoinRef: ref}); err != nil {
		s.forget(ch, ref)
		ch.setState(StateErrored)
		return nil, err
	}

	select {
	case r := <-waiter:
		if r.status != "ok" {
			s.forget(ch, ref)
			ch.setState(StateErrored)
			return nil, fmt.Errorf("%w: %s", ErrJoinRejected, r.reason)
		}
		if !ch.promote() {
			return nil, fmt.Errorf("join %s: %w", topic, s.failure())
		}
		s.logger.Info("channel joined", "topic", topic, "bindings", len(bindings))
		return ch, nil
	case <-s.done:
		ch.setState(StateErrored)
		return nil, fmt.Errorf("join %s: %w", topic, s.failure())
	case <-ctx.Done():
		s.forget(ch, ref)
		ch.setState(StateClosed)
		return nil, ctx.Err()
	}
}

func (s *socket) failureLocked() error {
	if s.err == nil {
		return ErrClosed
	}
	return s.err
}
