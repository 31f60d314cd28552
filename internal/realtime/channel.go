package realtime

import "sync"

// ChannelState mirrors the lifecycle reported by realtime channels.
type ChannelState string

const (
	StateClosed  ChannelState = "closed"
	StateJoining ChannelState = "joining"
	StateJoined  ChannelState = "joined"
	StateLeaving ChannelState = "leaving"
	StateErrored ChannelState = "errored"
)

// Channel is one joined topic on a socket.
type Channel struct {
	sock     *socket
	topic    string
	joinRef  string
	onChange func(Change)

	mu    sync.Mutex
	state ChannelState

	leaveOnce sync.Once
	leaveErr  error
}

// Topic returns the full channel topic, including the realtime: prefix.
func (ch *Channel) Topic() string {
	return ch.topic
}

// State returns the channel's current lifecycle state.
func (ch *Channel) State() ChannelState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *Channel) setState(next ChannelState) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state == StateClosed && next != StateClosed {
		return
	}
	ch.state = next
}

// promote moves a joining channel to joined. It fails when the socket
// closed or errored the channel first.
func (ch *Channel) promote() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.state != StateJoining {
		return false
	}
	ch.state = StateJoined
	return true
}

func (ch *Channel) deliver(c Change) {
	switch ch.State() {
	case StateLeaving, StateClosed:
		return
	}
	if ch.onChange != nil {
		ch.onChange(c)
	}
}

// Unsubscribe leaves the channel. Only the first call sends phx_leave; later
// calls return the first call's result.
func (ch *Channel) Unsubscribe() error {
	ch.leaveOnce.Do(func() {
		s := ch.sock
		alive := !s.isDone() && ch.State() != StateClosed
		ch.setState(StateLeaving)
		s.forget(ch, "")
		if alive {
			ch.leaveErr = s.send(outbound{
				Topic:   ch.topic,
				Event:   eventLeave,
				Payload: struct{}{},
				Ref:     s.client.nextRef(),
				JoinRef: ch.joinRef,
			})
		}
		ch.setState(StateClosed)
	})
	return ch.leaveErr
}
