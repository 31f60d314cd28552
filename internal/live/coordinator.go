package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/realtime"
	"github.com/five82/pulse/internal/state"
	"github.com/five82/pulse/internal/supabase"
)

const (
	defaultHealthInterval = 10 * time.Second
	defaultSchema         = "public"
	channelPrefix         = "analytics-"
)

// Options configure a Coordinator.
type Options struct {
	Querier    supabase.Querier
	Subscriber Subscriber // nil runs fetch-only
	Store      *state.Store
	Logger     *slog.Logger

	Env     analytics.Environment
	Tables  Tables
	Schema  string
	Channel string
	Filter  *supabase.Filter

	HealthInterval time.Duration
	Now            func() time.Time
}

// Stats are counters for the current coordinator.
type Stats struct {
	Phase   state.Phase
	Visible bool
	Pending int
	Flushes int
	Dropped int
}

// Coordinator keeps a Snapshot current from an initial fetch plus a debounced
// stream of change events. All exported methods are safe for concurrent use.
type Coordinator struct {
	fetcher        *Fetcher
	subscriber     Subscriber
	store          *state.Store
	logger         *slog.Logger
	policy         analytics.Policy
	schema         string
	channel        string
	filter         *supabase.Filter
	tables         Tables
	topics         map[string]analytics.Topic
	healthInterval time.Duration
	now            func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	closed      bool
	phase       state.Phase
	sub         Subscription
	visible     bool
	buffer      analytics.Buffer
	snapshot    analytics.Snapshot
	flushTimer  *time.Timer
	flushGen    uint64
	settleTimer *time.Timer
	settleGen   uint64
	healthStop  chan struct{}
	flushes     int
	dropped     int
	started     bool

	// Fetch ordering. fetchSeq numbers fetches as they begin and appliedSeq
	// is the newest one whose result was kept. journal holds events flushed
	// while any fetch is in flight; journalBase is the count already pruned.
	fetchSeq    uint64
	appliedSeq  uint64
	inflight    int
	journal     []analytics.ChangeEvent
	journalBase int

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// New builds a Coordinator. Nothing is fetched or opened until Start.
func New(opts Options) (*Coordinator, error) {
	if opts.Querier == nil {
		return nil, errors.New("querier required")
	}
	if opts.Store == nil {
		return nil, errors.New("store required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	health := opts.HealthInterval
	if health <= 0 {
		health = defaultHealthInterval
	}
	schema := strings.TrimSpace(opts.Schema)
	if schema == "" {
		schema = defaultSchema
	}
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		channel = channelPrefix + uuid.NewString()[:8]
	}
	tables := opts.Tables.withDefaults()
	filter := opts.Filter
	if filter != nil && strings.TrimSpace(filter.Column) == "" {
		filter = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		fetcher:        &Fetcher{Querier: opts.Querier, Tables: tables, Now: now},
		subscriber:     opts.Subscriber,
		store:          opts.Store,
		logger:         logger.With("component", "live", "channel", channel),
		policy:         analytics.PolicyFor(opts.Env),
		schema:         schema,
		channel:        channel,
		filter:         filter,
		tables:         tables,
		topics:         topicsFor(tables),
		healthInterval: health,
		now:            now,
		ctx:            ctx,
		cancel:         cancel,
		phase:          state.PhaseClosed,
		visible:        true,
	}
	c.store.SetEnvironment(opts.Env)
	c.store.SetPhase(state.PhaseClosed)
	return c, nil
}

func topicsFor(t Tables) map[string]analytics.Topic {
	return map[string]analytics.Topic{
		t.Engagement: analytics.TopicEngagement,
		t.Sessions:   analytics.TopicSession,
		t.News:       analytics.TopicNews,
	}
}

// Policy returns the flush policy in effect.
func (c *Coordinator) Policy() analytics.Policy {
	return c.policy
}

// ErrStarted is returned by a second call to Start.
var ErrStarted = errors.New("coordinator already started")

// Start runs the initial fetch and opens the subscription. A fetch error is
// returned for logging; the subscription is attempted regardless. Start may
// be called once; later passes go through Refresh.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrStarted
	}
	c.started = true
	c.mu.Unlock()

	c.logger.Info("coordinator starting",
		"env", c.policy.Env.String(),
		"realtime", c.subscriber != nil,
		"schema", c.schema)
	return c.Refresh(ctx)
}

// Refresh re-fetches the snapshot and re-attempts the subscription when a
// previous attempt left it closed.
func (c *Coordinator) Refresh(ctx context.Context) error {
	err := c.fetch(ctx)
	if c.subscriber != nil && c.store.Snapshot().Degraded {
		c.logger.Info("retrying subscription after degradation")
	}
	c.open(ctx)
	return err
}

// Snapshot returns the coordinator's current data.
func (c *Coordinator) Snapshot() analytics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Stats returns the current counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Phase:   c.phase,
		Visible: c.visible,
		Pending: c.buffer.Len(),
		Flushes: c.flushes,
		Dropped: c.dropped,
	}
}

// fetch replaces the snapshot with a fresh read. Fetches may overlap with
// each other and with flushes: a result older than one already applied is
// dropped, and events flushed while the read was in flight are merged back
// on top of it.
func (c *Coordinator) fetch(ctx context.Context) error {
	c.mu.Lock()
	c.fetchSeq++
	seq := c.fetchSeq
	mark := c.journalBase + len(c.journal)
	c.inflight++
	c.mu.Unlock()

	snap, err := c.fetcher.FetchSnapshot(ctx, c.filter)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.endFetchLocked()
	if c.closed {
		return err
	}
	if seq < c.appliedSeq {
		c.logger.Debug("discarding stale snapshot", "fetch", seq, "applied", c.appliedSeq)
		return err
	}
	if err != nil {
		c.logger.Warn("snapshot fetch failed", "error", err)
		c.store.Update(analytics.Snapshot{}, err)
		return err
	}
	c.appliedSeq = seq
	if replay := c.journal[mark-c.journalBase:]; len(replay) > 0 {
		snap = analytics.Merge(snap, replay, c.now())
		c.logger.Debug("replayed events flushed during fetch", "events", len(replay))
	}
	c.snapshot = snap
	c.store.Update(snap, nil)
	c.logger.Debug("snapshot fetched",
		"engagement", len(snap.Engagement),
		"behavior", len(snap.Behavior),
		"health", len(snap.Health))
	return nil
}

// endFetchLocked drops the flush journal once no fetch needs it.
func (c *Coordinator) endFetchLocked() {
	c.inflight--
	if c.inflight == 0 {
		c.journalBase += len(c.journal)
		c.journal = nil
	}
}

func (c *Coordinator) bindings() []realtime.Binding {
	filter := ""
	if c.filter != nil {
		op := c.filter.Op
		if op == "" {
			op = "eq"
		}
		filter = fmt.Sprintf("%s=%s.%s", c.filter.Column, op, c.filter.Value)
	}
	bind := func(event, table string) realtime.Binding {
		return realtime.Binding{Event: event, Schema: c.schema, Table: table, Filter: filter}
	}
	return []realtime.Binding{
		bind("INSERT", c.tables.Engagement),
		bind("UPDATE", c.tables.Engagement),
		bind("INSERT", c.tables.Sessions),
		bind("UPDATE", c.tables.Sessions),
		bind("INSERT", c.tables.News),
	}
}

// open moves Closed to Opening to Open. Failures land in Closed with the
// store marked degraded; nothing is returned.
func (c *Coordinator) open(ctx context.Context) {
	if c.subscriber == nil {
		return
	}
	c.mu.Lock()
	if c.closed || c.phase != state.PhaseClosed {
		c.mu.Unlock()
		return
	}
	c.phase = state.PhaseOpening
	c.store.SetPhase(state.PhaseOpening)
	c.mu.Unlock()

	// The lock is released here: change callbacks run on the transport's
	// read goroutine, which also delivers the join reply.
	sub, err := c.subscriber.Subscribe(ctx, c.channel, c.bindings(), c.handleChange)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.phase = state.PhaseClosed
		c.store.SetPhase(state.PhaseClosed)
		c.store.SetDegraded(true, fmt.Errorf("subscribe: %w", err))
		c.logger.Warn("subscription failed; falling back to polling", "error", err)
		return
	}
	if c.closed {
		_ = sub.Unsubscribe()
		return
	}
	c.sub = sub
	c.phase = state.PhaseOpen
	c.store.SetPhase(state.PhaseOpen)
	c.store.SetConnected(sub.State() == realtime.StateJoined)
	c.store.SetDegraded(false, nil)
	c.logger.Info("subscription open", "policy", c.policy.Env.String(), "flush_interval", c.policy.FlushInterval)

	stop := make(chan struct{})
	c.healthStop = stop
	c.wg.Add(1)
	go c.healthLoop(sub, stop)
}

func (c *Coordinator) handleChange(change realtime.Change) {
	topic, ok := c.topics[change.Table]
	if !ok {
		c.logger.Debug("dropping change for unknown table", "table", change.Table)
		c.countDrop()
		return
	}
	op, err := analytics.ParseOperation(change.EventType)
	if err != nil {
		c.logger.Debug("dropping change", "table", change.Table, "error", err)
		c.countDrop()
		return
	}
	c.accept(analytics.ChangeEvent{Topic: topic, Operation: op, Payload: change.New})
}

func (c *Coordinator) countDrop() {
	c.mu.Lock()
	c.dropped++
	c.mu.Unlock()
}

// accept buffers ev when the subscription is open and the gate is visible,
// applies backpressure and restarts the debounce timer.
func (c *Coordinator) accept(ev analytics.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.phase != state.PhaseOpen || !c.visible {
		c.dropped++
		return
	}
	c.buffer.Push(ev)
	if keep, trim := c.policy.Backpressure(c.buffer.Len()); trim {
		c.dropped += c.buffer.Len() - keep
		c.buffer.KeepNewest(keep)
	}
	c.scheduleFlushLocked()
	c.store.SetPending(c.buffer.Len())
}

func (c *Coordinator) scheduleFlushLocked() {
	c.stopFlushLocked()
	gen := c.flushGen
	c.flushTimer = time.AfterFunc(c.policy.FlushInterval, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || gen != c.flushGen {
			return
		}
		c.flushTimer = nil
		c.flushLocked()
	})
}

// stopFlushLocked cancels the pending flush. Bumping the generation also
// disarms a timer whose callback is already waiting on the lock.
func (c *Coordinator) stopFlushLocked() {
	c.flushGen++
	if c.flushTimer != nil {
		c.flushTimer.Stop()
		c.flushTimer = nil
	}
}

func (c *Coordinator) flushLocked() {
	events := c.buffer.Drain()
	if len(events) == 0 {
		return
	}
	c.snapshot = analytics.Merge(c.snapshot, events, c.now())
	if c.inflight > 0 {
		c.journal = append(c.journal, events...)
	}
	c.flushes++
	c.store.Publish(c.snapshot, 0)
	c.logger.Debug("flushed change events", "events", len(events))
}

// SetVisible drives the visibility gate.
func (c *Coordinator) SetVisible(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.visible == visible {
		return
	}
	c.visible = visible
	c.store.SetPaused(!visible)

	if !visible {
		c.stopFlushLocked()
		c.stopSettleLocked()
		if c.policy.ClearOnHidden {
			c.dropped += c.buffer.Len()
			c.buffer.Clear()
		}
		c.store.SetPending(c.buffer.Len())
		c.logger.Debug("ingestion paused", "retained", c.buffer.Len())
		return
	}

	if !c.policy.ClearOnHidden {
		c.flushLocked()
	}
	c.scheduleSettleLocked()
	c.logger.Debug("ingestion resumed", "settle_delay", c.policy.SettleDelay)
}

func (c *Coordinator) scheduleSettleLocked() {
	c.stopSettleLocked()
	gen := c.settleGen
	c.settleTimer = time.AfterFunc(c.policy.SettleDelay, func() {
		c.mu.Lock()
		if c.closed || gen != c.settleGen {
			c.mu.Unlock()
			return
		}
		c.settleTimer = nil
		c.wg.Add(1)
		c.mu.Unlock()

		defer c.wg.Done()
		_ = c.fetch(c.ctx)
	})
}

func (c *Coordinator) stopSettleLocked() {
	c.settleGen++
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
}

func (c *Coordinator) healthLoop(sub Subscription, stop <-chan struct{}) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.sampleHealth(sub) {
				return
			}
		}
	}
}

// sampleHealth records whether sub is joined. A channel the transport has
// given up on is released so the next Refresh can open a new one. It
// reports whether sampling should continue.
func (c *Coordinator) sampleHealth(sub Subscription) bool {
	st := sub.State()

	c.mu.Lock()
	if c.closed || c.sub != sub {
		c.mu.Unlock()
		return false
	}
	c.store.SetConnected(st == realtime.StateJoined)
	if st != realtime.StateErrored && st != realtime.StateClosed {
		c.mu.Unlock()
		return true
	}
	c.sub = nil
	c.healthStop = nil
	c.phase = state.PhaseClosed
	c.store.SetPhase(state.PhaseClosed)
	c.store.SetDegraded(true, fmt.Errorf("channel %s", st))
	c.mu.Unlock()

	c.logger.Warn("subscription lost", "state", string(st))
	_ = sub.Unsubscribe()
	return false
}

// Close cancels timers and the health check, flushes what is buffered and
// releases the subscription. Only the first call does anything.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.stopFlushLocked()
		c.stopSettleLocked()
		c.flushLocked()
		c.closed = true
		sub := c.sub
		c.sub = nil
		stop := c.healthStop
		c.healthStop = nil
		c.phase = state.PhaseClosed
		c.store.SetPhase(state.PhaseClosed)
		c.store.SetPending(0)
		c.mu.Unlock()

		c.cancel()
		if stop != nil {
			close(stop)
		}
		c.wg.Wait()
		if sub != nil {
			if err := sub.Unsubscribe(); err != nil {
				c.closeErr = fmt.Errorf("unsubscribe: %w", err)
			}
		}
		c.logger.Info("coordinator closed")
	})
	return c.closeErr
}
