package live

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/realtime"
	"github.com/five82/pulse/internal/state"
	"github.com/five82/pulse/internal/supabase"
)

type fakeQuerier struct {
	mu      sync.Mutex
	rows    map[string][]analytics.Record
	errs    map[string]error
	calls   map[string]int
	queries map[string]supabase.Query
	gates   map[string][]chan struct{}
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		rows:    make(map[string][]analytics.Record),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		queries: make(map[string]supabase.Query),
		gates:   make(map[string][]chan struct{}),
	}
}

// Select answers with the rows set when the call arrives. A call that
// picks up a gate waits for it to close before answering.
func (f *fakeQuerier) Select(ctx context.Context, table string, q supabase.Query) ([]analytics.Record, error) {
	f.mu.Lock()
	f.calls[table]++
	f.queries[table] = q
	err := f.errs[table]
	rows := append([]analytics.Record(nil), f.rows[table]...)
	var gate chan struct{}
	if queue := f.gates[table]; len(queue) > 0 {
		gate, f.gates[table] = queue[0], queue[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// hold makes the next Select on table wait until the returned func runs.
func (f *fakeQuerier) hold(table string) (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gates[table] = append(f.gates[table], gate)
	return func() { close(gate) }
}

func (f *fakeQuerier) set(table string, rows ...analytics.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[table] = rows
}

func (f *fakeQuerier) fail(table string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[table] = err
}

// fetches counts full snapshot fetches by the engagement query.
func (f *fakeQuerier) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["user_engagement"]
}

type fakeSub struct {
	mu     sync.Mutex
	state  realtime.ChannelState
	unsubs int
}

func (s *fakeSub) State() realtime.ChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *fakeSub) setState(st realtime.ChannelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *fakeSub) Unsubscribe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs++
	s.state = realtime.StateClosed
	return nil
}

func (s *fakeSub) unsubscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubs
}

type fakeSubscriber struct {
	mu       sync.Mutex
	err      error
	subs     []*fakeSub
	name     string
	bindings []realtime.Binding
	onChange func(realtime.Change)
}

func (f *fakeSubscriber) Subscribe(_ context.Context, name string, bindings []realtime.Binding, onChange func(realtime.Change)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sub := &fakeSub{state: realtime.StateJoined}
	f.subs = append(f.subs, sub)
	f.name = name
	f.bindings = bindings
	f.onChange = onChange
	return sub, nil
}

func (f *fakeSubscriber) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSubscriber) emit(c realtime.Change) {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSubscriber) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[len(f.subs)-1]
}

type harness struct {
	c     *Coordinator
	q     *fakeQuerier
	sub   *fakeSubscriber
	store *state.Store
}

func newHarness(t *testing.T, env analytics.Environment) *harness {
	t.Helper()
	h := &harness{q: newFakeQuerier(), sub: &fakeSubscriber{}, store: &state.Store{}}
	c, err := New(Options{
		Querier:    h.q,
		Subscriber: h.sub,
		Store:      h.store,
		Env:        env,
		Channel:    "analytics-test",
	})
	require.NoError(t, err)
	h.c = c
	t.Cleanup(func() { _ = c.Close() })
	return h
}

var (
	desktop    = analytics.Environment{Device: analytics.DeviceDesktop}
	mobile     = analytics.Environment{Device: analytics.DeviceMobile}
	slowMobile = analytics.Environment{Device: analytics.DeviceMobile, Network: analytics.NetworkSlow}
)

func insertChange(table, id string, fields ...any) realtime.Change {
	return realtime.Change{Table: table, EventType: "INSERT", New: record(id, fields...)}
}

func updateChange(table, id string, fields ...any) realtime.Change {
	return realtime.Change{Table: table, EventType: "UPDATE", New: record(id, fields...)}
}

func record(id string, fields ...any) analytics.Record {
	r := analytics.Record{"id": id}
	for i := 0; i+1 < len(fields); i += 2 {
		r[fields[i].(string)] = fields[i+1]
	}
	return r
}

func ids(records []analytics.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		id, _ := r.ID()
		out = append(out, id)
	}
	return out
}

func TestDesktopBurstFlushesOnceAfterLastEvent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		for i := range 5 {
			if i > 0 {
				time.Sleep(time.Second)
			}
			h.sub.emit(insertChange("user_engagement", fmt.Sprintf("e%d", i)))
		}

		time.Sleep(2999 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 0, h.c.Stats().Flushes)
		assert.Equal(t, 5, h.c.Stats().Pending)

		time.Sleep(2 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 1, h.c.Stats().Flushes)
		assert.Equal(t, []string{"e4", "e3", "e2", "e1", "e0"}, ids(h.store.Snapshot().Data.Engagement))

		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.Equal(t, 1, h.c.Stats().Flushes)
	})
}

func TestSlowMobileBackpressureKeepsNewestThree(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, slowMobile)
		require.NoError(t, h.c.Start(context.Background()))

		for i := range 6 {
			h.sub.emit(insertChange("user_sessions", fmt.Sprintf("s%d", i)))
		}
		stats := h.c.Stats()
		assert.Equal(t, 3, stats.Pending)
		assert.Equal(t, 3, stats.Dropped)

		time.Sleep(20*time.Second + time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 1, h.c.Stats().Flushes)
		assert.Equal(t, []string{"s5", "s4", "s3"}, ids(h.store.Snapshot().Data.Behavior))
	})
}

func TestMobileHiddenClearsBufferAndTimer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, mobile)
		require.NoError(t, h.c.Start(context.Background()))

		h.sub.emit(insertChange("user_engagement", "a1"))
		h.sub.emit(insertChange("user_engagement", "a2"))
		require.Equal(t, 2, h.c.Stats().Pending)

		h.c.SetVisible(false)
		assert.Equal(t, 0, h.c.Stats().Pending)
		assert.True(t, h.store.Snapshot().Paused)

		h.sub.emit(insertChange("user_engagement", "a3"))
		assert.Equal(t, 0, h.c.Stats().Pending)

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, 0, h.c.Stats().Flushes)
		assert.Empty(t, h.store.Snapshot().Data.Engagement)
	})
}

func TestResumeRefetchesAfterSettleDelayWithoutDoubleCounting(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, slowMobile)
		h.q.set("user_engagement", record("server1"))
		require.NoError(t, h.c.Start(context.Background()))
		require.Equal(t, 1, h.q.fetches())

		h.sub.emit(insertChange("user_engagement", "x1"))
		h.c.SetVisible(false)
		h.sub.emit(insertChange("user_engagement", "x2"))

		// The server now holds both rows that arrived while hidden.
		h.q.set("user_engagement", record("x2"), record("x1"), record("server1"))
		h.c.SetVisible(true)

		time.Sleep(1999 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 1, h.q.fetches())

		time.Sleep(2 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 2, h.q.fetches())
		assert.Equal(t, []string{"x2", "x1", "server1"}, ids(h.store.Snapshot().Data.Engagement))

		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, 0, h.c.Stats().Flushes)
		assert.Equal(t, []string{"x2", "x1", "server1"}, ids(h.store.Snapshot().Data.Engagement))
	})
}

func TestDesktopHiddenRetainsBufferAndFlushesOnResume(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		h.sub.emit(insertChange("user_engagement", "a1"))
		h.c.SetVisible(false)
		assert.Equal(t, 1, h.c.Stats().Pending)

		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.Equal(t, 0, h.c.Stats().Flushes, "timer should be cancelled while hidden")

		h.sub.emit(insertChange("user_engagement", "a2"))
		h.c.SetVisible(true)
		assert.Equal(t, 1, h.c.Stats().Flushes)
		assert.Equal(t, []string{"a1"}, ids(h.store.Snapshot().Data.Engagement))

		h.q.set("user_engagement", record("a2"), record("a1"))
		time.Sleep(501 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 2, h.q.fetches())
		assert.Equal(t, []string{"a2", "a1"}, ids(h.store.Snapshot().Data.Engagement))
	})
}

func TestHidingAgainCancelsSettleFetch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		h.c.SetVisible(false)
		h.c.SetVisible(true)
		h.c.SetVisible(false)
		time.Sleep(5 * time.Second)
		synctest.Wait()
		assert.Equal(t, 1, h.q.fetches())
	})
}

func TestEndToEndInsertUpdateAndCap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))
		flush := func() {
			time.Sleep(3*time.Second + time.Millisecond)
			synctest.Wait()
		}

		h.sub.emit(insertChange("user_engagement", "a1", "views", 1))
		flush()
		eng := h.store.Snapshot().Data.Engagement
		require.Len(t, eng, 1)
		assert.Equal(t, "a1", eng[0]["id"])

		h.sub.emit(updateChange("user_engagement", "a1", "views", 2))
		flush()
		eng = h.store.Snapshot().Data.Engagement
		require.Len(t, eng, 1)
		assert.Equal(t, 2, eng[0]["views"])

		for i := range 101 {
			h.sub.emit(insertChange("user_engagement", fmt.Sprintf("n%03d", i)))
		}
		flush()
		eng = h.store.Snapshot().Data.Engagement
		require.Len(t, eng, analytics.EngagementCap)
		assert.Equal(t, "n100", eng[0]["id"])
		assert.Equal(t, "n001", eng[len(eng)-1]["id"])
		assert.Equal(t, 3, h.c.Stats().Flushes)
	})
}

func TestUnknownChangesAreDropped(t *testing.T) {
	h := newHarness(t, desktop)
	require.NoError(t, h.c.Start(context.Background()))

	h.sub.emit(insertChange("audit_log", "z1"))
	h.sub.emit(realtime.Change{Table: "user_engagement", EventType: "DELETE", New: record("a1")})
	stats := h.c.Stats()
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 2, stats.Dropped)
}

func TestNewsInsertsLandInHealth(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		h.sub.emit(insertChange("medical_news", "n1", "title", "Guideline update"))
		time.Sleep(3*time.Second + time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []string{"n1"}, ids(h.store.Snapshot().Data.Health))
	})
}

func TestStartBindsEveryTopic(t *testing.T) {
	q := newFakeQuerier()
	sub := &fakeSubscriber{}
	c, err := New(Options{
		Querier:    q,
		Subscriber: sub,
		Store:      &state.Store{},
		Schema:     "analytics",
		Filter:     &supabase.Filter{Column: "user_id", Value: "u1"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Start(context.Background()))

	assert.Contains(t, sub.name, channelPrefix)
	require.Len(t, sub.bindings, 5)
	seen := make(map[string]bool)
	for _, b := range sub.bindings {
		assert.Equal(t, "analytics", b.Schema)
		assert.Equal(t, "user_id=eq.u1", b.Filter)
		seen[b.Table+":"+b.Event] = true
	}
	for _, key := range []string{
		"user_engagement:INSERT", "user_engagement:UPDATE",
		"user_sessions:INSERT", "user_sessions:UPDATE",
		"medical_news:INSERT",
	} {
		assert.True(t, seen[key], "missing binding %s", key)
	}

	got := q.queries["user_engagement"]
	require.Len(t, got.Filters, 1)
	assert.Equal(t, "user_id", got.Filters[0].Column)
}

func TestSubscribeFailureDegradesWithoutError(t *testing.T) {
	h := newHarness(t, desktop)
	h.sub.setErr(errors.New("join rejected"))

	require.NoError(t, h.c.Start(context.Background()))
	snap := h.store.Snapshot()
	assert.Equal(t, state.PhaseClosed, snap.Phase)
	assert.True(t, snap.Degraded)
	assert.False(t, snap.Connected)
	require.Error(t, snap.LastError)
	assert.Contains(t, snap.LastError.Error(), "join rejected")

	h.sub.emit(insertChange("user_engagement", "a1"))
	assert.Equal(t, 0, h.c.Stats().Pending)

	h.sub.setErr(nil)
	require.NoError(t, h.c.Refresh(context.Background()))
	snap = h.store.Snapshot()
	assert.Equal(t, state.PhaseOpen, snap.Phase)
	assert.True(t, snap.Connected)
	assert.False(t, snap.Degraded)
	assert.Equal(t, 1, h.sub.count())
}

func TestRefreshKeepsSingleSubscription(t *testing.T) {
	h := newHarness(t, desktop)
	require.NoError(t, h.c.Start(context.Background()))
	require.NoError(t, h.c.Refresh(context.Background()))
	require.NoError(t, h.c.Refresh(context.Background()))
	assert.Equal(t, 1, h.sub.count())
	assert.Equal(t, 3, h.q.fetches())
}

func TestSlowFetchKeepsEventsFlushedMeanwhile(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		release := h.q.hold("user_engagement")
		done := make(chan error, 1)
		go func() { done <- h.c.Refresh(context.Background()) }()
		synctest.Wait()

		h.sub.emit(insertChange("user_engagement", "e1"))
		time.Sleep(4 * time.Second)
		synctest.Wait()
		require.Equal(t, 1, h.c.Stats().Flushes)
		require.Equal(t, []string{"e1"}, ids(h.store.Snapshot().Data.Engagement))

		release()
		require.NoError(t, <-done)
		assert.Equal(t, []string{"e1"}, ids(h.store.Snapshot().Data.Engagement))
		assert.Equal(t, []string{"e1"}, ids(h.c.Snapshot().Engagement))
	})
}

func TestOverlappingFetchesKeepNewestResult(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		h.q.set("user_engagement", record("old"))
		release := h.q.hold("user_engagement")
		done := make(chan error, 1)
		go func() { done <- h.c.Refresh(context.Background()) }()
		synctest.Wait()

		h.q.set("user_engagement", record("new"), record("old"))
		require.NoError(t, h.c.Refresh(context.Background()))
		require.Equal(t, []string{"new", "old"}, ids(h.store.Snapshot().Data.Engagement))

		release()
		require.NoError(t, <-done)
		assert.Equal(t, []string{"new", "old"}, ids(h.store.Snapshot().Data.Engagement))
	})
}

func TestStaleFetchErrorDoesNotOverrideNewerResult(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))

		h.q.fail("user_engagement", errors.New("503 upstream"))
		release := h.q.hold("user_engagement")
		done := make(chan error, 1)
		go func() { done <- h.c.Refresh(context.Background()) }()
		synctest.Wait()

		h.q.fail("user_engagement", nil)
		h.q.set("user_engagement", record("fresh"))
		require.NoError(t, h.c.Refresh(context.Background()))

		release()
		require.Error(t, <-done)
		snap := h.store.Snapshot()
		assert.Equal(t, []string{"fresh"}, ids(snap.Data.Engagement))
		assert.Zero(t, snap.ConsecutiveFailures)
		assert.NoError(t, snap.LastError)
	})
}

func TestStartRunsOnce(t *testing.T) {
	h := newHarness(t, desktop)
	require.NoError(t, h.c.Start(context.Background()))
	assert.ErrorIs(t, h.c.Start(context.Background()), ErrStarted)
	assert.Equal(t, 1, h.q.fetches())
	assert.Equal(t, 1, h.sub.count())
}

func TestFetchErrorKeepsPreviousSnapshot(t *testing.T) {
	h := newHarness(t, desktop)
	h.q.set("user_sessions", record("s1"))
	require.NoError(t, h.c.Start(context.Background()))

	h.q.fail("user_sessions", errors.New("503 upstream"))
	err := h.c.Refresh(context.Background())
	var fetchErr *FetchError
	require.True(t, errors.As(err, &fetchErr), "err = %v, want *FetchError", err)
	assert.Equal(t, "user_sessions", fetchErr.Table)

	snap := h.store.Snapshot()
	assert.Equal(t, []string{"s1"}, ids(snap.Data.Behavior))
	assert.Equal(t, 1, snap.ConsecutiveFailures)
	assert.Error(t, snap.LastError)
	assert.Equal(t, []string{"s1"}, ids(h.c.Snapshot().Behavior))
}

func TestHealthReporterTracksChannelState(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))
		sub := h.sub.last()
		assert.True(t, h.store.Snapshot().Connected)

		h.sub.emit(insertChange("user_engagement", "a1"))
		sub.setState(realtime.StateJoining)
		time.Sleep(10*time.Second + time.Millisecond)
		synctest.Wait()
		snap := h.store.Snapshot()
		assert.False(t, snap.Connected)
		assert.Equal(t, state.PhaseOpen, snap.Phase)
		assert.Equal(t, 1, h.c.Stats().Flushes, "health sampling must not disturb the buffer")

		sub.setState(realtime.StateJoined)
		time.Sleep(10 * time.Second)
		synctest.Wait()
		assert.True(t, h.store.Snapshot().Connected)
	})
}

func TestHealthReporterReleasesErroredChannel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))
		first := h.sub.last()

		first.setState(realtime.StateErrored)
		time.Sleep(10*time.Second + time.Millisecond)
		synctest.Wait()

		snap := h.store.Snapshot()
		assert.False(t, snap.Connected)
		assert.True(t, snap.Degraded)
		assert.Equal(t, state.PhaseClosed, snap.Phase)
		assert.Equal(t, 1, first.unsubscribed())

		require.NoError(t, h.c.Refresh(context.Background()))
		assert.Equal(t, 2, h.sub.count())
		assert.Equal(t, state.PhaseOpen, h.store.Snapshot().Phase)

		time.Sleep(30 * time.Second)
		synctest.Wait()
		assert.Equal(t, 1, first.unsubscribed())
	})
}

func TestCloseFlushesAndReleasesOnce(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t, desktop)
		require.NoError(t, h.c.Start(context.Background()))
		sub := h.sub.last()

		h.sub.emit(insertChange("user_engagement", "a1"))
		h.sub.emit(insertChange("user_engagement", "a2"))
		require.NoError(t, h.c.Close())
		require.NoError(t, h.c.Close())

		assert.Equal(t, 1, h.c.Stats().Flushes)
		assert.Equal(t, []string{"a2", "a1"}, ids(h.store.Snapshot().Data.Engagement))
		assert.Equal(t, 1, sub.unsubscribed())
		assert.Equal(t, state.PhaseClosed, h.store.Snapshot().Phase)

		h.sub.emit(insertChange("user_engagement", "a3"))
		h.c.SetVisible(false)
		h.c.SetVisible(true)
		time.Sleep(time.Minute)
		synctest.Wait()
		assert.Equal(t, 1, h.c.Stats().Flushes)
		assert.Equal(t, 1, h.q.fetches())

		require.NoError(t, h.c.Refresh(context.Background()))
		assert.Equal(t, 1, h.sub.count())
	})
}

func TestFetchOnlyWithoutSubscriber(t *testing.T) {
	q := newFakeQuerier()
	store := &state.Store{}
	c, err := New(Options{Querier: q, Store: store})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, state.PhaseClosed, store.Snapshot().Phase)
	assert.False(t, store.Snapshot().Degraded)
	require.NoError(t, c.Close())
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{Store: &state.Store{}})
	assert.Error(t, err)
	_, err = New(Options{Querier: newFakeQuerier()})
	assert.Error(t, err)
}
