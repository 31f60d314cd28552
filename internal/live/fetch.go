package live

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/pulse/internal/analytics"
	"github.com/five82/pulse/internal/supabase"
)

const orderColumn = "created_at"

// Tables names the backend tables behind each collection and topic.
type Tables struct {
	Engagement string
	Sessions   string
	Health     string
	News       string
}

// DefaultTables returns the table names used by the analytics schema.
func DefaultTables() Tables {
	return Tables{
		Engagement: "user_engagement",
		Sessions:   "user_sessions",
		Health:     "health_metrics",
		News:       "medical_news",
	}
}

func (t Tables) withDefaults() Tables {
	d := DefaultTables()
	if t.Engagement == "" {
		t.Engagement = d.Engagement
	}
	if t.Sessions == "" {
		t.Sessions = d.Sessions
	}
	if t.Health == "" {
		t.Health = d.Health
	}
	if t.News == "" {
		t.News = d.News
	}
	return t
}

// FetchError reports which table failed during a snapshot fetch.
type FetchError struct {
	Table string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Table, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher loads full snapshots through the REST layer.
type Fetcher struct {
	Querier supabase.Querier
	Tables  Tables
	Now     func() time.Time
}

// FetchSnapshot queries every collection in parallel, newest first and
// limited to the collection cap. filter, when non-nil, applies to all three
// queries. Any failure aborts the whole fetch; callers keep their previous
// Snapshot.
func (f *Fetcher) FetchSnapshot(ctx context.Context, filter *supabase.Filter) (analytics.Snapshot, error) {
	if f == nil || f.Querier == nil {
		return analytics.Snapshot{}, fmt.Errorf("fetcher has no querier")
	}
	tables := f.Tables.withDefaults()
	targets := []struct {
		table      string
		collection analytics.Collection
	}{
		{tables.Engagement, analytics.CollectionEngagement},
		{tables.Sessions, analytics.CollectionBehavior},
		{tables.Health, analytics.CollectionHealth},
	}

	results := make([][]analytics.Record, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		g.Go(func() error {
			q := supabase.Query{
				Order:      orderColumn,
				Descending: true,
				Limit:      analytics.CapFor(target.collection),
			}
			if filter != nil {
				q.Filters = []supabase.Filter{*filter}
			}
			rows, err := f.Querier.Select(gctx, target.table, q)
			if err != nil {
				return &FetchError{Table: target.table, Err: err}
			}
			results[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return analytics.Snapshot{}, err
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return analytics.Snapshot{
		Engagement:  capRecords(results[0], analytics.EngagementCap),
		Behavior:    capRecords(results[1], analytics.BehaviorCap),
		Health:      capRecords(results[2], analytics.HealthCap),
		LastUpdated: now(),
	}, nil
}

func capRecords(records []analytics.Record, limit int) []analytics.Record {
	if len(records) > limit {
		return records[:limit]
	}
	return records
}
