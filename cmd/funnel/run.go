// Run orchestration: sources → the five derivation stages → atomic publish →
// reports. This file keeps the CLI layer thin; it depends only on the
// storage-agnostic Repository interface and never imports database drivers
// directly.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"funnel/internal/config"
	"funnel/internal/metrics"
	"funnel/internal/model"
	"funnel/internal/report"
	"funnel/internal/source"
	"funnel/internal/storage"
	"funnel/internal/transform"
)

const maxShownErrs = 3

// Function variables used to introduce test seams. In production these point
// to real implementations; tests can override them.
var (
	newRepositoryFn = storage.New

	loadFn = func(ctx context.Context, l source.Loader) (model.Dataset, source.Stats, error) {
		return l.Load(ctx)
	}
)

// counters holds cross-stage statistics for one run. Orphan counts are
// updated from concurrently running aggregators, hence atomics.
type counters struct {
	orphanEvents  atomic.Int64
	orphanTickets atomic.Int64
}

// run executes one full pipeline run. Any error aborts before the publish
// swap, leaving a previously published summary intact.
func run(ctx context.Context, p config.Pipeline, runID string, verbose bool) error {
	stats := &counters{}
	skipAgg := newErrAgg(maxShownErrs)   // skipped source rows (first N messages)
	orphanAgg := newErrAgg(maxShownErrs) // referentially inconsistent rows

	// 1) Load the four relations concurrently.
	loader := source.Loader{
		Cfg: p.Source,
		OnRowError: func(relation string, line int, err error) {
			skipAgg.add(fmt.Sprintf("%s line %d: %v", relation, line, err))
		},
	}
	start := time.Now()
	ds, srcStats, err := loadFn(ctx, loader)
	metrics.RecordStage(p.Job, "load", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	recordSourceRows(p.Job, srcStats)

	if verbose {
		log.Printf("loaded: accounts=%d subscriptions=%d events=%d tickets=%d",
			srcStats.AccountsRead, srcStats.SubscriptionsRead, srcStats.EventsRead, srcStats.TicketsRead)
	}

	// 2) Normalize the account spine.
	start = time.Now()
	dims := transform.Normalizer{DefaultIndustry: p.Transform.DefaultIndustry}.Apply(ds.Accounts)
	metrics.RecordStage(p.Job, "normalize", nil, time.Since(start))

	// 3) The three fact stages are independent given the spine; run them
	// concurrently. Results cannot depend on scheduling: each writes only its
	// own output.
	var (
		usage       map[string]map[string]int64
		tickets     map[string]int64
		conversions map[string]time.Time
	)

	g, gctx := errgroup.WithContext(ctx)
	if p.Runtime.AggregatorWorkers > 0 {
		g.SetLimit(p.Runtime.AggregatorWorkers)
	}
	g.Go(func() error {
		start := time.Now()
		usage = transform.UsageAggregator{
			Tracked:    p.Transform.TrackedFeatures,
			Metric:     p.Transform.UsageMetric,
			WindowDays: p.Transform.WindowDays,
			OnSkip: func(reason string) {
				stats.orphanEvents.Add(1)
				orphanAgg.add("feature_usage: " + reason)
			},
		}.Apply(ds.Events, ds.Subscriptions, dims)
		metrics.RecordStage(p.Job, "usage", nil, time.Since(start))
		return gctx.Err()
	})
	g.Go(func() error {
		start := time.Now()
		tickets = transform.TicketAggregator{
			WindowDays: p.Transform.WindowDays,
			OnSkip: func(reason string) {
				stats.orphanTickets.Add(1)
				orphanAgg.add("support_tickets: " + reason)
			},
		}.Apply(ds.Tickets, dims)
		metrics.RecordStage(p.Job, "tickets", nil, time.Since(start))
		return gctx.Err()
	})
	g.Go(func() error {
		start := time.Now()
		detector := transform.ConversionDetector{
			Classify: transform.NewClassifier(
				p.Transform.PaidTiers,
				p.Transform.KnownFreeTiers,
				*p.Transform.ExcludeTrials,
				p.Transform.TierPolicy,
			),
		}
		var err error
		conversions, err = detector.Detect(ds.Subscriptions)
		metrics.RecordStage(p.Job, "conversion", err, time.Since(start))
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("aggregate: %w", err)
	}

	// 4) Assemble the summary relation.
	featureCols := transform.FeatureColumns(p.Transform.TrackedFeatures)
	start = time.Now()
	summaries := transform.Assembler{FeatureColumns: featureCols}.Apply(dims, usage, tickets, conversions)
	metrics.RecordStage(p.Job, "assemble", nil, time.Since(start))

	if len(summaries) != len(ds.Accounts) {
		// Spine cardinality is the core output invariant; refuse to publish
		// anything that violates it.
		return fmt.Errorf("assemble: %d summary rows for %d accounts", len(summaries), len(ds.Accounts))
	}

	// 5) Publish: staging load + atomic swap.
	cols := storage.SummaryColumns(featureCols)
	rows := storage.SummaryRows(summaries, featureCols)
	sum := storage.Checksum(storage.ColumnNames(cols), rows)

	repo, err := newRepositoryFn(ctx, storage.Config{
		Kind:  p.Storage.Kind,
		DSN:   p.Storage.DB.DSN,
		Table: p.Storage.DB.Table,
	})
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	defer repo.Close()

	start = time.Now()
	published, err := storage.Publish(ctx, repo, storage.Config{
		Kind:  p.Storage.Kind,
		DSN:   p.Storage.DB.DSN,
		Table: p.Storage.DB.Table,
	}, cols, rows, p.Storage.DB.BatchSize)
	metrics.RecordStage(p.Job, "publish", err, time.Since(start))
	if err != nil {
		return err
	}
	metrics.RecordRows(p.Job, "user_summary", "published", published)

	log.Printf("published: table=%s rows=%d checksum=%016x run_id=%s",
		p.Storage.DB.Table, published, sum, runID)

	// 6) Downstream reports.
	report.FeatureCorrelation(summaries, featureCols).Log()
	report.LogBuckets(report.UsageBuckets(summaries))

	logSkipSummaries(skipAgg, orphanAgg)
	logRunSummary(srcStats, stats, published)
	return nil
}

// recordSourceRows forwards the loader's row accounting to metrics.
func recordSourceRows(job string, s source.Stats) {
	metrics.RecordRows(job, "accounts", "read", s.AccountsRead)
	metrics.RecordRows(job, "subscriptions", "read", s.SubscriptionsRead)
	metrics.RecordRows(job, "feature_usage", "read", s.EventsRead)
	metrics.RecordRows(job, "support_tickets", "read", s.TicketsRead)
	metrics.RecordRows(job, "subscriptions", "skipped", s.SubscriptionsSkipped)
	metrics.RecordRows(job, "feature_usage", "skipped", s.EventsSkipped)
	metrics.RecordRows(job, "support_tickets", "skipped", s.TicketsSkipped)
}

// logSkipSummaries prints aggregated skip and orphan messages. Only the
// first N unique messages (per errAgg) are shown.
func logSkipSummaries(skipAgg, orphanAgg *errAgg) {
	if skipAgg.count > 0 {
		log.Printf("skipped source rows: %d (showing first %d)", skipAgg.count, len(skipAgg.first))
		for i, s := range skipAgg.first {
			log.Printf("  #%03d: %s", i+1, s)
		}
	}
	if orphanAgg.count > 0 {
		log.Printf("orphaned rows excluded: %d (showing first %d)", orphanAgg.count, len(orphanAgg.first))
		for i, s := range orphanAgg.first {
			log.Printf("  #%03d: %s", i+1, s)
		}
	}
}

// logRunSummary prints final aggregated statistics for the run.
func logRunSummary(src source.Stats, c *counters, published int64) {
	log.Printf(
		"summary: accounts=%d published=%d subs_read=%d subs_skipped=%d events_read=%d events_skipped=%d events_orphaned=%d tickets_read=%d tickets_skipped=%d tickets_orphaned=%d",
		src.AccountsRead,
		published,
		src.SubscriptionsRead,
		src.SubscriptionsSkipped,
		src.EventsRead,
		src.EventsSkipped,
		c.orphanEvents.Load(),
		src.TicketsRead,
		src.TicketsSkipped,
		c.orphanTickets.Load(),
	)

	if published != src.AccountsRead {
		log.Printf("WARNING: cardinality mismatch: accounts=%d published=%d", src.AccountsRead, published)
	}
}

// errAgg aggregates error messages, keeping the first few for display.
type errAgg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	a.buckets[msg]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}
