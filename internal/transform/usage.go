package transform

import (
	"fmt"

	"funnel/internal/model"
)

// Usage metric kinds. "usage_count" sums the event's usage_count field;
// "events" counts qualifying rows instead.
const (
	MetricUsageCount = "usage_count"
	MetricEvents     = "events"
)

// UsageAggregator computes per-user first-week counts for the tracked
// features. Events are resolved to their owning account through the
// subscription relation; events that cannot be resolved are skipped and
// reported through OnSkip rather than failing the run.
//
// Users with no qualifying events are simply absent from the result; the
// assembler owns zero-filling.
type UsageAggregator struct {
	// Tracked maps raw feature identifiers to output column names. Features
	// not present here are ignored entirely.
	Tracked map[string]string

	// Metric is MetricUsageCount (default when empty) or MetricEvents.
	Metric string

	// WindowDays is the inclusive window length in days after signup.
	WindowDays int

	// OnSkip, when set, receives one human-readable reason per skipped row.
	OnSkip func(reason string)
}

// Apply aggregates events into map[accountID]map[outputColumn]count.
func (a UsageAggregator) Apply(
	events []model.FeatureUsageEvent,
	subs []model.Subscription,
	dims []model.UserDim,
) map[string]map[string]int64 {
	owner := make(map[string]string, len(subs))
	for _, s := range subs {
		owner[s.SubscriptionID] = s.AccountID
	}
	signup := make(map[string]Window, len(dims))
	for _, d := range dims {
		signup[d.AccountID] = Window{Signup: d.SignupDate, Days: a.WindowDays}
	}

	out := make(map[string]map[string]int64)
	for _, ev := range events {
		col, tracked := a.Tracked[ev.FeatureName]
		if !tracked {
			continue
		}
		acct, ok := owner[ev.SubscriptionID]
		if !ok {
			a.skip(fmt.Sprintf("usage event for unknown subscription %q", ev.SubscriptionID))
			continue
		}
		w, ok := signup[acct]
		if !ok {
			a.skip(fmt.Sprintf("usage event for unknown account %q", acct))
			continue
		}
		if !w.Contains(ev.UsageAt) {
			continue
		}

		delta := int64(1)
		if a.Metric != MetricEvents {
			if ev.UsageCount < 0 {
				a.skip(fmt.Sprintf("negative usage_count %d for account %q feature %q", ev.UsageCount, acct, ev.FeatureName))
				continue
			}
			delta = ev.UsageCount
		}

		m := out[acct]
		if m == nil {
			m = make(map[string]int64)
			out[acct] = m
		}
		m[col] += delta
	}
	return out
}

func (a UsageAggregator) skip(reason string) {
	if a.OnSkip != nil {
		a.OnSkip(reason)
	}
}
