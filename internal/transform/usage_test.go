package transform

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"funnel/internal/model"
)

func dt(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ev(subID, feature string, at time.Time, count int64) model.FeatureUsageEvent {
	return model.FeatureUsageEvent{
		SubscriptionID: subID,
		FeatureName:    feature,
		UsageAt:        at,
		UsageCount:     count,
	}
}

var usageDims = []model.UserDim{
	{AccountID: "A001", SignupDate: d("2024-01-01"), Industry: "Unknown"},
	{AccountID: "A002", SignupDate: d("2024-02-01"), Industry: "Unknown"},
}

var usageSubs = []model.Subscription{
	sub("s1", "A001", "2024-01-01", "Free", false),
	sub("s2", "A002", "2024-02-01", "Enterprise", false),
}

func TestUsageAggregatorSumsTrackedFeatures(t *testing.T) {
	a := UsageAggregator{
		Tracked:    map[string]string{"Reports": "first_week_uses_reports"},
		WindowDays: 7,
	}
	got := a.Apply([]model.FeatureUsageEvent{
		ev("s1", "Reports", d("2024-01-03"), 3),
		ev("s1", "Reports", d("2024-01-04"), 2),
		ev("s1", "Untracked", d("2024-01-03"), 50),
	}, usageSubs, usageDims)

	want := map[string]map[string]int64{
		"A001": {"first_week_uses_reports": 5},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUsageAggregatorWindowBoundaries(t *testing.T) {
	a := UsageAggregator{
		Tracked:    map[string]string{"Reports": "reports"},
		WindowDays: 7,
	}
	got := a.Apply([]model.FeatureUsageEvent{
		ev("s1", "Reports", d("2024-01-01"), 1),                  // signup day: in
		ev("s1", "Reports", d("2024-01-08"), 1),                  // signup+7: in
		ev("s1", "Reports", dt("2024-01-08T23:59:00Z"), 1),       // late on day 7: in
		ev("s1", "Reports", d("2024-01-09"), 1),                  // signup+8: out
		ev("s1", "Reports", d("2023-12-31"), 1),                  // before signup: out
	}, usageSubs, usageDims)

	want := map[string]map[string]int64{"A001": {"reports": 3}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUsageAggregatorEventMetricCountsRows(t *testing.T) {
	a := UsageAggregator{
		Tracked:    map[string]string{"Reports": "reports"},
		Metric:     MetricEvents,
		WindowDays: 7,
	}
	got := a.Apply([]model.FeatureUsageEvent{
		ev("s1", "Reports", d("2024-01-02"), 10),
		ev("s1", "Reports", d("2024-01-03"), 10),
	}, usageSubs, usageDims)

	want := map[string]map[string]int64{"A001": {"reports": 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestUsageAggregatorSkipsOrphansAndNegatives(t *testing.T) {
	var skips []string
	a := UsageAggregator{
		Tracked:    map[string]string{"Reports": "reports"},
		WindowDays: 7,
		OnSkip:     func(reason string) { skips = append(skips, reason) },
	}
	got := a.Apply([]model.FeatureUsageEvent{
		ev("ghost", "Reports", d("2024-01-02"), 1), // unknown subscription
		ev("s1", "Reports", d("2024-01-02"), -4),   // negative count
		ev("s1", "Reports", d("2024-01-02"), 2),
	}, usageSubs, usageDims)

	want := map[string]map[string]int64{"A001": {"reports": 2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if len(skips) != 2 {
		t.Fatalf("expected 2 skips, got %d: %v", len(skips), skips)
	}
	if !strings.Contains(skips[0], "unknown subscription") {
		t.Fatalf("unexpected first skip reason: %q", skips[0])
	}
}

func TestUsageAggregatorOmitsUsersWithNoEvents(t *testing.T) {
	a := UsageAggregator{
		Tracked:    map[string]string{"Reports": "reports"},
		WindowDays: 7,
	}
	got := a.Apply(nil, usageSubs, usageDims)
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}
