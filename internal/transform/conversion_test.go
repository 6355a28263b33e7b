package transform

import (
	"reflect"
	"testing"
	"time"

	"funnel/internal/model"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func defaultClassifier() Classifier {
	return NewClassifier([]string{"Pro", "Enterprise"}, []string{"Free"}, true, TierLenient)
}

func sub(id, acct, start, tier string, trial bool) model.Subscription {
	return model.Subscription{
		SubscriptionID: id,
		AccountID:      acct,
		StartDate:      d(start),
		PlanTier:       tier,
		IsTrial:        trial,
	}
}

func TestClassifierPaying(t *testing.T) {
	c := defaultClassifier()
	cases := []struct {
		name string
		s    model.Subscription
		want bool
	}{
		{"free", sub("s1", "a", "2024-01-01", "Free", false), false},
		{"pro", sub("s1", "a", "2024-01-01", "Pro", false), true},
		{"enterprise", sub("s1", "a", "2024-01-01", "Enterprise", false), true},
		{"pro trial", sub("s1", "a", "2024-01-01", "Pro", true), false},
		{"free trial", sub("s1", "a", "2024-01-01", "Free", true), false},
		{"unknown tier lenient", sub("s1", "a", "2024-01-01", "Legacy", false), false},
	}
	for _, tc := range cases {
		got, err := c.Paying(tc.s)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: paying=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestClassifierTrialsCountWhenNotExcluded(t *testing.T) {
	c := NewClassifier([]string{"Pro"}, []string{"Free"}, false, TierLenient)
	got, err := c.Paying(sub("s1", "a", "2024-01-01", "Pro", true))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatalf("trial Pro should be paying when trials are not excluded")
	}
}

func TestClassifierStrictRejectsUnknownTier(t *testing.T) {
	c := NewClassifier([]string{"Pro"}, []string{"Free"}, true, TierStrict)
	if _, err := c.Paying(sub("s1", "a", "2024-01-01", "Legacy", false)); err == nil {
		t.Fatalf("expected error for unknown tier under strict policy")
	}
}

func TestDetectSimpleConversion(t *testing.T) {
	det := ConversionDetector{Classify: defaultClassifier()}
	got, err := det.Detect([]model.Subscription{
		sub("s1", "A001", "2024-01-01", "Free", false),
		sub("s2", "A001", "2024-01-10", "Pro", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]time.Time{"A001": d("2024-01-10")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDetectInitialPayingNeverConverts(t *testing.T) {
	det := ConversionDetector{Classify: defaultClassifier()}

	// Paid from day one, no changes.
	got, err := det.Detect([]model.Subscription{
		sub("s1", "A002", "2024-02-01", "Enterprise", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("initially-paying account must not convert, got %v", got)
	}

	// A naive "ever paying" rule would also misclassify churn-and-return:
	// a later free→paid pair exists, but the initial state was paying.
	got, err = det.Detect([]model.Subscription{
		sub("s1", "B1", "2024-01-01", "Pro", false),
		sub("s2", "B1", "2024-02-01", "Free", false),
		sub("s3", "B1", "2024-03-01", "Pro", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("re-upgrade after churn from a paying start must not convert, got %v", got)
	}
}

func TestDetectFirstTransitionWins(t *testing.T) {
	// Free → Pro (day 10) → Free (day 20) → Pro (day 30): the day-10
	// transition is the conversion; later churn cannot move it.
	det := ConversionDetector{Classify: defaultClassifier()}
	got, err := det.Detect([]model.Subscription{
		sub("s1", "A", "2024-01-01", "Free", false),
		sub("s2", "A", "2024-01-10", "Pro", false),
		sub("s3", "A", "2024-01-20", "Free", false),
		sub("s4", "A", "2024-01-30", "Pro", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]time.Time{"A": d("2024-01-10")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDetectTrialUpgradeIsNotConversionUntilPaid(t *testing.T) {
	det := ConversionDetector{Classify: defaultClassifier()}
	got, err := det.Detect([]model.Subscription{
		sub("s1", "A", "2024-01-01", "Free", false),
		sub("s2", "A", "2024-01-05", "Pro", true), // trial: still non-paying
		sub("s3", "A", "2024-01-15", "Pro", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]time.Time{"A": d("2024-01-15")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestDetectSingleRowAndEmptyHistories(t *testing.T) {
	det := ConversionDetector{Classify: defaultClassifier()}

	got, err := det.Detect([]model.Subscription{
		sub("s1", "A", "2024-01-01", "Free", false),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("single free row must not convert, got %v", got)
	}

	got, err = det.Detect(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("no subscriptions must yield no conversions, got %v", got)
	}
}

func TestDetectSameDayTieBreakIsDeterministic(t *testing.T) {
	// Two rows share a start date; ordering falls back to subscription ID,
	// so s1(Free) precedes s2(Pro) and the transition lands on the same day.
	det := ConversionDetector{Classify: defaultClassifier()}
	history := []model.Subscription{
		sub("s2", "A", "2024-01-01", "Pro", false),
		sub("s1", "A", "2024-01-01", "Free", false),
	}
	want := map[string]time.Time{"A": d("2024-01-01")}
	for i := 0; i < 10; i++ {
		got, err := det.Detect(history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("iteration %d: got %v want %v", i, got, want)
		}
	}
}

func TestDetectStrictFailsOnMalformedTierAnywhere(t *testing.T) {
	det := ConversionDetector{
		Classify: NewClassifier([]string{"Pro"}, []string{"Free"}, true, TierStrict),
	}
	_, err := det.Detect([]model.Subscription{
		sub("s1", "A", "2024-01-01", "Free", false),
		sub("s2", "A", "2024-01-10", "Pro", false),
		sub("s3", "A", "2024-01-20", "Legacy", false),
	})
	if err == nil {
		t.Fatalf("expected strict policy to reject unrecognized tier")
	}
}

func TestDetectInputOrderDoesNotMatter(t *testing.T) {
	det := ConversionDetector{Classify: defaultClassifier()}
	a := []model.Subscription{
		sub("s1", "A", "2024-01-01", "Free", false),
		sub("s2", "A", "2024-01-10", "Pro", false),
		sub("s3", "B", "2024-03-01", "Free", false),
	}
	b := []model.Subscription{a[2], a[1], a[0]}

	gotA, err := det.Detect(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	gotB, err := det.Detect(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(gotA, gotB) {
		t.Fatalf("order-dependent result: %v vs %v", gotA, gotB)
	}
}
