package transform

import (
	"reflect"
	"testing"
	"time"

	"funnel/internal/model"
)

func TestAssemblerJoinsAndZeroFills(t *testing.T) {
	cols := []string{
		"first_week_uses_api",
		"first_week_uses_dashboards",
		"first_week_uses_reports",
	}
	dims := []model.UserDim{
		{AccountID: "A002", SignupDate: d("2024-02-01"), Industry: "Fintech"},
		{AccountID: "A001", SignupDate: d("2024-01-01"), Industry: "Unknown"},
	}
	usage := map[string]map[string]int64{
		"A001": {"first_week_uses_reports": 3},
	}
	tickets := map[string]int64{}
	conversions := map[string]time.Time{"A001": d("2024-01-10")}

	got := Assembler{FeatureColumns: cols}.Apply(dims, usage, tickets, conversions)

	want := []model.UserSummary{
		{
			UserID:     "A001",
			Industry:   "Unknown",
			SignupDate: d("2024-01-01"),
			DidConvert: true,
			// Signed up Jan 1, converted Jan 10.
			DaysToConversion: 9,
			FeatureCounts: map[string]int64{
				"first_week_uses_api":        0,
				"first_week_uses_dashboards": 0,
				"first_week_uses_reports":    3,
			},
			FirstWeekTickets: 0,
		},
		{
			UserID:     "A002",
			Industry:   "Fintech",
			SignupDate: d("2024-02-01"),
			DidConvert: false,
			FeatureCounts: map[string]int64{
				"first_week_uses_api":        0,
				"first_week_uses_dashboards": 0,
				"first_week_uses_reports":    0,
			},
			FirstWeekTickets: 0,
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
}

func TestAssemblerPreservesSpineCardinality(t *testing.T) {
	dims := []model.UserDim{
		{AccountID: "A", SignupDate: d("2024-01-01"), Industry: "Unknown"},
		{AccountID: "B", SignupDate: d("2024-01-02"), Industry: "Unknown"},
		{AccountID: "C", SignupDate: d("2024-01-03"), Industry: "Unknown"},
	}
	// Facts for accounts outside the spine must not add rows.
	usage := map[string]map[string]int64{"ghost": {"reports": 9}}
	tickets := map[string]int64{"ghost": 4}

	got := Assembler{FeatureColumns: []string{"reports"}}.Apply(dims, usage, tickets, nil)
	if len(got) != len(dims) {
		t.Fatalf("cardinality changed: %d rows want %d", len(got), len(dims))
	}
	for _, row := range got {
		if row.FeatureCounts["reports"] != 0 || row.FirstWeekTickets != 0 {
			t.Fatalf("unexpected facts on %s: %+v", row.UserID, row)
		}
	}
}

func TestAssemblerDaysOnlyMeaningfulWhenConverted(t *testing.T) {
	dims := []model.UserDim{
		{AccountID: "A", SignupDate: d("2024-01-01"), Industry: "Unknown"},
		{AccountID: "B", SignupDate: d("2024-01-01"), Industry: "Unknown"},
	}
	conversions := map[string]time.Time{"A": d("2024-01-01")}

	got := Assembler{}.Apply(dims, nil, nil, conversions)
	for _, row := range got {
		if row.DidConvert && row.UserID != "A" {
			t.Fatalf("unexpected conversion on %s", row.UserID)
		}
		if !row.DidConvert && row.DaysToConversion != 0 {
			t.Fatalf("non-converted row carries days: %+v", row)
		}
	}
	// Same-day conversion is a legitimate zero.
	if got[0].UserID != "A" || !got[0].DidConvert || got[0].DaysToConversion != 0 {
		t.Fatalf("same-day conversion mishandled: %+v", got[0])
	}
}

func TestAssemblerOrdersBySignupThenUserID(t *testing.T) {
	dims := []model.UserDim{
		{AccountID: "Z", SignupDate: d("2024-01-02")},
		{AccountID: "B", SignupDate: d("2024-01-01")},
		{AccountID: "A", SignupDate: d("2024-01-02")},
	}
	got := Assembler{}.Apply(dims, nil, nil, nil)

	var ids []string
	for _, row := range got {
		ids = append(ids, row.UserID)
	}
	want := []string{"B", "A", "Z"}
	if !reflect.DeepEqual(ids, want) {
		t.Fatalf("order %v want %v", ids, want)
	}
}
