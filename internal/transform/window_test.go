package transform

import (
	"testing"
	"time"
)

func TestWindowContains(t *testing.T) {
	w := Window{Signup: d("2024-01-01"), Days: 7}
	cases := []struct {
		at   time.Time
		want bool
	}{
		{d("2024-01-01"), true},
		{d("2024-01-08"), true},
		{dt("2024-01-08T23:59:59Z"), true}, // day granularity, not 168 hours
		{d("2024-01-09"), false},
		{d("2023-12-31"), false},
	}
	for _, tc := range cases {
		if got := w.Contains(tc.at); got != tc.want {
			t.Fatalf("Contains(%s)=%v want %v", tc.at, got, tc.want)
		}
	}
}
