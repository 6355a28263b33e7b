// Package report implements the two downstream aggregates consumed by the
// business decision: per-feature first-week averages split by conversion
// status, and a usage-bucket vs conversion-rate cross-tab.
//
// Both are single read-only passes over the assembled summary rows and rely
// on the assembler's zero-fill guarantee: every tracked feature column is
// present (at least zero) on every row, and did_convert is always defined.
package report

import (
	"log"

	"funnel/internal/model"
)

// FeatureStat is the average first-week count of one feature column, split
// by conversion status.
type FeatureStat struct {
	Column        string
	ConvertAvg    float64
	NonConvertAvg float64
}

// Correlation is the feature-correlation report.
type Correlation struct {
	Converts    int
	NonConverts int
	Features    []FeatureStat
}

// FeatureCorrelation averages each tracked feature column over converts and
// non-converts. featureCols fixes the output order. Empty groups average to
// zero rather than dividing by zero.
func FeatureCorrelation(rows []model.UserSummary, featureCols []string) Correlation {
	var rep Correlation
	sums := make(map[string][2]int64, len(featureCols))

	for _, r := range rows {
		i := 0
		if r.DidConvert {
			rep.Converts++
			i = 1
		} else {
			rep.NonConverts++
		}
		for _, col := range featureCols {
			s := sums[col]
			s[i] += r.FeatureCounts[col]
			sums[col] = s
		}
	}

	for _, col := range featureCols {
		s := sums[col]
		stat := FeatureStat{Column: col}
		if rep.NonConverts > 0 {
			stat.NonConvertAvg = float64(s[0]) / float64(rep.NonConverts)
		}
		if rep.Converts > 0 {
			stat.ConvertAvg = float64(s[1]) / float64(rep.Converts)
		}
		rep.Features = append(rep.Features, stat)
	}
	return rep
}

// Log prints the report in the run log.
func (c Correlation) Log() {
	log.Printf("report: feature correlation (converts=%d non_converts=%d)", c.Converts, c.NonConverts)
	for _, f := range c.Features {
		log.Printf("report:   %s convert_avg=%.2f non_convert_avg=%.2f", f.Column, f.ConvertAvg, f.NonConvertAvg)
	}
}

// Bucket is one row of the usage cross-tab: users whose total first-week
// tracked usage falls in the bucket, and how many of them converted.
type Bucket struct {
	Label    string
	Users    int
	Converts int
	Rate     float64
}

// bucketEdges are the inclusive upper bounds of the finite buckets; the last
// bucket is open-ended.
var bucketEdges = []struct {
	label string
	max   int64
}{
	{"0", 0},
	{"1-2", 2},
	{"3-5", 5},
	{"6-10", 10},
}

// UsageBuckets cross-tabulates total first-week tracked usage against the
// conversion rate. Buckets with zero users are still present so downstream
// charting sees a stable shape.
func UsageBuckets(rows []model.UserSummary) []Bucket {
	out := make([]Bucket, len(bucketEdges)+1)
	for i, e := range bucketEdges {
		out[i].Label = e.label
	}
	out[len(bucketEdges)].Label = "11+"

	for _, r := range rows {
		var total int64
		for _, n := range r.FeatureCounts {
			total += n
		}
		i := len(bucketEdges)
		for j, e := range bucketEdges {
			if total <= e.max {
				i = j
				break
			}
		}
		out[i].Users++
		if r.DidConvert {
			out[i].Converts++
		}
	}

	for i := range out {
		if out[i].Users > 0 {
			out[i].Rate = float64(out[i].Converts) / float64(out[i].Users)
		}
	}
	return out
}

// LogBuckets prints the cross-tab in the run log.
func LogBuckets(buckets []Bucket) {
	log.Printf("report: usage buckets vs conversion")
	for _, b := range buckets {
		log.Printf("report:   usage=%-5s users=%d converts=%d rate=%.2f", b.Label, b.Users, b.Converts, b.Rate)
	}
}
