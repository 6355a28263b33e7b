package transform

import (
	"sort"
	"time"

	"funnel/internal/model"
)

// Assembler outer-joins the dimension spine with the usage, ticket, and
// conversion facts into the final summary rows.
//
// The spine determines cardinality: exactly one output row per UserDim,
// whether or not any fact exists for that account. Every tracked feature
// column and the ticket count are zero-filled; days-to-conversion is derived
// from the conversion date when present.
type Assembler struct {
	// FeatureColumns is the full set of output usage columns, in the order
	// produced by FeatureColumns(tracked). Each is present (at least zero)
	// on every output row.
	FeatureColumns []string
}

// Apply joins everything and returns rows ordered by signup date, then
// account ID. The secondary key keeps reruns byte-identical even when many
// accounts share a signup day.
func (a Assembler) Apply(
	dims []model.UserDim,
	usage map[string]map[string]int64,
	tickets map[string]int64,
	conversions map[string]time.Time,
) []model.UserSummary {
	out := make([]model.UserSummary, 0, len(dims))
	for _, d := range dims {
		row := model.UserSummary{
			UserID:           d.AccountID,
			Industry:         d.Industry,
			SignupDate:       d.SignupDate,
			FeatureCounts:    make(map[string]int64, len(a.FeatureColumns)),
			FirstWeekTickets: tickets[d.AccountID],
		}
		for _, col := range a.FeatureColumns {
			row.FeatureCounts[col] = usage[d.AccountID][col]
		}
		if conv, ok := conversions[d.AccountID]; ok {
			row.DidConvert = true
			row.DaysToConversion = conv.Sub(d.SignupDate).Hours() / 24
		}
		out = append(out, row)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].SignupDate.Equal(out[j].SignupDate) {
			return out[i].SignupDate.Before(out[j].SignupDate)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
