package transform

import (
	"fmt"

	"funnel/internal/model"
)

// TicketAggregator counts support tickets submitted within the first-week
// window, per account. Tickets referencing an account that is not in the
// spine are skipped and reported through OnSkip.
//
// Accounts with no qualifying tickets are absent from the result; the
// assembler zero-fills.
type TicketAggregator struct {
	WindowDays int
	OnSkip     func(reason string)
}

// Apply aggregates tickets into map[accountID]count.
func (a TicketAggregator) Apply(tickets []model.SupportTicket, dims []model.UserDim) map[string]int64 {
	signup := make(map[string]Window, len(dims))
	for _, d := range dims {
		signup[d.AccountID] = Window{Signup: d.SignupDate, Days: a.WindowDays}
	}

	out := make(map[string]int64)
	for _, t := range tickets {
		w, ok := signup[t.AccountID]
		if !ok {
			if a.OnSkip != nil {
				a.OnSkip(fmt.Sprintf("ticket for unknown account %q", t.AccountID))
			}
			continue
		}
		if !w.Contains(t.SubmittedAt) {
			continue
		}
		out[t.AccountID]++
	}
	return out
}
