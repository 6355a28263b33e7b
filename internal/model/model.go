// Package model defines the row types for the four source relations and the
// derived user summary. These are the immutable snapshots the pipeline stages
// operate on; loading and persistence live elsewhere (internal/source,
// internal/storage).
package model

import "time"

// Account is one row of the accounts relation. Industry may be empty, which
// the normalizer treats as absent and replaces with the configured sentinel.
type Account struct {
	AccountID  string
	SignupDate time.Time
	Industry   string
}

// Subscription is one row of an account's plan history. An account owns an
// ordered sequence of subscriptions; ordering is by StartDate with
// SubscriptionID as the deterministic tie-break.
type Subscription struct {
	SubscriptionID string
	AccountID      string
	StartDate      time.Time
	PlanTier       string
	IsTrial        bool
}

// FeatureUsageEvent is one feature interaction, owned by a subscription
// (and through it by an account).
type FeatureUsageEvent struct {
	SubscriptionID string
	FeatureName    string
	UsageAt        time.Time
	UsageCount     int64
}

// SupportTicket is one support ticket submitted by an account.
type SupportTicket struct {
	AccountID   string
	SubmittedAt time.Time
}

// Dataset bundles the four source relations for a single run.
type Dataset struct {
	Accounts      []Account
	Subscriptions []Subscription
	Events        []FeatureUsageEvent
	Tickets       []SupportTicket
}

// UserDim is the normalized spine row: exactly one per account, with the
// signup date truncated to day granularity and industry defaulted.
type UserDim struct {
	AccountID  string
	SignupDate time.Time
	Industry   string
}

// UserSummary is one row of the derived output relation.
//
// FeatureCounts is keyed by output column name (the business-facing name from
// the tracked-feature mapping) and is fully zero-filled by the assembler:
// every configured column is present for every user. DaysToConversion is
// meaningful only when DidConvert is true; storage writes NULL otherwise.
type UserSummary struct {
	UserID           string
	Industry         string
	SignupDate       time.Time
	DidConvert       bool
	DaysToConversion float64
	FeatureCounts    map[string]int64
	FirstWeekTickets int64
}
