package transform

import (
	"fmt"
	"sort"
	"time"

	"funnel/internal/model"
)

// Tier policies for subscriptions whose plan tier is not recognized.
const (
	// TierLenient classifies an unrecognized tier as non-paying. This is the
	// default: an unknown tier can only under-count conversions, never
	// invent one.
	TierLenient = "lenient"
	// TierStrict fails the run on the first unrecognized tier.
	TierStrict = "strict"
)

// Classifier decides whether a single subscription row is paying. The
// decision is a pure function of (plan_tier, is_trial) plus configuration:
// paying ⇔ tier ∈ PaidTiers ∧ ¬(trial ∧ ExcludeTrials).
type Classifier struct {
	PaidTiers map[string]bool
	FreeTiers map[string]bool
	// ExcludeTrials, when true, forces trial rows to non-paying even on a
	// paid tier.
	ExcludeTrials bool
	// Policy is TierLenient or TierStrict.
	Policy string
}

// NewClassifier builds a Classifier from tier lists.
func NewClassifier(paidTiers, freeTiers []string, excludeTrials bool, policy string) Classifier {
	c := Classifier{
		PaidTiers:     make(map[string]bool, len(paidTiers)),
		FreeTiers:     make(map[string]bool, len(freeTiers)),
		ExcludeTrials: excludeTrials,
		Policy:        policy,
	}
	for _, t := range paidTiers {
		c.PaidTiers[t] = true
	}
	for _, t := range freeTiers {
		c.FreeTiers[t] = true
	}
	return c
}

// Paying classifies one subscription. Under TierStrict an unrecognized tier
// (neither paid nor known-free) is an error; under TierLenient it is
// non-paying.
func (c Classifier) Paying(s model.Subscription) (bool, error) {
	if c.PaidTiers[s.PlanTier] {
		if s.IsTrial && c.ExcludeTrials {
			return false, nil
		}
		return true, nil
	}
	if !c.FreeTiers[s.PlanTier] && c.Policy == TierStrict {
		return false, fmt.Errorf("subscription %s: unrecognized plan tier %q", s.SubscriptionID, s.PlanTier)
	}
	return false, nil
}

// ConversionDetector finds, per account, the first transition from a
// non-paying to a paying subscription state.
//
// Definition (the "true freemium" reading): an account converts iff its
// chronologically earliest subscription is non-paying and its ordered history
// contains at least one adjacent non-paying→paying pair. The conversion date
// is the start date of the first such pair's paying row. Accounts whose first
// recorded subscription is already paying never convert, even if they later
// churn to free and upgrade again.
type ConversionDetector struct {
	Classify Classifier
}

// Detect scans every account's subscription history and returns a sparse
// map[accountID]conversionDate. Absence means the account did not convert
// (or did not qualify). Accounts with no subscription rows have no initial
// state and are never present.
//
// Ordering is by start date with subscription ID as tie-break, so duplicate
// start dates still yield one deterministic sequence.
func (d ConversionDetector) Detect(subs []model.Subscription) (map[string]time.Time, error) {
	byAccount := make(map[string][]model.Subscription)
	for _, s := range subs {
		byAccount[s.AccountID] = append(byAccount[s.AccountID], s)
	}

	out := make(map[string]time.Time)
	for acct, history := range byAccount {
		sort.Slice(history, func(i, j int) bool {
			if !history[i].StartDate.Equal(history[j].StartDate) {
				return history[i].StartDate.Before(history[j].StartDate)
			}
			return history[i].SubscriptionID < history[j].SubscriptionID
		})

		initialPaying, err := d.Classify.Paying(history[0])
		if err != nil {
			return nil, err
		}
		if initialPaying {
			// Pre-existing paying customer: excluded regardless of later churn.
			// Still classify the rest of the history so strict tier errors
			// surface deterministically.
			if d.Classify.Policy == TierStrict {
				for _, s := range history[1:] {
					if _, err := d.Classify.Paying(s); err != nil {
						return nil, err
					}
				}
			}
			continue
		}

		prevPaying := false
		converted := false
		for _, s := range history[1:] {
			paying, err := d.Classify.Paying(s)
			if err != nil {
				return nil, err
			}
			if !converted && !prevPaying && paying {
				// First 0→1 transition wins; later churn cannot move it.
				out[acct] = s.StartDate
				converted = true
				if d.Classify.Policy != TierStrict {
					break
				}
				// Strict mode keeps scanning so malformed tiers later in the
				// history still fail the run.
			}
			prevPaying = paying
		}
	}
	return out, nil
}
