package source

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"funnel/internal/config"
	"funnel/internal/model"
)

// Stats is the per-relation row accounting for one load.
type Stats struct {
	AccountsRead      int64
	SubscriptionsRead int64
	EventsRead        int64
	TicketsRead       int64

	SubscriptionsSkipped int64
	EventsSkipped        int64
	TicketsSkipped       int64
}

// Loader reads the four relations described by a source config.
type Loader struct {
	Cfg config.Source

	// OnRowError, when set, receives each skipped row of the fail-soft
	// relations (relation name, 1-based line, error).
	OnRowError func(relation string, line int, err error)
}

// Load reads all four relations concurrently. Any fatal error (unreadable
// file, bad header, malformed account row, cancellation) aborts the whole
// load; fail-soft skips are tallied in Stats.
func (l Loader) Load(ctx context.Context) (model.Dataset, Stats, error) {
	var (
		ds    model.Dataset
		stats Stats
	)

	comma := ','
	if l.Cfg.Comma != "" {
		comma = []rune(l.Cfg.Comma)[0]
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds.Accounts, stats.AccountsRead, err = l.readAccounts(ctx, comma)
		return err
	})
	g.Go(func() error {
		var err error
		ds.Subscriptions, stats.SubscriptionsRead, stats.SubscriptionsSkipped, err = l.readSubscriptions(ctx, comma)
		return err
	})
	g.Go(func() error {
		var err error
		ds.Events, stats.EventsRead, stats.EventsSkipped, err = l.readEvents(ctx, comma)
		return err
	})
	g.Go(func() error {
		var err error
		ds.Tickets, stats.TicketsRead, stats.TicketsSkipped, err = l.readTickets(ctx, comma)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Dataset{}, stats, err
	}
	return ds, stats, nil
}

// failSoft builds the onErr callback for a skippable relation, incrementing
// the skip counter and forwarding to OnRowError.
func (l Loader) failSoft(relation string, skipped *int64) func(int, error) bool {
	return func(line int, err error) bool {
		*skipped++
		if l.OnRowError != nil {
			l.OnRowError(relation, line, err)
		}
		return true
	}
}

// failHard aborts on the first row error; used for the account spine.
func failHard(int, error) bool { return false }

func (l Loader) readAccounts(ctx context.Context, comma rune) ([]model.Account, int64, error) {
	var (
		out  []model.Account
		read int64
	)
	f := csvFile{
		path:      l.Cfg.Accounts.Path,
		comma:     comma,
		headerMap: l.Cfg.Accounts.HeaderMap,
		required:  []string{"account_id", "signup_date"},
	}
	err := forEachRow(ctx, f, func(line int, get func(string) string) error {
		id := get("account_id")
		if id == "" {
			return fmt.Errorf("empty account_id")
		}
		signup, err := parseDate(get("signup_date"), l.Cfg.DateLayout)
		if err != nil {
			return err
		}
		read++
		out = append(out, model.Account{
			AccountID:  id,
			SignupDate: signup,
			Industry:   get("industry"),
		})
		return nil
	}, failHard)
	if err != nil {
		return nil, read, fmt.Errorf("accounts: %w", err)
	}
	return out, read, nil
}

func (l Loader) readSubscriptions(ctx context.Context, comma rune) ([]model.Subscription, int64, int64, error) {
	var (
		out           []model.Subscription
		read, skipped int64
	)
	f := csvFile{
		path:      l.Cfg.Subscriptions.Path,
		comma:     comma,
		headerMap: l.Cfg.Subscriptions.HeaderMap,
		required:  []string{"subscription_id", "account_id", "start_date", "plan_tier"},
	}
	err := forEachRow(ctx, f, func(line int, get func(string) string) error {
		id := get("subscription_id")
		acct := get("account_id")
		if id == "" || acct == "" {
			return fmt.Errorf("empty subscription_id or account_id")
		}
		start, err := parseDate(get("start_date"), l.Cfg.DateLayout)
		if err != nil {
			return err
		}
		trial := false
		if s := get("is_trial"); s != "" {
			if trial, err = parseBool(s); err != nil {
				return err
			}
		}
		read++
		out = append(out, model.Subscription{
			SubscriptionID: id,
			AccountID:      acct,
			StartDate:      start,
			PlanTier:       get("plan_tier"),
			IsTrial:        trial,
		})
		return nil
	}, l.failSoft("subscriptions", &skipped))
	if err != nil {
		return nil, read, skipped, fmt.Errorf("subscriptions: %w", err)
	}
	return out, read, skipped, nil
}

func (l Loader) readEvents(ctx context.Context, comma rune) ([]model.FeatureUsageEvent, int64, int64, error) {
	var (
		out           []model.FeatureUsageEvent
		read, skipped int64
	)
	f := csvFile{
		path:      l.Cfg.FeatureUsage.Path,
		comma:     comma,
		headerMap: l.Cfg.FeatureUsage.HeaderMap,
		required:  []string{"subscription_id", "feature_name", "usage_date"},
	}
	err := forEachRow(ctx, f, func(line int, get func(string) string) error {
		id := get("subscription_id")
		if id == "" {
			return fmt.Errorf("empty subscription_id")
		}
		at, err := parseDatetime(get("usage_date"), l.Cfg.DatetimeLayout, l.Cfg.DateLayout)
		if err != nil {
			return err
		}
		count, err := parseInt(get("usage_count"))
		if err != nil {
			return err
		}
		read++
		out = append(out, model.FeatureUsageEvent{
			SubscriptionID: id,
			FeatureName:    get("feature_name"),
			UsageAt:        at,
			UsageCount:     count,
		})
		return nil
	}, l.failSoft("feature_usage", &skipped))
	if err != nil {
		return nil, read, skipped, fmt.Errorf("feature_usage: %w", err)
	}
	return out, read, skipped, nil
}

func (l Loader) readTickets(ctx context.Context, comma rune) ([]model.SupportTicket, int64, int64, error) {
	var (
		out           []model.SupportTicket
		read, skipped int64
	)
	f := csvFile{
		path:      l.Cfg.SupportTickets.Path,
		comma:     comma,
		headerMap: l.Cfg.SupportTickets.HeaderMap,
		required:  []string{"account_id", "submitted_at"},
	}
	err := forEachRow(ctx, f, func(line int, get func(string) string) error {
		acct := get("account_id")
		if acct == "" {
			return fmt.Errorf("empty account_id")
		}
		at, err := parseDatetime(get("submitted_at"), l.Cfg.DatetimeLayout, l.Cfg.DateLayout)
		if err != nil {
			return err
		}
		read++
		out = append(out, model.SupportTicket{AccountID: acct, SubmittedAt: at})
		return nil
	}, l.failSoft("support_tickets", &skipped))
	if err != nil {
		return nil, read, skipped, fmt.Errorf("support_tickets: %w", err)
	}
	return out, read, skipped, nil
}
