// Package config defines the canonical, JSON-serializable configuration model
// for the conversion-summary pipeline. It is intentionally small, explicit,
// and dependency-free so that pipeline files can be loaded from disk and
// passed through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: field names in Go mirror the JSON structure used in pipeline
//     files under configs/pipelines/*.json.
//  3. Minimalism: no third-party config libraries; decoding is performed by
//     the standard library, with ApplyDefaults filling unset values.
//
// Example (trimmed):
//
//	{
//	  "job": "freemium_conversion",
//	  "source": {
//	    "accounts": { "path": "data/accounts.csv" },
//	    "subscriptions": { "path": "data/subscriptions.csv" },
//	    "feature_usage": { "path": "data/feature_usage.csv" },
//	    "support_tickets": { "path": "data/support_tickets.csv" }
//	  },
//	  "transform": {
//	    "tracked_features": { "Reports": "first_week_uses_reports" },
//	    "paid_tiers": ["Pro", "Enterprise"]
//	  },
//	  "storage": { "kind": "sqlite", "db": { "dsn": "funnel.db", "table": "user_summary" } }
//	}
package config

import (
	"encoding/json"
	"io"
	"os"
)

// Pipeline describes one full run in JSON. It is the top-level object decoded
// from a pipeline file.
type Pipeline struct {
	// Job names the run for logs and metrics.
	Job string `json:"job"`

	// Source locates the four input relations.
	Source Source `json:"source"`

	// Transform carries every knob of the summary derivation. Nothing in the
	// transform stages is hardcoded beyond what appears here.
	Transform Transform `json:"transform"`

	// Storage describes where the summary relation is published.
	Storage Storage `json:"storage"`

	// Runtime controls internal parallelism. Results never depend on it.
	Runtime Runtime `json:"runtime"`

	// Metrics selects an optional metrics backend.
	Metrics Metrics `json:"metrics"`
}

// Source locates the four source relations as local CSV files.
type Source struct {
	Accounts       Relation `json:"accounts"`
	Subscriptions  Relation `json:"subscriptions"`
	FeatureUsage   Relation `json:"feature_usage"`
	SupportTickets Relation `json:"support_tickets"`

	// Comma is the CSV delimiter for all four files. Default ",".
	Comma string `json:"comma"`

	// DateLayout parses date-only columns (signup_date, start_date).
	// Default "2006-01-02".
	DateLayout string `json:"date_layout"`

	// DatetimeLayout parses timestamp columns (usage_date, submitted_at).
	// Default RFC 3339; a value that fails it is retried with DateLayout.
	DatetimeLayout string `json:"datetime_layout"`
}

// Relation is a single input file plus an optional header remapping from the
// raw CSV header names to the canonical column names the readers expect.
type Relation struct {
	Path      string            `json:"path"`
	HeaderMap map[string]string `json:"header_map,omitempty"`
}

// Transform is the configuration surface of the five derivation stages.
type Transform struct {
	// WindowDays is the first-week window length in days. The window is
	// inclusive on both ends: [signup, signup+WindowDays]. Default 7.
	WindowDays int `json:"window_days"`

	// TrackedFeatures maps a raw feature identifier to its output column
	// name. Features absent from the map are ignored entirely.
	TrackedFeatures map[string]string `json:"tracked_features"`

	// UsageMetric selects the aggregated magnitude: "usage_count" sums the
	// usage_count field (default), "events" counts qualifying rows.
	UsageMetric string `json:"usage_metric"`

	// PaidTiers lists the plan tiers that count as paying.
	// Default ["Pro", "Enterprise"].
	PaidTiers []string `json:"paid_tiers"`

	// ExcludeTrials, when true (default), classifies trial subscriptions as
	// non-paying regardless of tier.
	ExcludeTrials *bool `json:"exclude_trials"`

	// TierPolicy decides what happens when a subscription carries a plan
	// tier that is neither in PaidTiers nor in KnownFreeTiers: "lenient"
	// (default) classifies it as non-paying, "strict" fails the run.
	TierPolicy string `json:"tier_policy"`

	// KnownFreeTiers lists tiers that are recognized as non-paying so that
	// strict mode does not reject them. Default ["Free"].
	KnownFreeTiers []string `json:"known_free_tiers"`

	// DefaultIndustry replaces an absent industry. Default "Unknown".
	DefaultIndustry string `json:"default_industry"`
}

// Storage selects the sink used to publish the summary relation.
type Storage struct {
	// Kind selects the backend: "sqlite", "postgres", or "mssql".
	Kind string `json:"kind"`

	DB DBConfig `json:"db"`
}

// DBConfig configures the database sink.
type DBConfig struct {
	// DSN is the backend connection string (file path for sqlite,
	// postgresql:// URL for pgx, sqlserver:// URL for mssql).
	DSN string `json:"dsn"`

	// Table is the target summary table. The pipeline loads into
	// Table+"__staging" and swaps atomically on publish.
	Table string `json:"table"`

	// BatchSize is the number of rows per bulk insert. Default 1000.
	BatchSize int `json:"batch_size"`
}

// Runtime controls concurrency of the independent aggregation stages.
type Runtime struct {
	// AggregatorWorkers bounds the stages run in parallel after the spine is
	// built. 0 means "one goroutine per stage".
	AggregatorWorkers int `json:"aggregator_workers"`
}

// Metrics selects the metrics backend for the run.
type Metrics struct {
	// Backend is "none" (default), "pushgateway", or "datadog".
	Backend string `json:"backend"`

	// PushgatewayURL is the Prometheus Pushgateway base URL.
	PushgatewayURL string `json:"pushgateway_url"`

	// StatsdAddr is the DogStatsD address, e.g. "127.0.0.1:8125".
	StatsdAddr string `json:"statsd_addr"`
}

// Load decodes a pipeline file and applies defaults.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode decodes a pipeline from r and applies defaults.
func Decode(r io.Reader) (Pipeline, error) {
	var p Pipeline
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return Pipeline{}, err
	}
	p.ApplyDefaults()
	return p, nil
}

// ApplyDefaults fills unset fields with their documented defaults. It is
// idempotent and never overrides an explicitly set value.
func (p *Pipeline) ApplyDefaults() {
	if p.Job == "" {
		p.Job = "funnel"
	}
	if p.Source.Comma == "" {
		p.Source.Comma = ","
	}
	if p.Source.DateLayout == "" {
		p.Source.DateLayout = "2006-01-02"
	}
	if p.Source.DatetimeLayout == "" {
		p.Source.DatetimeLayout = "2006-01-02T15:04:05Z07:00"
	}
	if p.Transform.WindowDays == 0 {
		p.Transform.WindowDays = 7
	}
	if p.Transform.UsageMetric == "" {
		p.Transform.UsageMetric = "usage_count"
	}
	if p.Transform.PaidTiers == nil {
		p.Transform.PaidTiers = []string{"Pro", "Enterprise"}
	}
	if p.Transform.ExcludeTrials == nil {
		t := true
		p.Transform.ExcludeTrials = &t
	}
	if p.Transform.TierPolicy == "" {
		p.Transform.TierPolicy = "lenient"
	}
	if p.Transform.KnownFreeTiers == nil {
		p.Transform.KnownFreeTiers = []string{"Free"}
	}
	if p.Transform.DefaultIndustry == "" {
		p.Transform.DefaultIndustry = "Unknown"
	}
	if p.Storage.Kind == "" {
		p.Storage.Kind = "sqlite"
	}
	if p.Storage.DB.BatchSize == 0 {
		p.Storage.DB.BatchSize = 1000
	}
	if p.Metrics.Backend == "" {
		p.Metrics.Backend = "none"
	}
}
