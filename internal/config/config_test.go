package config

import (
	"reflect"
	"strings"
	"testing"
)

func TestDecodeAppliesDefaults(t *testing.T) {
	p, err := Decode(strings.NewReader(`{
		"job": "t",
		"source": {
			"accounts": {"path": "a.csv"},
			"subscriptions": {"path": "s.csv"},
			"feature_usage": {"path": "u.csv"},
			"support_tickets": {"path": "k.csv"}
		},
		"storage": {"db": {"dsn": "t.db", "table": "user_summary"}}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if p.Source.Comma != "," {
		t.Fatalf("comma default: %q", p.Source.Comma)
	}
	if p.Source.DateLayout != "2006-01-02" {
		t.Fatalf("date layout default: %q", p.Source.DateLayout)
	}
	if p.Transform.WindowDays != 7 {
		t.Fatalf("window default: %d", p.Transform.WindowDays)
	}
	if !reflect.DeepEqual(p.Transform.PaidTiers, []string{"Pro", "Enterprise"}) {
		t.Fatalf("paid tiers default: %v", p.Transform.PaidTiers)
	}
	if p.Transform.ExcludeTrials == nil || !*p.Transform.ExcludeTrials {
		t.Fatalf("exclude_trials should default to true")
	}
	if p.Transform.TierPolicy != "lenient" {
		t.Fatalf("tier policy default: %q", p.Transform.TierPolicy)
	}
	if p.Transform.UsageMetric != "usage_count" {
		t.Fatalf("usage metric default: %q", p.Transform.UsageMetric)
	}
	if p.Transform.DefaultIndustry != "Unknown" {
		t.Fatalf("default industry: %q", p.Transform.DefaultIndustry)
	}
	if p.Storage.Kind != "sqlite" || p.Storage.DB.BatchSize != 1000 {
		t.Fatalf("storage defaults: %+v", p.Storage)
	}
	if p.Metrics.Backend != "none" {
		t.Fatalf("metrics default: %q", p.Metrics.Backend)
	}
}

func TestDecodeDoesNotOverrideExplicitValues(t *testing.T) {
	p, err := Decode(strings.NewReader(`{
		"transform": {
			"window_days": 14,
			"exclude_trials": false,
			"tier_policy": "strict",
			"paid_tiers": ["Team"]
		},
		"storage": {"kind": "postgres"}
	}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Transform.WindowDays != 14 {
		t.Fatalf("window: %d", p.Transform.WindowDays)
	}
	if *p.Transform.ExcludeTrials {
		t.Fatalf("explicit exclude_trials=false was overridden")
	}
	if p.Transform.TierPolicy != "strict" {
		t.Fatalf("tier policy: %q", p.Transform.TierPolicy)
	}
	if !reflect.DeepEqual(p.Transform.PaidTiers, []string{"Team"}) {
		t.Fatalf("paid tiers: %v", p.Transform.PaidTiers)
	}
	if p.Storage.Kind != "postgres" {
		t.Fatalf("storage kind: %q", p.Storage.Kind)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"job": `)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadSamplePipeline(t *testing.T) {
	p, err := Load("../../configs/pipelines/freemium.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if issues := ValidatePipeline(p); HasErrors(issues) {
		t.Fatalf("sample pipeline has errors: %v", issues)
	}
	if p.Job != "freemium_conversion" {
		t.Fatalf("job: %q", p.Job)
	}
	if len(p.Transform.TrackedFeatures) != 4 {
		t.Fatalf("tracked features: %v", p.Transform.TrackedFeatures)
	}
}
