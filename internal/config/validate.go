// Package config provides configuration models and helpers for pipeline runs.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "storage.kind",
// "transform.tracked_features"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not. Defaults are
// expected to have been applied already (see ApplyDefaults); validating a
// zero Pipeline reports the missing pieces rather than crashing.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{SeverityWarning, "job", "job name is empty; logs and metrics will be hard to attribute"})
	}

	for _, rel := range []struct {
		path string
		r    Relation
	}{
		{"source.accounts", p.Source.Accounts},
		{"source.subscriptions", p.Source.Subscriptions},
		{"source.feature_usage", p.Source.FeatureUsage},
		{"source.support_tickets", p.Source.SupportTickets},
	} {
		if strings.TrimSpace(rel.r.Path) == "" {
			issues = append(issues, Issue{SeverityError, rel.path + ".path", "input path is required"})
		}
	}

	if len(p.Source.Comma) > 1 {
		issues = append(issues, Issue{SeverityError, "source.comma", "delimiter must be a single character"})
	}

	if p.Transform.WindowDays < 0 {
		issues = append(issues, Issue{SeverityError, "transform.window_days", "window length must not be negative"})
	}
	if len(p.Transform.TrackedFeatures) == 0 {
		issues = append(issues, Issue{SeverityWarning, "transform.tracked_features", "no tracked features configured; all first-week usage columns will be absent"})
	}
	for raw, col := range p.Transform.TrackedFeatures {
		if strings.TrimSpace(col) == "" {
			issues = append(issues, Issue{SeverityError, "transform.tracked_features", fmt.Sprintf("feature %q maps to an empty output column", raw)})
		}
	}
	if dup := duplicateColumn(p.Transform.TrackedFeatures); dup != "" {
		issues = append(issues, Issue{SeverityError, "transform.tracked_features", fmt.Sprintf("output column %q is mapped from more than one feature", dup)})
	}
	if len(p.Transform.PaidTiers) == 0 {
		issues = append(issues, Issue{SeverityWarning, "transform.paid_tiers", "paid tier set is empty; no account can ever convert"})
	}
	switch p.Transform.TierPolicy {
	case "", "lenient", "strict":
	default:
		issues = append(issues, Issue{SeverityError, "transform.tier_policy", fmt.Sprintf("unknown policy %q (want lenient or strict)", p.Transform.TierPolicy)})
	}
	switch p.Transform.UsageMetric {
	case "", "usage_count", "events":
	default:
		issues = append(issues, Issue{SeverityError, "transform.usage_metric", fmt.Sprintf("unknown metric %q (want usage_count or events)", p.Transform.UsageMetric)})
	}

	switch p.Storage.Kind {
	case "sqlite", "postgres", "mssql":
	case "":
		issues = append(issues, Issue{SeverityError, "storage.kind", "storage kind is required"})
	default:
		issues = append(issues, Issue{SeverityError, "storage.kind", fmt.Sprintf("unknown storage kind %q", p.Storage.Kind)})
	}
	if strings.TrimSpace(p.Storage.DB.DSN) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.dsn", "DSN is required"})
	}
	if strings.TrimSpace(p.Storage.DB.Table) == "" {
		issues = append(issues, Issue{SeverityError, "storage.db.table", "target table is required"})
	}
	if p.Storage.DB.BatchSize < 0 {
		issues = append(issues, Issue{SeverityError, "storage.db.batch_size", "batch size must not be negative"})
	}

	switch p.Metrics.Backend {
	case "", "none", "pushgateway", "datadog":
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend", fmt.Sprintf("unknown metrics backend %q", p.Metrics.Backend)})
	}

	return issues
}

// HasErrors reports whether any issue in the slice is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// duplicateColumn returns the first output column mapped by two different
// features, or "" when the mapping is injective.
func duplicateColumn(m map[string]string) string {
	seen := make(map[string]bool, len(m))
	for _, col := range m {
		if col == "" {
			continue
		}
		if seen[col] {
			return col
		}
		seen[col] = true
	}
	return ""
}
