package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"funnel/internal/model"
)

// dateLayout is the canonical text form for signup dates in the summary
// table. Dates are stored as text so the same rows load identically into
// every backend.
const dateLayout = "2006-01-02"

// SummaryColumns returns the backend-neutral schema of the summary table:
// the fixed identity/conversion columns, one integer column per tracked
// feature (in the caller's deterministic order), and the ticket count.
func SummaryColumns(featureCols []string) []Column {
	cols := []Column{
		{Name: "user_id", Kind: KindText, NotNull: true},
		{Name: "industry", Kind: KindText, NotNull: true},
		{Name: "signup_date", Kind: KindDate, NotNull: true},
		{Name: "did_convert", Kind: KindBool, NotNull: true},
		{Name: "days_to_conversion", Kind: KindReal},
	}
	for _, c := range featureCols {
		cols = append(cols, Column{Name: c, Kind: KindInteger, NotNull: true})
	}
	cols = append(cols, Column{Name: "first_week_tickets", Kind: KindInteger, NotNull: true})
	return cols
}

// SummaryRows converts summaries into value rows aligned with
// SummaryColumns(featureCols). did_convert is stored as 0/1;
// days_to_conversion is NULL for non-converts.
func SummaryRows(summaries []model.UserSummary, featureCols []string) [][]any {
	rows := make([][]any, 0, len(summaries))
	for _, s := range summaries {
		row := make([]any, 0, 6+len(featureCols))
		row = append(row, s.UserID, s.Industry, s.SignupDate.Format(dateLayout))
		if s.DidConvert {
			row = append(row, int64(1), s.DaysToConversion)
		} else {
			row = append(row, int64(0), nil)
		}
		for _, c := range featureCols {
			row = append(row, s.FeatureCounts[c])
		}
		row = append(row, s.FirstWeekTickets)
		rows = append(rows, row)
	}
	return rows
}

// Checksum hashes the canonical serialization of the summary relation
// (column names, then every row in order). Two runs over identical source
// data must produce the same checksum; the runner logs it so reruns can be
// compared without diffing tables.
func Checksum(columns []string, rows [][]any) uint64 {
	h := xxh3.New()
	h.WriteString(strings.Join(columns, "\x1f"))
	h.WriteString("\n")
	for _, row := range rows {
		for i, v := range row {
			if i > 0 {
				h.WriteString("\x1f")
			}
			h.WriteString(canonValue(v))
		}
		h.WriteString("\n")
	}
	return h.Sum64()
}

// canonValue renders one cell deterministically. Floats use the shortest
// round-trip form so 9 and 9.0 hash identically across runs.
func canonValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "\\N"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", x)
	}
}

// WriteBatches inserts rows into table in batches of batchSize via
// repo.CopyFrom, returning the total inserted. It is the non-streaming
// analogue of a channel loader: the whole relation is already in memory, so
// batching exists only to bound statement size.
func WriteBatches(
	ctx context.Context,
	repo Repository,
	table string,
	columns []string,
	rows [][]any,
	batchSize int,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := repo.CopyFrom(ctx, table, columns, rows[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// ColumnNames projects a []Column to its names.
func ColumnNames(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Publish loads the summary into the staging table and atomically swaps it
// into place. On any error before the swap, the previous target table is
// left untouched.
func Publish(
	ctx context.Context,
	repo Repository,
	cfg Config,
	cols []Column,
	rows [][]any,
	batchSize int,
) (int64, error) {
	staging := StagingTable(cfg.Table)
	if err := repo.RecreateTable(ctx, staging, cols); err != nil {
		return 0, fmt.Errorf("create staging table: %w", err)
	}
	n, err := WriteBatches(ctx, repo, staging, ColumnNames(cols), rows, batchSize)
	if err != nil {
		return n, fmt.Errorf("load staging table: %w", err)
	}
	if err := repo.SwapTables(ctx, staging, cfg.Table); err != nil {
		return n, fmt.Errorf("publish swap: %w", err)
	}
	return n, nil
}
