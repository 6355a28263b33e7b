// Package source loads the four input relations from local CSV files into
// typed slices. It is the ingestion edge of the pipeline: all type coercion
// happens here, so the transform stages only ever see well-typed rows.
//
// Error policy: malformed rows in the subscription, usage, and ticket
// relations are skipped, counted, and reported through a callback (fail-soft;
// the pipeline favors completing the run). The accounts relation is the
// exception — it is the output spine, so a malformed account row fails the
// load.
package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// rowFn consumes one parsed CSV row. line is 1-based (header is line 1);
// get returns the trimmed cell for a canonical column name, "" when absent.
type rowFn func(line int, get func(col string) string) error

// csvFile describes one relation file for forEachRow.
type csvFile struct {
	path      string
	comma     rune
	headerMap map[string]string
	required  []string
}

// open opens the file for reading, honoring prior context cancellation.
func (f csvFile) open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.path, err)
	}
	return file, nil
}

// forEachRow streams the file row by row. Header names are trimmed and run
// through headerMap to obtain canonical column names. Row-level errors
// (reader errors or fn returning an error) are routed to onErr and the scan
// continues; onErr returning false promotes the row error to a fatal one.
func forEachRow(ctx context.Context, f csvFile, fn rowFn, onErr func(line int, err error) bool) error {
	rc, err := f.open(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	r := csv.NewReader(rc)
	r.Comma = f.comma
	r.FieldsPerRecord = -1
	r.ReuseRecord = true
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%s: read header: %w", f.path, err)
	}
	idx := make(map[string]int, len(header))
	for i, raw := range header {
		name := strings.TrimSpace(raw)
		if mapped, ok := f.headerMap[name]; ok && mapped != "" {
			name = mapped
		}
		idx[name] = i
	}
	for _, col := range f.required {
		if _, ok := idx[col]; !ok {
			return fmt.Errorf("%s: missing column %q in header", f.path, col)
		}
	}

	line := 1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			if !onErr(line, err) {
				return fmt.Errorf("%s line %d: %w", f.path, line, err)
			}
			continue
		}

		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if err := fn(line, get); err != nil {
			if !onErr(line, err) {
				return fmt.Errorf("%s line %d: %w", f.path, line, err)
			}
		}
	}
}

// coercion helpers -----------------------------------------------------------

func parseDate(s, layout string) (time.Time, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

// parseDatetime accepts the datetime layout and falls back to the date-only
// layout, since exports often carry bare dates in timestamp columns.
func parseDatetime(s, layout, dateLayout string) (time.Time, error) {
	if t, err := time.Parse(layout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q", s)
	}
	return t, nil
}

func parseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, fmt.Errorf("bad bool %q", s)
	}
	return b, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad integer %q", s)
	}
	return n, nil
}
