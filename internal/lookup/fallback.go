package lookup

import (
	"context"
	"errors"
	"log/slog"
)

// Fallback asks its sources in order. A source answering ErrNoRecord passes
// the code on to the next one; the first record wins.
type Fallback []Lookuper

// Lookup returns ErrNoRecord only when every source answered ErrNoRecord.
// Otherwise, with no record found, it returns the sources' errors joined.
func (f Fallback) Lookup(ctx context.Context, code string) (*Record, error) {
	if code == "" {
		return nil, ErrEmptyCode
	}
	var errs []error
	for i, src := range f {
		rec, err := src.Lookup(ctx, code)
		if err == nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, ErrNoRecord) {
			slog.Warn("lookup source failed", "source", i, "code", code, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil, ErrNoRecord
	}
	return nil, errors.Join(errs...)
}
