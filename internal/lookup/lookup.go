// Package lookup resolves a scanned code to an inventory record.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrNoRecord means the source answered and holds no record for the code.
	ErrNoRecord = errors.New("no record for code")
	// ErrEmptyCode is returned for a blank code; no request is made.
	ErrEmptyCode = errors.New("empty code")
)

// Record is one inventory row.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime time.Time      `json:"created_time,omitzero"`
	Fields      map[string]any `json:"fields"`
	// Source names the table or cache the record came from.
	Source string `json:"source"`
}

// Lookuper finds the record for a code. Implementations return ErrNoRecord
// when the code is unknown and any other error when the source could not be
// asked.
type Lookuper interface {
	Lookup(ctx context.Context, code string) (*Record, error)
}

// Func adapts a plain function to Lookuper.
type Func func(ctx context.Context, code string) (*Record, error)

func (f Func) Lookup(ctx context.Context, code string) (*Record, error) { return f(ctx, code) }

// Field is one display row of a record.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// DisplayFields returns the record's non-empty fields with humanised labels,
// sorted by label.
func DisplayFields(r *Record) []Field {
	if r == nil {
		return nil
	}
	out := make([]Field, 0, len(r.Fields))
	for k, v := range r.Fields {
		if empty(v) {
			continue
		}
		out = append(out, Field{Label: Humanize(k), Value: display(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Humanize turns "serial_number" into "Serial number".
func Humanize(key string) string {
	s := strings.ReplaceAll(key, "_", " ")
	if s == "" {
		return s
	}
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

func empty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case float64:
		return x == 0
	case int:
		return x == 0
	case []any:
		return len(x) == 0
	}
	return false
}

func display(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = display(e)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}
