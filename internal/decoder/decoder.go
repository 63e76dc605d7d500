// Package decoder turns a video frame into a barcode string. Each decoding
// technology is one Decoder; callers pick one at construction time.
package decoder

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
)

// Kind is the outcome of one decode attempt.
type Kind int

const (
	// NotFound means no code was visible in the frame. It is the normal
	// result for most frames and is not an error.
	NotFound Kind = iota
	Found
	// Failed means something that looked like a code could not be read
	// (bad checksum, malformed symbol, unusable frame).
	Failed
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "not_found"
	}
}

// Result of a single decode attempt.
type Result struct {
	Kind   Kind
	Code   string
	Format string
	Err    error
}

// Decoder attempts to read a code from one frame. Implementations need not be
// safe for concurrent Decode calls from different goroutines unless noted.
type Decoder interface {
	Decode(ctx context.Context, img image.Image) Result
	Close() error
}

// DefaultName is the decoder used when none is configured.
const DefaultName = "multi"

var constructors = map[string]func() Decoder{
	"upcean":  NewUPCEAN,
	"code128": NewCode128,
	"qrcode":  NewQR,
	"multi": func() Decoder {
		return Multi(NewUPCEAN(), NewCode128(), NewQR())
	},
}

// New returns the decoder registered under name.
func New(name string) (Decoder, error) {
	if name == "" {
		name = DefaultName
	}
	ctor, ok := constructors[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown decoder %q (want one of %s)", name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the registered decoder names.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
