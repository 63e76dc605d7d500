package decoder

import (
	"context"
	"errors"
	"image"
)

// ErrClosed is reported by a decoder used after Close.
var ErrClosed = errors.New("decoder closed")

type multi struct {
	decoders []Decoder
}

// Multi tries each decoder in order and returns the first Found. When none
// finds a code the result is Failed if any of them failed, otherwise NotFound.
func Multi(decoders ...Decoder) Decoder {
	return &multi{decoders: decoders}
}

func (m *multi) Decode(ctx context.Context, img image.Image) Result {
	var failed *Result
	for _, d := range m.decoders {
		if ctx.Err() != nil {
			return Result{Kind: Failed, Err: ctx.Err()}
		}
		r := d.Decode(ctx, img)
		switch r.Kind {
		case Found:
			return r
		case Failed:
			if failed == nil {
				failed = &r
			}
		}
	}
	if failed != nil {
		return *failed
	}
	return Result{Kind: NotFound}
}

func (m *multi) Close() error {
	var errs []error
	for _, d := range m.decoders {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
