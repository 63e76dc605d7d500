package decoder

import (
	"context"
	"image"

	"github.com/eargollo/shelfscan/internal/frame"
)

type scaled struct {
	Decoder
	maxWidth int
}

// Scaled downsizes frames wider than maxWidth before handing them to d.
func Scaled(d Decoder, maxWidth int) Decoder {
	if maxWidth <= 0 {
		return d
	}
	return &scaled{Decoder: d, maxWidth: maxWidth}
}

func (s *scaled) Decode(ctx context.Context, img image.Image) Result {
	return s.Decoder.Decode(ctx, frame.Fit(img, s.maxWidth))
}
