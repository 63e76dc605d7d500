package decoder

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

var tryHarder = map[gozxing.DecodeHintType]interface{}{
	gozxing.DecodeHintType_TRY_HARDER: true,
}

// zxing adapts a gozxing reader. gozxing readers keep per-decode state, so
// calls are serialised.
type zxing struct {
	mu     sync.Mutex
	reader gozxing.Reader
	closed bool
}

// NewUPCEAN reads UPC-A, UPC-E, EAN-8 and EAN-13 retail codes.
func NewUPCEAN() Decoder {
	return &zxing{reader: oned.NewMultiFormatUPCEANReader(tryHarder)}
}

// NewCode128 reads Code 128, common on asset tags and shipping labels.
func NewCode128() Decoder {
	return &zxing{reader: oned.NewCode128Reader()}
}

// NewQR reads QR codes.
func NewQR() Decoder {
	return &zxing{reader: qrcode.NewQRCodeReader()}
}

func (z *zxing) Decode(ctx context.Context, img image.Image) Result {
	if err := ctx.Err(); err != nil {
		return Result{Kind: Failed, Err: err}
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return Result{Kind: Failed, Err: err}
	}

	z.mu.Lock()
	defer z.mu.Unlock()
	if z.closed {
		return Result{Kind: Failed, Err: ErrClosed}
	}
	res, err := z.reader.Decode(bmp, tryHarder)
	z.reader.Reset()
	if err != nil {
		var nf gozxing.NotFoundException
		if errors.As(err, &nf) {
			return Result{Kind: NotFound}
		}
		return Result{Kind: Failed, Err: err}
	}
	if res.GetText() == "" {
		return Result{Kind: NotFound}
	}
	return Result{Kind: Found, Code: res.GetText(), Format: res.GetBarcodeFormat().String()}
}

func (z *zxing) Close() error {
	z.mu.Lock()
	z.closed = true
	z.mu.Unlock()
	return nil
}
