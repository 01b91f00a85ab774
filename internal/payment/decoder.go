package payment

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode is returned when an image holds no readable QR code.
var ErrNoCode = errors.New("payment: no QR code found")

// Decoder extracts the payload of a QR code from pixels.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(img image.Image) (string, error)

// Decode implements Decoder.
func (f DecoderFunc) Decode(img image.Image) (string, error) { return f(img) }

// QRDecoder decodes QR codes with gozxing.
type QRDecoder struct {
	mu     sync.Mutex
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewQRDecoder returns a decoder that tries harder on noisy photos of codes.
func NewQRDecoder() *QRDecoder {
	return &QRDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode implements Decoder.
func (d *QRDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("payment: binarize: %w", err)
	}
	d.mu.Lock()
	res, err := d.reader.Decode(bmp, d.hints)
	d.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	if res.GetText() == "" {
		return "", ErrNoCode
	}
	return res.GetText(), nil
}
