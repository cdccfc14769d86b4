package frame

import (
	"fmt"
	"image"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	qrcode "github.com/skip2/go-qrcode"
)

// DefaultFrameSize is the edge length in pixels of generated frames.
const DefaultFrameSize = 640

// QRCodec renders payloads as QR codes of a fixed pixel size. A fixed size
// keeps every frame of one video identical in dimensions.
type QRCodec struct {
	Size  int
	Level qrcode.RecoveryLevel
}

// NewQRCodec creates a QR codec producing size x size images with medium
// error correction.
func NewQRCodec(size int) *QRCodec {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &QRCodec{Size: size, Level: qrcode.Medium}
}

// Encode renders payload as a QR code.
func (c *QRCodec) Encode(payload []byte) (image.Image, error) {
	q, err := qrcode.New(string(payload), c.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: %d bytes: %v", ErrPayloadTooLarge, len(payload), err)
	}
	return q.Image(c.Size), nil
}

// Decode reads the QR code in img.
func (c *QRCodec) Decode(img image.Image) ([]byte, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return []byte(res.GetText()), nil
}

// Name returns "qr".
func (c *QRCodec) Name() string { return "qr" }
