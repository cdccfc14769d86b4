package frame

import (
	"errors"
	"image"
)

var (
	// ErrUnreadable is returned when no payload can be read from an image.
	ErrUnreadable = errors.New("frame unreadable")

	// ErrPayloadTooLarge is returned when a payload does not fit in one frame.
	ErrPayloadTooLarge = errors.New("payload too large for frame")
)

// Codec renders payload bytes as an image and reads them back.
// Implementations must be safe for concurrent use.
type Codec interface {
	Encode(payload []byte) (image.Image, error)
	Decode(img image.Image) ([]byte, error)
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string, size int) (Codec, bool) {
	switch name {
	case "qr":
		return NewQRCodec(size), true
	case "pixel":
		return NewPixelCodec(size), true
	default:
		return nil, false
	}
}
