package frame

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

// DefaultCellSize is the edge length in pixels of one bit cell.
const DefaultCellSize = 4

// PixelCodec packs payload bits into a grid of black and white cells,
// preceded by a 32-bit length. It is denser than QR but has no error
// correction, so it is meant for lossless or near-lossless containers.
type PixelCodec struct {
	Size int
	Cell int
}

// NewPixelCodec creates a pixel codec producing size x size images.
func NewPixelCodec(size int) *PixelCodec {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &PixelCodec{Size: size, Cell: DefaultCellSize}
}

// Capacity returns the maximum payload length in bytes.
func (c *PixelCodec) Capacity() int {
	cells := c.Size / c.Cell
	return cells*cells/8 - 4
}

// Encode renders payload as a cell grid.
func (c *PixelCodec) Encode(payload []byte) (image.Image, error) {
	if len(payload) > c.Capacity() {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), c.Capacity())
	}

	data := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(payload)), uint32(len(payload)))
	data = append(data, payload...)

	img := image.NewGray(image.Rect(0, 0, c.Size, c.Size))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}

	cols := c.Size / c.Cell
	for bit := 0; bit < len(data)*8; bit++ {
		if data[bit/8]&(0x80>>(bit%8)) == 0 {
			continue
		}
		x0, y0 := (bit%cols)*c.Cell, (bit/cols)*c.Cell
		for y := y0; y < y0+c.Cell; y++ {
			for x := x0; x < x0+c.Cell; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return img, nil
}

// Decode samples the centre of every cell.
func (c *PixelCodec) Decode(img image.Image) ([]byte, error) {
	b := img.Bounds()
	cols, rows := b.Dx()/c.Cell, b.Dy()/c.Cell
	total := cols * rows

	bitAt := func(bit int) bool {
		x := b.Min.X + (bit%cols)*c.Cell + c.Cell/2
		y := b.Min.Y + (bit/cols)*c.Cell + c.Cell/2
		g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
		return g.Y < 0x80
	}
	readBytes := func(from, n int) []byte {
		out := make([]byte, n)
		for i := 0; i < n*8; i++ {
			if bitAt(from*8 + i) {
				out[i/8] |= 0x80 >> (i % 8)
			}
		}
		return out
	}

	if total < 32 {
		return nil, fmt.Errorf("%w: image too small", ErrUnreadable)
	}
	n := int(binary.BigEndian.Uint32(readBytes(0, 4)))
	if n > total/8-4 {
		return nil, fmt.Errorf("%w: declared length %d exceeds image capacity", ErrUnreadable, n)
	}
	return readBytes(4, n), nil
}

// Name returns "pixel".
func (c *PixelCodec) Name() string { return "pixel" }
