package vidmem

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/perbu/vidmem/pkg/container"
	"github.com/perbu/vidmem/pkg/embedder"
	"github.com/perbu/vidmem/pkg/frame"
)

const (
	testDim       = 32
	testFrameSize = 256
	testChunkSize = 120
)

var topics = []string{
	"apples ripen on old trees in the orchard",
	"rivers carry silt down to the delta",
	"compilers turn source code into machine code",
	"owls hunt quietly through the night",
	"glaciers carve valleys over thousands of years",
}

// corpus returns n sentences cycling through topics.
func corpus(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Note %d says %s. ", i, topics[i%len(topics)])
	}
	return b.String()
}

type fixture struct {
	provider  embedder.Provider
	codec     *frame.PixelCodec
	container *container.Memory
}

func newFixture() *fixture {
	return &fixture{
		provider:  embedder.NewHashEmbedder(testDim),
		codec:     frame.NewPixelCodec(testFrameSize),
		container: container.NewMemory(),
	}
}

func (f *fixture) memory(opts ...Option) *Memory {
	opts = append([]Option{WithChunkSize(testChunkSize)}, opts...)
	return New(f.provider, f.codec, f.container, opts...)
}

func newTestMemory(t *testing.T, opts ...Option) *Memory {
	t.Helper()
	return newFixture().memory(opts...)
}

// failingProvider fails every Embed call after the first ok calls.
type failingProvider struct {
	embedder.Provider
	ok    int64
	calls atomic.Int64
}

func (p *failingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.calls.Add(1) > p.ok {
		return nil, fmt.Errorf("%w: connection refused", embedder.ErrProviderUnavailable)
	}
	return p.Provider.Embed(ctx, text)
}

// damagingContainer rewrites demuxed frames through damage.
type damagingContainer struct {
	container.Container
	damage func(i int, img image.Image) image.Image
}

func (d *damagingContainer) Demux(ctx context.Context, path string) ([]image.Image, error) {
	frames, err := d.Container.Demux(ctx, path)
	if err != nil {
		return nil, err
	}
	for i, img := range frames {
		frames[i] = d.damage(i, img)
	}
	return frames, nil
}

// blankFrame is an all-black frame no codec can read.
func blankFrame(size int) image.Image {
	return image.NewGray(image.Rect(0, 0, size, size))
}

// flipCell inverts one bit cell of a pixel codec frame.
func flipCell(img image.Image, codec *frame.PixelCodec, bit int) image.Image {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}

	cols := codec.Size / codec.Cell
	x0, y0 := (bit%cols)*codec.Cell, (bit/cols)*codec.Cell
	for y := y0; y < y0+codec.Cell; y++ {
		for x := x0; x < x0+codec.Cell; x++ {
			g := out.GrayAt(x, y)
			out.SetGray(x, y, color.Gray{Y: 0xff - g.Y})
		}
	}
	return out
}
