// Package container packs ordered frame images into a video file and back.
package container

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// ErrContainer is returned when muxing or demuxing fails.
var ErrContainer = errors.New("container failure")

// Container muxes an ordered image sequence into a file and demuxes it again.
// Demux must return images in the order they were muxed. Pixel-exact round
// trips are not required.
type Container interface {
	Mux(ctx context.Context, frames []image.Image, path string) error
	Demux(ctx context.Context, path string) ([]image.Image, error)
	Name() string
}

// FrameName returns the file name of frame i. Indices are zero padded to
// six digits; see sortFrameNames for ordering larger ones.
func FrameName(i int) string {
	return fmt.Sprintf("frame_%06d.png", i)
}
