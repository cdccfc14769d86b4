package container

import (
	"context"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps muxed frame sequences in process memory. It is lossless and
// is used for tests and dry runs. Mux writes a small file at path holding a
// key to the frames, so the artifact can be renamed or copied like a real
// video.
type Memory struct {
	mu     sync.Mutex
	videos map[string][]image.Image
}

const memoryMagic = "vidmem-memory:"

// NewMemory creates an empty in-memory container.
func NewMemory() *Memory {
	return &Memory{videos: make(map[string][]image.Image)}
}

// Name returns "memory".
func (m *Memory) Name() string { return "memory" }

// Mux stores a copy of the frame slice and writes its key to path.
func (m *Memory) Mux(ctx context.Context, frames []image.Image, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrContainer, err)
	}

	key := uuid.NewString()
	if err := os.WriteFile(path, []byte(memoryMagic+key), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrContainer, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[key] = append([]image.Image(nil), frames...)
	return nil
}

// Demux returns the frames whose key is stored at path.
func (m *Memory) Demux(ctx context.Context, path string) ([]image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}
	key, ok := strings.CutPrefix(string(data), memoryMagic)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an in-memory video", ErrContainer, path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	frames, ok := m.videos[key]
	if !ok {
		return nil, fmt.Errorf("%w: no frames for %s", ErrContainer, path)
	}
	return append([]image.Image(nil), frames...), nil
}
