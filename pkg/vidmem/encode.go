package vidmem

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/perbu/vidmem/pkg/frame"
)

// Encode renders every chunk, in frame order, as one barcode frame, muxes
// the frames into outputPath and writes the vector store to the sidecar
// next to it. On failure existing files at both paths are left untouched.
func (m *Memory) Encode(ctx context.Context, outputPath string, opts EncodeOptions) (*EncodeResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chunks := m.index.InOrder()
	res, err := m.encode(ctx, chunks, outputPath, opts)
	m.log.LogEncode(ctx, outputPath, len(chunks), err)
	return res, err
}

func (m *Memory) encode(ctx context.Context, chunks []Chunk, outputPath string, opts EncodeOptions) (*EncodeResult, error) {
	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	if opts.Preflight {
		if err := m.preflight(ctx, chunks, filepath.Ext(outputPath)); err != nil {
			return nil, err
		}
	}

	frames, err := m.renderFrames(ctx, chunks)
	if err != nil {
		return nil, err
	}
	if len(frames) != len(chunks) {
		return nil, fmt.Errorf("rendered %d frames for %d chunks", len(frames), len(chunks))
	}

	// Both artifacts are built next to their targets and renamed into place
	// only once both exist, so a failed encode keeps any previous pair.
	sidecarPath := SidecarPath(outputPath)
	videoTmp, sidecarTmp := tempSibling(outputPath), sidecarPath+".tmp"
	cleanup := func() {
		os.Remove(videoTmp)
		os.Remove(sidecarTmp)
	}

	if err := m.container.Mux(ctx, frames, videoTmp); err != nil {
		cleanup()
		return nil, fmt.Errorf("mux %s: %w", outputPath, err)
	}

	artifactID := uuid.NewString()
	rec := snapshotSidecar(m.store, artifactID, m.provider.ModelInfo(), len(frames))
	if err := createSidecar(sidecarTmp, rec); err != nil {
		cleanup()
		return nil, fmt.Errorf("write sidecar %s: %w", sidecarPath, err)
	}

	if err := os.Rename(videoTmp, outputPath); err != nil {
		cleanup()
		return nil, fmt.Errorf("install %s: %w", outputPath, err)
	}
	if err := os.Rename(sidecarTmp, sidecarPath); err != nil {
		os.Remove(sidecarTmp)
		return nil, fmt.Errorf("install %s: %w", sidecarPath, err)
	}

	return &EncodeResult{
		VideoPath:   outputPath,
		SidecarPath: sidecarPath,
		TotalChunks: len(frames),
		ArtifactID:  artifactID,
	}, nil
}

// tempSibling returns a scratch path next to path that keeps its extension,
// which ffmpeg uses to pick the output format.
func tempSibling(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".tmp" + ext
}

// renderFrames encodes one frame per chunk in parallel. Any failure aborts
// the whole render.
func (m *Memory) renderFrames(ctx context.Context, chunks []Chunk) ([]image.Image, error) {
	frames := make([]image.Image, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.frameWorkers)
	for i, c := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := m.renderFrame(c)
			if err != nil {
				return fmt.Errorf("frame %d (chunk %s): %w", i, c.ID, err)
			}
			frames[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

func (m *Memory) renderFrame(c Chunk) (image.Image, error) {
	data, err := frame.MarshalPayload(payloadOf(c), m.opts.payload)
	if err != nil {
		return nil, err
	}
	return m.codec.Encode(data)
}

func payloadOf(c Chunk) frame.Payload {
	return frame.Payload{ID: c.ID, Text: c.Text, Metadata: c.Metadata}
}

// Preflight checks that the largest current payload survives the frame
// codec and a container round trip for a video with the extension of
// outputPath. It writes only to a temporary directory.
func (m *Memory) Preflight(ctx context.Context, outputPath string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preflight(ctx, m.index.InOrder(), filepath.Ext(outputPath))
}

func (m *Memory) preflight(ctx context.Context, chunks []Chunk, ext string) error {
	sample := samplePayload(chunks, m.opts.chunkSize)

	data, err := frame.MarshalPayload(sample, m.opts.payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}
	img, err := m.codec.Encode(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}

	dir, err := os.MkdirTemp("", "vidmem-preflight-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, "preflight"+ext)
	// Two frames, so inter-frame codecs see a predicted frame as well.
	if err := m.container.Mux(ctx, []image.Image{img, img}, path); err != nil {
		return fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}
	frames, err := m.container.Demux(ctx, path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPreflightFailed, err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("%w: container returned no frames", ErrPreflightFailed)
	}

	for i, f := range frames {
		raw, err := m.codec.Decode(f)
		if err != nil {
			return fmt.Errorf("%w: preflight frame %d: %w", ErrPreflightFailed, i, err)
		}
		got, err := frame.UnmarshalPayload(raw)
		if err != nil {
			return fmt.Errorf("%w: preflight frame %d: %w", ErrPreflightFailed, i, err)
		}
		if !reflect.DeepEqual(got, sample) {
			return fmt.Errorf("%w: preflight frame %d altered", ErrPreflightFailed, i)
		}
	}

	m.log.DebugContext(ctx, "preflight passed", "codec", m.codec.Name(), "container", m.container.Name(), "bytes", len(data))
	return nil
}

// samplePayload picks the chunk with the longest serialized payload, or a
// synthetic chunk of the configured size when there are none.
func samplePayload(chunks []Chunk, chunkSize int) frame.Payload {
	best := frame.Payload{
		ID:       strings.Repeat("0", IDLength),
		Text:     strings.Repeat("preflight ", chunkSize/10+1)[:chunkSize],
		Metadata: map[string]any{},
	}
	bestLen := -1
	for _, c := range chunks {
		p := payloadOf(c)
		data, err := frame.MarshalPayload(p, frame.EncodeOptions{Compression: frame.CompressionNone})
		if err != nil {
			continue
		}
		if len(data) > bestLen {
			best, bestLen = p, len(data)
		}
	}

	// Compare against the canonical decoded form.
	if best.Metadata == nil {
		best.Metadata = map[string]any{}
	}
	data, err := frame.MarshalPayload(best, frame.EncodeOptions{Compression: frame.CompressionNone})
	if err != nil {
		return best
	}
	if canonical, err := frame.UnmarshalPayload(data); err == nil {
		return canonical
	}
	return best
}
