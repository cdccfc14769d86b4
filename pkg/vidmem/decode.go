package vidmem

import (
	"context"
	"errors"
	"fmt"
	"image"

	"golang.org/x/sync/errgroup"

	"github.com/perbu/vidmem/pkg/frame"
)

// frameResult is the outcome of reading one frame: a payload or the reason
// it was lost.
type frameResult struct {
	payload frame.Payload
	err     error
}

// Decode reads the video at inputPath and its sidecar and replaces the
// current chunks and vectors with their contents.
//
// Frames that cannot be read, or whose payload fails validation, are skipped
// and counted; container and sidecar failures abort the call and leave the
// current state untouched.
func (m *Memory) Decode(ctx context.Context, inputPath string) (*DecodeResult, error) {
	res, err := m.decode(ctx, inputPath)
	m.log.LogDecode(ctx, inputPath, res, err)
	return res, err
}

func (m *Memory) decode(ctx context.Context, inputPath string) (*DecodeResult, error) {
	images, err := m.container.Demux(ctx, inputPath)
	if err != nil {
		return nil, fmt.Errorf("demux %s: %w", inputPath, err)
	}

	sidecarPath := SidecarPath(inputPath)
	rec, err := readSidecar(sidecarPath)
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", sidecarPath, err)
	}
	store, err := rec.vectorStore()
	if err != nil {
		return nil, fmt.Errorf("load sidecar %s: %w", sidecarPath, err)
	}

	results, err := m.readFrames(ctx, images)
	if err != nil {
		return nil, err
	}

	res := &DecodeResult{
		FramesExamined: len(images),
		ArtifactID:     rec.ArtifactID,
		Provider:       rec.Provider,
	}
	index := NewChunkIndex()
	for i, r := range results {
		if r.err != nil {
			res.LostFrames++
			if errors.Is(r.err, frame.ErrMalformedPayload) {
				res.MalformedFrames++
			}
			m.log.DebugContext(ctx, "frame lost", "frame", i, "error", r.err)
			continue
		}
		index.Put(Chunk{
			ID:            r.payload.ID,
			Text:          r.payload.Text,
			Metadata:      Metadata(r.payload.Metadata),
			SequenceIndex: i,
		})
	}
	res.TotalChunks = index.Len()
	for _, c := range index.InOrder() {
		if !store.Has(c.ID) {
			res.MissingVectors++
		}
	}

	if rec.FrameCount != len(images) {
		m.log.WarnContext(ctx, "frame count differs from sidecar", "frames", len(images), "expected", rec.FrameCount)
	}
	if p := m.provider.ModelInfo(); rec.Provider != "" && rec.Provider != p {
		m.log.WarnContext(ctx, "sidecar was built with a different embedding provider", "sidecar", rec.Provider, "provider", p)
	}

	m.mu.Lock()
	m.index = index
	m.store = store
	m.nextSeq = len(images)
	m.mu.Unlock()

	return res, nil
}

// readFrames decodes all frames in parallel. Per-frame failures are
// recorded in the results; only cancellation fails the call.
func (m *Memory) readFrames(ctx context.Context, images []image.Image) ([]frameResult, error) {
	results := make([]frameResult, len(images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.frameWorkers)
	for i, img := range images {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.readFrame(img)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (m *Memory) readFrame(img image.Image) frameResult {
	if img == nil {
		return frameResult{err: fmt.Errorf("%w: empty image", frame.ErrUnreadable)}
	}
	raw, err := m.codec.Decode(img)
	if err != nil {
		if !errors.Is(err, frame.ErrUnreadable) {
			err = fmt.Errorf("%w: %w", frame.ErrUnreadable, err)
		}
		return frameResult{err: err}
	}
	p, err := frame.UnmarshalPayload(raw)
	if err != nil {
		return frameResult{err: err}
	}
	return frameResult{payload: p}
}
