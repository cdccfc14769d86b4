// Package vidmem stores text chunks with their embeddings and serializes
// them as a video of barcode frames plus a sidecar vector file.
package vidmem

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/perbu/vidmem/pkg/chunker"
	"github.com/perbu/vidmem/pkg/container"
	"github.com/perbu/vidmem/pkg/embedder"
	"github.com/perbu/vidmem/pkg/frame"
)

// Memory owns one chunk index and one vector store and runs the encode,
// decode and search pipelines over them. One pipeline call runs at a time;
// Decode replaces the whole state.
type Memory struct {
	provider  embedder.Provider
	codec     frame.Codec
	container container.Container
	opts      options
	log       *Logger

	mu      sync.RWMutex
	index   *ChunkIndex
	store   *VectorStore
	nextSeq int
}

// New creates an empty Memory.
func New(provider embedder.Provider, codec frame.Codec, cont container.Container, opts ...Option) *Memory {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Memory{
		provider:  provider,
		codec:     codec,
		container: cont,
		opts:      o,
		log:       o.logger,
		index:     NewChunkIndex(),
		store:     NewVectorStore(),
	}
}

// ProcessText chunks text, embeds every chunk and appends the chunks with
// a copy of md. It returns the ids of the committed chunks.
//
// Invalid UTF-8 in text is replaced with U+FFFD and md is stored in its
// canonical payload form (see frame.CanonicalMetadata), so a chunk reads
// back from a frame exactly as it was stored.
//
// Chunks are embedded in batches and committed batch by batch. If embedding
// fails the call stops; batches committed before the failure remain, and
// their ids are returned together with the error.
func (m *Memory) ProcessText(ctx context.Context, text string, md Metadata) ([]string, error) {
	// Stored chunks must equal what a frame decodes back to.
	text = strings.ToValidUTF8(text, string(utf8.RuneError))
	segments := chunker.Split(text, m.opts.chunkSize)
	if len(segments) == 0 {
		return nil, nil
	}

	canonical, err := frame.CanonicalMetadata(md)
	if err != nil {
		return nil, fmt.Errorf("process text: %w", err)
	}
	md = Metadata(canonical)

	if err := m.provider.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("process text: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(segments))
	for start := 0; start < len(segments); start += m.opts.batchSize {
		batch := segments[start:min(start+m.opts.batchSize, len(segments))]

		vectors, err := m.embedBatch(ctx, batch)
		if err != nil {
			return ids, fmt.Errorf("embed chunks %d-%d: %w", m.nextSeq, m.nextSeq+len(batch)-1, err)
		}

		for i, seg := range batch {
			seq := m.nextSeq
			id := ChunkID(seg.Text, seg.Offset, seq)
			if m.index.Has(id) {
				return ids, fmt.Errorf("%w: %s at sequence %d", ErrIDCollision, id, seq)
			}
			if err := m.store.Put(id, vectors[i]); err != nil {
				return ids, fmt.Errorf("store chunk %s: %w", id, err)
			}
			m.index.Put(Chunk{ID: id, Text: seg.Text, Metadata: md.Clone(), SequenceIndex: seq})
			m.nextSeq++
			ids = append(ids, id)
		}

		m.log.DebugContext(ctx, "batch committed", "chunks", len(batch), "total", m.index.Len())
	}

	return ids, nil
}

// embedBatch embeds a batch in order, sequentially or with bounded
// concurrency.
func (m *Memory) embedBatch(ctx context.Context, batch []chunker.Segment) ([][]float32, error) {
	vectors := make([][]float32, len(batch))

	if m.opts.concurrency <= 1 {
		for i, seg := range batch {
			v, err := m.provider.Embed(ctx, seg.Text)
			if err != nil {
				return nil, err
			}
			vectors[i] = v
		}
		return vectors, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.concurrency)
	for i, seg := range batch {
		g.Go(func() error {
			v, err := m.provider.Embed(gctx, seg.Text)
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Search embeds query and ranks the stored chunks against it.
func (m *Memory) Search(ctx context.Context, query string, limit int, filter Predicate) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	if err := m.provider.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	vec, err := m.provider.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return m.SearchVector(vec, limit, filter)
}

// SearchVector ranks the stored chunks against a query vector.
func (m *Memory) SearchVector(query []float32, limit int, filter Predicate) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if dim := m.store.Dimension(); dim != 0 && len(query) != dim {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(query)}
	}

	results := Search(m.index, m.store, query, limit, filter)
	m.log.Debug("search completed", "k", limit, "results", len(results))
	return results, nil
}

// Chunk returns the chunk stored under id.
func (m *Memory) Chunk(id string) (Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.Get(id)
}

// ContextWindow returns the chunk id together with up to n chunks before and
// after it in frame order.
func (m *Memory) ContextWindow(id string, n int) []Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.index.Position(id)
	if !ok {
		return nil
	}
	n = max(n, 0)
	return m.index.Slice(p-n, p+n+1)
}

// Chunks returns all chunks in frame order.
func (m *Memory) Chunks() []Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index.InOrder()
}

// Stats reports the current sizes and collaborators.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		Chunks:    m.index.Len(),
		Vectors:   m.store.Len(),
		Dimension: m.store.Dimension(),
		Provider:  m.provider.ModelInfo(),
		Codec:     m.codec.Name(),
		Container: m.container.Name(),
	}
}
