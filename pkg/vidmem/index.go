package vidmem

// ChunkIndex maps chunk ids to chunks and remembers first-seen insertion
// order, which is the frame order of an encoded video.
type ChunkIndex struct {
	order  []string
	pos    map[string]int
	chunks map[string]Chunk
}

// NewChunkIndex creates an empty index.
func NewChunkIndex() *ChunkIndex {
	return &ChunkIndex{
		pos:    make(map[string]int),
		chunks: make(map[string]Chunk),
	}
}

// Put inserts c, or overwrites the chunk with the same id in place.
func (x *ChunkIndex) Put(c Chunk) {
	if _, ok := x.chunks[c.ID]; !ok {
		x.pos[c.ID] = len(x.order)
		x.order = append(x.order, c.ID)
	}
	x.chunks[c.ID] = c
}

// Get returns the chunk stored under id.
func (x *ChunkIndex) Get(id string) (Chunk, bool) {
	c, ok := x.chunks[id]
	return c, ok
}

// Has reports whether id is indexed.
func (x *ChunkIndex) Has(id string) bool {
	_, ok := x.chunks[id]
	return ok
}

// Position returns the insertion position of id.
func (x *ChunkIndex) Position(id string) (int, bool) {
	p, ok := x.pos[id]
	return p, ok
}

// Len returns the number of chunks.
func (x *ChunkIndex) Len() int { return len(x.order) }

// InOrder returns all chunks in insertion order.
func (x *ChunkIndex) InOrder() []Chunk {
	out := make([]Chunk, len(x.order))
	for i, id := range x.order {
		out[i] = x.chunks[id]
	}
	return out
}

// Slice returns the chunks at insertion positions [from, to), clamped to
// the index bounds.
func (x *ChunkIndex) Slice(from, to int) []Chunk {
	from = max(from, 0)
	to = min(to, len(x.order))
	if from >= to {
		return nil
	}
	out := make([]Chunk, 0, to-from)
	for _, id := range x.order[from:to] {
		out = append(out, x.chunks[id])
	}
	return out
}
