package vidmem

// minCapacity is the smallest backing buffer allocated by a VectorStore.
const minCapacity = 1024

// VectorStore is an append-only arena of fixed-dimension vectors keyed by
// chunk id. All vectors live back to back in one buffer; an issued offset
// never changes. The buffer grows by doubling.
//
// A VectorStore is not safe for concurrent mutation.
type VectorStore struct {
	dim     int
	buf     []float32
	offsets map[string]int
}

// NewVectorStore creates an empty store. Its dimension is fixed by the first
// stored vector.
func NewVectorStore() *VectorStore {
	return &VectorStore{offsets: make(map[string]int)}
}

// Put appends v under id. Storing an id again appends the new vector and
// repoints id; the old slot stays in the buffer unused.
func (s *VectorStore) Put(id string, v []float32) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}
	if s.dim != 0 && len(v) != s.dim {
		return &DimensionMismatchError{Expected: s.dim, Actual: len(v)}
	}

	s.grow(len(v))
	if s.dim == 0 {
		s.dim = len(v)
	}

	off := len(s.buf)
	s.buf = append(s.buf, v...)
	s.offsets[id] = off
	return nil
}

// grow makes room for n more elements without per-insert reallocation.
func (s *VectorStore) grow(n int) {
	need := len(s.buf) + n
	if need <= cap(s.buf) {
		return
	}
	newCap := max(2*cap(s.buf), need, minCapacity)
	buf := make([]float32, len(s.buf), newCap)
	copy(buf, s.buf)
	s.buf = buf
}

// Get returns the vector stored under id. The returned slice aliases the
// store and must not be modified.
func (s *VectorStore) Get(id string) ([]float32, bool) {
	off, ok := s.offsets[id]
	if !ok {
		return nil, false
	}
	return s.buf[off : off+s.dim : off+s.dim], true
}

// Has reports whether id has a vector.
func (s *VectorStore) Has(id string) bool {
	_, ok := s.offsets[id]
	return ok
}

// Offset returns the element offset of id in the buffer.
func (s *VectorStore) Offset(id string) (int, bool) {
	off, ok := s.offsets[id]
	return off, ok
}

// Dimension returns the established dimension, or 0 for an empty store.
func (s *VectorStore) Dimension() int { return s.dim }

// Len returns the number of ids with a vector.
func (s *VectorStore) Len() int { return len(s.offsets) }

// restoreVectorStore rebuilds a store from persisted parts after checking
// that every offset addresses a whole, aligned vector inside buf.
func restoreVectorStore(dim int, buf []float32, offsets map[string]int) (*VectorStore, error) {
	s := NewVectorStore()
	if dim < 0 {
		return nil, &DimensionMismatchError{Expected: 0, Actual: dim}
	}
	if dim == 0 {
		if len(buf) != 0 || len(offsets) != 0 {
			return nil, &DimensionMismatchError{Expected: len(buf), Actual: 0}
		}
		return s, nil
	}
	if len(buf)%dim != 0 {
		return nil, &DimensionMismatchError{Expected: dim, Actual: len(buf) % dim}
	}
	for id, off := range offsets {
		if off < 0 || off%dim != 0 || off+dim > len(buf) {
			return nil, &OffsetError{ID: id, Offset: off, Len: len(buf)}
		}
		s.offsets[id] = off
	}

	s.dim = dim
	s.buf = make([]float32, len(buf), max(len(buf), minCapacity))
	copy(s.buf, buf)
	return s, nil
}
