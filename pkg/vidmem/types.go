package vidmem

import "maps"

// Metadata is an arbitrary key/value map attached to a chunk. Serialized
// payloads order keys lexicographically. Stored metadata holds JSON shapes:
// numbers are json.Number, objects map[string]any, arrays []any.
type Metadata map[string]any

// Clone returns a shallow copy of m, never nil.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	maps.Copy(out, m)
	return out
}

// Chunk represents a bounded piece of source text with its metadata
type Chunk struct {
	ID            string   // Content-derived identifier, see ChunkID
	Text          string   // The actual text content
	Metadata      Metadata // Caller supplied attributes
	SequenceIndex int      // Position in frame order
}

// SearchResult represents a single search result with score
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Predicate selects search candidates by their metadata.
type Predicate func(Metadata) bool

// Stats summarizes the state of a Memory.
type Stats struct {
	Chunks    int
	Vectors   int
	Dimension int
	Provider  string
	Codec     string
	Container string
}

// EncodeOptions controls Encode.
type EncodeOptions struct {
	// Preflight verifies, before rendering the full video, that the largest
	// payload survives the frame codec and container round trip.
	Preflight bool
}

// EncodeResult describes the artifacts written by Encode.
type EncodeResult struct {
	VideoPath   string
	SidecarPath string
	TotalChunks int
	ArtifactID  string // Shared by the video and its sidecar
}

// DecodeResult summarizes a Decode run.
type DecodeResult struct {
	TotalChunks     int // Chunks recovered from frames
	FramesExamined  int
	LostFrames      int // Frames that yielded no chunk, malformed ones included
	MalformedFrames int // Frames read but rejected by payload validation
	MissingVectors  int // Recovered chunks without a sidecar vector
	ArtifactID      string
	Provider        string // Embedding provider recorded in the sidecar
}
