package vidmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	id := ChunkID("hello world", 0, 0)
	require.Len(t, id, IDLength)
	require.Regexp(t, "^[0-9a-f]{16}$", id)
	require.Equal(t, id, ChunkID("hello world", 0, 0))

	require.NotEqual(t, id, ChunkID("hello world", 1, 0))
	require.NotEqual(t, id, ChunkID("hello world", 0, 1))
	require.NotEqual(t, id, ChunkID("hello world!", 0, 0))
	// Field boundaries are unambiguous
	require.NotEqual(t, ChunkID("a1", 2, 3), ChunkID("a", 12, 3))
}
