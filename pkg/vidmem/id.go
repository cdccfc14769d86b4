package vidmem

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/perbu/vidmem/pkg/frame"
)

// IDLength is the length of a chunk id.
const IDLength = frame.IDLength

// ChunkID derives a stable chunk id from the chunk text, its byte offset in
// the source and its sequence index. Ids are a truncated SHA-256 and may
// collide; collisions are reported by ProcessText, not resolved.
func ChunkID(text string, offset, index int) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(offset)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(index)))
	return hex.EncodeToString(h.Sum(nil))[:IDLength]
}
