package vidmem

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// SidecarExt is the extension of the vector file paired with a video.
const SidecarExt = ".vectors"

const (
	sidecarMagic   = "VMSC"
	sidecarVersion = 1
)

// SidecarPath returns the sidecar path for videoPath: same base name, the
// extension replaced by SidecarExt.
func SidecarPath(videoPath string) string {
	return strings.TrimSuffix(videoPath, filepath.Ext(videoPath)) + SidecarExt
}

// sidecarRecord is the persisted form of a VectorStore.
type sidecarRecord struct {
	ArtifactID string
	Provider   string
	Dimension  int
	Buffer     []float32
	Offsets    map[string]int
	FrameCount int
}

// writeSidecar writes rec to path through a temporary file and a rename.
func writeSidecar(path string, rec *sidecarRecord) error {
	tmp := path + ".tmp"
	if err := createSidecar(tmp, rec); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmp, path)
}

// createSidecar writes rec to a new file at path. On failure nothing is
// left at path.
func createSidecar(path string, rec *sidecarRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := encodeSidecar(file, rec); err != nil {
		file.Close()
		os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}

func encodeSidecar(w io.Writer, rec *sidecarRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(sidecarMagic); err != nil {
		return err
	}
	if err := bw.WriteByte(sidecarVersion); err != nil {
		return err
	}

	zw, err := zstd.NewWriter(bw)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(rec); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return bw.Flush()
}

// readSidecar loads the record at path. Format problems wrap
// ErrInvalidSidecar.
func readSidecar(path string) (*sidecarRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return decodeSidecar(bufio.NewReader(file))
}

func decodeSidecar(r io.Reader) (*sidecarRecord, error) {
	header := make([]byte, len(sidecarMagic)+1)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidSidecar, err)
	}
	if string(header[:len(sidecarMagic)]) != sidecarMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidSidecar)
	}
	if v := header[len(sidecarMagic)]; v != sidecarVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSidecar, v)
	}

	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	defer zr.Close()

	var rec sidecarRecord
	if err := gob.NewDecoder(zr).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSidecar, err)
	}
	return &rec, nil
}

// vectorStore validates rec and rebuilds its VectorStore.
func (rec *sidecarRecord) vectorStore() (*VectorStore, error) {
	store, err := restoreVectorStore(rec.Dimension, rec.Buffer, rec.Offsets)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSidecar, err)
	}
	return store, nil
}

// snapshotSidecar copies the persisted parts of s.
func snapshotSidecar(s *VectorStore, artifactID, provider string, frames int) *sidecarRecord {
	rec := &sidecarRecord{
		ArtifactID: artifactID,
		Provider:   provider,
		Dimension:  s.dim,
		Buffer:     append([]float32(nil), s.buf...),
		Offsets:    make(map[string]int, len(s.offsets)),
		FrameCount: frames,
	}
	for id, off := range s.offsets {
		rec.Offsets[id] = off
	}
	return rec
}
