package vidmem

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/perbu/vidmem/pkg/container"
	"github.com/perbu/vidmem/pkg/frame"
)

func encodeCorpus(t *testing.T, f *fixture, sentences int, opts ...Option) (*Memory, string) {
	t.Helper()
	ctx := context.Background()

	m := f.memory(opts...)
	_, err := m.ProcessText(ctx, corpus(sentences), Metadata{"source": "corpus.md", "lang": "en"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "out", "memory.mp4")
	res, err := m.Encode(ctx, path, EncodeOptions{})
	require.NoError(t, err)
	require.Equal(t, m.Stats().Chunks, res.TotalChunks)
	require.Equal(t, path, res.VideoPath)
	require.Equal(t, SidecarPath(path), res.SidecarPath)
	require.NotEmpty(t, res.ArtifactID)

	for _, p := range []string{res.VideoPath, res.SidecarPath} {
		_, err := os.Stat(p)
		require.NoError(t, err, p)
	}
	requireNoScratchFiles(t, path)
	return m, path
}

func TestEncodeDecode_Lossless(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src, path := encodeCorpus(t, f, 15)

	dst := f.memory()
	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)

	want := src.Chunks()
	require.Equal(t, len(want), res.TotalChunks)
	require.Equal(t, len(want), res.FramesExamined)
	require.Zero(t, res.LostFrames)
	require.Zero(t, res.MalformedFrames)
	require.Zero(t, res.MissingVectors)
	require.Equal(t, "hash-32", res.Provider)

	require.Equal(t, want, dst.Chunks())
	for _, c := range want {
		v1, _ := src.store.Get(c.ID)
		v2, ok := dst.store.Get(c.ID)
		require.True(t, ok)
		require.Equal(t, v1, v2)
	}

	// Search over the decoded memory matches the source memory.
	r1, err := src.Search(ctx, "glaciers carve valleys", 3, nil)
	require.NoError(t, err)
	r2, err := dst.Search(ctx, "glaciers carve valleys", 3, nil)
	require.NoError(t, err)
	require.Equal(t, r1, r2)
}

func TestEncodeDecode_ArtifactID(t *testing.T) {
	f := newFixture()
	src := f.memory()
	_, err := src.ProcessText(context.Background(), corpus(3), nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "memory.mkv")
	enc, err := src.Encode(context.Background(), path, EncodeOptions{})
	require.NoError(t, err)

	dec, err := f.memory().Decode(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, enc.ArtifactID, dec.ArtifactID)
}

func TestEncodeDecode_PayloadCompression(t *testing.T) {
	modes := map[string]frame.Compression{
		"raw":  frame.CompressionNone,
		"zstd": frame.CompressionZstd,
		"lz4":  frame.CompressionLZ4,
	}
	for name, mode := range modes {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			opts := WithPayloadEncoding(frame.EncodeOptions{Compression: mode})
			src, path := encodeCorpus(t, f, 8, opts)

			dst := f.memory(opts)
			res, err := dst.Decode(context.Background(), path)
			require.NoError(t, err)
			require.Zero(t, res.LostFrames)
			require.Equal(t, src.Chunks(), dst.Chunks())
		})
	}
}

func TestEncodeDecode_Empty(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	path := filepath.Join(t.TempDir(), "empty.mp4")
	enc, err := f.memory().Encode(ctx, path, EncodeOptions{})
	require.NoError(t, err)
	require.Zero(t, enc.TotalChunks)

	dst := f.memory()
	_, err = dst.ProcessText(ctx, "Something that will be replaced.", nil)
	require.NoError(t, err)

	dec, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Zero(t, dec.TotalChunks)
	require.Zero(t, dec.FramesExamined)
	require.Empty(t, dst.Chunks())
	require.Equal(t, 0, dst.Stats().Vectors)
}

func TestDecode_ReplacesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src, path := encodeCorpus(t, f, 6)

	dst := f.memory()
	old, err := dst.ProcessText(ctx, "Unrelated text about tide pools and crabs.", nil)
	require.NoError(t, err)

	_, err = dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Equal(t, src.Chunks(), dst.Chunks())
	for _, id := range old {
		_, ok := dst.Chunk(id)
		require.False(t, ok)
	}

	// New chunks continue after the decoded frames.
	ids, err := dst.ProcessText(ctx, "Appended after decoding.", nil)
	require.NoError(t, err)
	c, _ := dst.Chunk(ids[0])
	require.Equal(t, len(src.Chunks()), c.SequenceIndex)
}

func TestDecode_FailureLeavesState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, path := encodeCorpus(t, f, 6)

	dst := f.memory()
	_, err := dst.ProcessText(ctx, "Text that must survive a failed decode.", nil)
	require.NoError(t, err)
	before := dst.Chunks()

	_, err = dst.Decode(ctx, filepath.Join(t.TempDir(), "missing.mp4"))
	require.ErrorIs(t, err, container.ErrContainer)
	require.Equal(t, before, dst.Chunks())

	require.NoError(t, os.WriteFile(SidecarPath(path), []byte("VMSC\x01junk"), 0o644))
	_, err = dst.Decode(ctx, path)
	require.ErrorIs(t, err, ErrInvalidSidecar)
	require.Equal(t, before, dst.Chunks())

	require.NoError(t, os.Remove(SidecarPath(path)))
	_, err = dst.Decode(ctx, path)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, before, dst.Chunks())
}

func TestDecode_LostFrames(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src, path := encodeCorpus(t, f, 15)
	want := src.Chunks()
	require.Greater(t, len(want), 4)

	// Frame 1 becomes unreadable. Frame 3 still reads, but one bit inside
	// the payload checksum is flipped.
	damaged := &damagingContainer{
		Container: f.container,
		damage: func(i int, img image.Image) image.Image {
			switch i {
			case 1:
				return blankFrame(testFrameSize)
			case 3:
				return flipCell(img, f.codec, 32+8*10+7)
			}
			return img
		},
	}
	dst := New(f.provider, f.codec, damaged, WithChunkSize(testChunkSize))

	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Equal(t, len(want), res.FramesExamined)
	require.Equal(t, 2, res.LostFrames)
	require.Equal(t, 1, res.MalformedFrames)
	require.Equal(t, len(want)-2, res.TotalChunks)
	require.Zero(t, res.MissingVectors)

	got := dst.Chunks()
	require.Len(t, got, len(want)-2)
	for _, c := range got {
		require.NotEqual(t, 1, c.SequenceIndex)
		require.NotEqual(t, 3, c.SequenceIndex)
		require.Equal(t, want[c.SequenceIndex], c)
	}
	_, ok := dst.Chunk(want[1].ID)
	require.False(t, ok)
}

func TestDecode_MissingVectors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src, path := encodeCorpus(t, f, 6)

	rec, err := readSidecar(SidecarPath(path))
	require.NoError(t, err)
	drop := src.Chunks()[0].ID
	delete(rec.Offsets, drop)
	require.NoError(t, writeSidecar(SidecarPath(path), rec))

	dst := f.memory()
	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 1, res.MissingVectors)
	require.Zero(t, res.LostFrames)

	results, err := dst.Search(ctx, "apples", 100, nil)
	require.NoError(t, err)
	require.Len(t, results, len(src.Chunks()))
}

type failingMux struct {
	container.Container
}

func (f failingMux) Mux(ctx context.Context, frames []image.Image, path string) error {
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		return err
	}
	return errors.New("encoder crashed")
}

func TestEncode_CleansUpOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	t.Run("frame too large", func(t *testing.T) {
		m := New(f.provider, frame.NewPixelCodec(32), f.container, WithChunkSize(testChunkSize))
		_, err := m.ProcessText(ctx, corpus(3), nil)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "memory.mp4")
		_, err = m.Encode(ctx, path, EncodeOptions{})
		require.ErrorIs(t, err, frame.ErrPayloadTooLarge)
		requireNoArtifacts(t, path)
	})

	t.Run("mux fails", func(t *testing.T) {
		m := New(f.provider, f.codec, failingMux{f.container}, WithChunkSize(testChunkSize))
		_, err := m.ProcessText(ctx, corpus(3), nil)
		require.NoError(t, err)

		path := filepath.Join(t.TempDir(), "memory.mp4")
		_, err = m.Encode(ctx, path, EncodeOptions{})
		require.ErrorContains(t, err, "encoder crashed")
		requireNoArtifacts(t, path)
	})
}

func requireNoArtifacts(t *testing.T, path string) {
	t.Helper()
	for _, p := range []string{path, SidecarPath(path)} {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), p)
	}
}

func TestPreflight(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.memory()

	// Empty memories preflight with a synthetic chunk.
	require.NoError(t, m.Preflight(ctx, "memory.mp4"))

	_, err := m.ProcessText(ctx, corpus(10), Metadata{"source": "x"})
	require.NoError(t, err)
	require.NoError(t, m.Preflight(ctx, "memory.mp4"))

	path := filepath.Join(t.TempDir(), "memory.mp4")
	_, err = m.Encode(ctx, path, EncodeOptions{Preflight: true})
	require.NoError(t, err)
}

func TestPreflight_QR(t *testing.T) {
	ctx := context.Background()
	m := New(newFixture().provider, frame.NewQRCodec(512), container.NewMemory(), WithChunkSize(testChunkSize))
	_, err := m.ProcessText(ctx, corpus(4), Metadata{"source": "qr.md"})
	require.NoError(t, err)
	require.NoError(t, m.Preflight(ctx, "memory.mp4"))
}

func TestPreflight_LossyContainer(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	lossy := &damagingContainer{
		Container: f.container,
		damage: func(_ int, img image.Image) image.Image {
			return flipCell(img, f.codec, 32+8*10+7)
		},
	}
	m := New(f.provider, f.codec, lossy, WithChunkSize(testChunkSize))
	_, err := m.ProcessText(ctx, corpus(6), nil)
	require.NoError(t, err)

	require.ErrorIs(t, m.Preflight(ctx, "memory.mp4"), ErrPreflightFailed)

	path := filepath.Join(t.TempDir(), "memory.mp4")
	_, err = m.Encode(ctx, path, EncodeOptions{Preflight: true})
	require.ErrorIs(t, err, ErrPreflightFailed)
	requireNoArtifacts(t, path)

	// Without preflight the lossy encode goes through and decode reports it.
	_, err = m.Encode(ctx, path, EncodeOptions{})
	require.NoError(t, err)
	res, err := m.Decode(ctx, path)
	require.NoError(t, err)
	require.Equal(t, res.FramesExamined, res.LostFrames)
	require.Equal(t, res.FramesExamined, res.MalformedFrames)
}

func requireNoScratchFiles(t *testing.T, path string) {
	t.Helper()
	for _, p := range []string{tempSibling(path), SidecarPath(path) + ".tmp"} {
		_, err := os.Stat(p)
		require.True(t, os.IsNotExist(err), p)
	}
}

func TestEncodeDecode_InvalidUTF8(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src := f.memory()

	ids, err := src.ProcessText(ctx, "Un caf\xe9 au lait. Tr\xe8s bon!", Metadata{"source": "latin1-\xff.txt"})
	require.NoError(t, err)
	c, _ := src.Chunk(ids[0])
	require.True(t, utf8.ValidString(c.Text))
	require.Equal(t, "Un caf\ufffd au lait. Tr\ufffds bon!", c.Text)
	require.Equal(t, ChunkID(c.Text, 0, 0), c.ID)

	path := filepath.Join(t.TempDir(), "memory.mp4")
	_, err = src.Encode(ctx, path, EncodeOptions{})
	require.NoError(t, err)

	dst := f.memory()
	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Zero(t, res.LostFrames)
	require.Equal(t, src.Chunks(), dst.Chunks())
}

func TestEncodeDecode_NumericMetadata(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src := f.memory()

	md := Metadata{"page": 3, "big": int64(9007199254740993), "score": 0.5, "draft": false}
	ids, err := src.ProcessText(ctx, corpus(3), md)
	require.NoError(t, err)

	c, _ := src.Chunk(ids[0])
	require.Equal(t, json.Number("3"), c.Metadata["page"])
	require.Equal(t, json.Number("9007199254740993"), c.Metadata["big"])
	require.Equal(t, false, c.Metadata["draft"])

	path := filepath.Join(t.TempDir(), "memory.mp4")
	_, err = src.Encode(ctx, path, EncodeOptions{})
	require.NoError(t, err)

	dst := f.memory()
	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Zero(t, res.LostFrames)
	require.Equal(t, src.Chunks(), dst.Chunks())

	big, err := dst.Chunks()[0].Metadata["big"].(json.Number).Int64()
	require.NoError(t, err)
	require.Equal(t, int64(9007199254740993), big)
}

func TestProcessText_UnencodableMetadata(t *testing.T) {
	m := newTestMemory(t)
	_, err := m.ProcessText(context.Background(), "Some text.", Metadata{"fn": func() {}})
	require.Error(t, err)
	require.Zero(t, m.Stats().Chunks)
}

func TestEncode_FailedReencodeKeepsPreviousArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	src, path := encodeCorpus(t, f, 6)
	want := src.Chunks()

	_, err := src.ProcessText(ctx, "A later addition that never gets written.", nil)
	require.NoError(t, err)

	t.Run("sidecar write fails", func(t *testing.T) {
		blocker := SidecarPath(path) + ".tmp"
		require.NoError(t, os.Mkdir(blocker, 0o755))
		defer os.Remove(blocker)

		_, err := src.Encode(ctx, path, EncodeOptions{})
		require.Error(t, err)
		_, err = os.Stat(tempSibling(path))
		require.True(t, os.IsNotExist(err))
	})

	t.Run("mux fails", func(t *testing.T) {
		m := New(f.provider, f.codec, failingMux{f.container}, WithChunkSize(testChunkSize))
		_, err := m.ProcessText(ctx, corpus(2), nil)
		require.NoError(t, err)

		_, err = m.Encode(ctx, path, EncodeOptions{})
		require.ErrorContains(t, err, "encoder crashed")
		requireNoScratchFiles(t, path)
	})

	dst := f.memory()
	res, err := dst.Decode(ctx, path)
	require.NoError(t, err)
	require.Zero(t, res.LostFrames)
	require.Equal(t, want, dst.Chunks())
}
