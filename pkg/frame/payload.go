package frame

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrMalformedPayload is returned when decoded frame bytes are not a valid
// chunk record.
var ErrMalformedPayload = errors.New("malformed payload")

// IDLength is the length of a chunk id carried in a payload.
const IDLength = 16

// DefaultCompressThreshold is the canonical JSON size above which payloads
// are compressed.
const DefaultCompressThreshold = 256

// Envelope layout: magic, mode byte, 8 hex digits of CRC32 over the
// canonical JSON, then the standard base64 encoding of the body.
const (
	envelopeMagic = "VM1"
	headerLen     = len(envelopeMagic) + 1 + 8
)

// Compression selects how the envelope body is stored.
type Compression byte

const (
	CompressionNone Compression = 'r'
	CompressionZstd Compression = 'z'
	CompressionLZ4  Compression = 'l'
)

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	default:
		return 0, fmt.Errorf("unknown payload compression %q", name)
	}
}

// Payload is the record carried by one frame.
type Payload struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// EncodeOptions controls payload envelope construction.
type EncodeOptions struct {
	Compression Compression
	Threshold   int // Canonical JSON size above which Compression applies
}

// DefaultEncodeOptions compresses larger payloads with zstd.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{Compression: CompressionZstd, Threshold: DefaultCompressThreshold}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	})
	return zstdEnc, zstdDec, zstdErr
}

// MarshalPayload produces the canonical envelope for p.
// Text must be valid UTF-8; encoding/json would otherwise replace invalid
// bytes and the frame would decode to different text.
func MarshalPayload(p Payload, opts EncodeOptions) ([]byte, error) {
	if !utf8.ValidString(p.Text) {
		return nil, fmt.Errorf("marshal payload %s: text is not valid UTF-8", p.ID)
	}
	md := p.Metadata
	if md == nil {
		md = map[string]any{}
	}
	raw, err := json.Marshal(Payload{ID: p.ID, Text: p.Text, Metadata: md})
	if err != nil {
		return nil, fmt.Errorf("marshal payload %s: %w", p.ID, err)
	}

	mode := CompressionNone
	body := raw
	if opts.Compression != CompressionNone && len(raw) > opts.Threshold {
		compressed, err := compress(raw, opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("compress payload %s: %w", p.ID, err)
		}
		// Keep the raw form when compression does not pay off.
		if compressed != nil && len(compressed) < len(raw) {
			mode, body = opts.Compression, compressed
		}
	}

	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc32.ChecksumIEEE(raw))

	out := make([]byte, 0, headerLen+base64.StdEncoding.EncodedLen(len(body)))
	out = append(out, envelopeMagic...)
	out = append(out, byte(mode))
	out = hex.AppendEncode(out, sum[:])
	out = base64.StdEncoding.AppendEncode(out, body)
	return out, nil
}

// UnmarshalPayload validates and decodes an envelope. Every failure wraps
// ErrMalformedPayload.
func UnmarshalPayload(data []byte) (Payload, error) {
	var p Payload

	if len(data) < headerLen || !bytes.HasPrefix(data, []byte(envelopeMagic)) {
		return p, fmt.Errorf("%w: bad envelope header", ErrMalformedPayload)
	}
	mode := Compression(data[len(envelopeMagic)])

	var sum [4]byte
	if _, err := hex.Decode(sum[:], data[len(envelopeMagic)+1:headerLen]); err != nil {
		return p, fmt.Errorf("%w: bad checksum field", ErrMalformedPayload)
	}

	body, err := base64.StdEncoding.AppendDecode(nil, data[headerLen:])
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	raw, err := decompress(body, mode)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if crc32.ChecksumIEEE(raw) != binary.BigEndian.Uint32(sum[:]) {
		return p, fmt.Errorf("%w: checksum mismatch", ErrMalformedPayload)
	}

	if err := decodeJSON(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(p.ID) != IDLength {
		return Payload{}, fmt.Errorf("%w: id %q has length %d", ErrMalformedPayload, p.ID, len(p.ID))
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}

	return p, nil
}

// CanonicalMetadata returns md in the form UnmarshalPayload yields for it:
// numbers as json.Number, nested objects as map[string]any, invalid UTF-8 in
// strings replaced. Nil becomes an empty map.
func CanonicalMetadata(md map[string]any) (map[string]any, error) {
	if len(md) == 0 {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	var out map[string]any
	if err := decodeJSON(raw, &out); err != nil {
		return nil, fmt.Errorf("canonical metadata: %w", err)
	}
	return out, nil
}

// decodeJSON decodes exactly one JSON value, keeping numbers as
// json.Number so integers keep full precision.
func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func compress(raw []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(raw, nil), nil
	case CompressionLZ4:
		// Block format: uncompressed length, then the lz4 block.
		dst := make([]byte, 4+lz4.CompressBlockBound(len(raw)))
		binary.BigEndian.PutUint32(dst, uint32(len(raw)))
		n, err := lz4.CompressBlock(raw, dst[4:], nil)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			// Incompressible
			return nil, nil
		}
		return dst[:4+n], nil
	default:
		return nil, fmt.Errorf("unknown compression %q", byte(mode))
	}
}

// maxLZ4Size bounds the declared size of an lz4 body; a frame can never
// legitimately carry more.
const maxLZ4Size = 1 << 20

func decompress(body []byte, mode Compression) ([]byte, error) {
	switch mode {
	case CompressionNone:
		return body, nil
	case CompressionZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(body, nil)
	case CompressionLZ4:
		if len(body) < 4 {
			return nil, errors.New("short lz4 body")
		}
		size := binary.BigEndian.Uint32(body)
		if size > maxLZ4Size {
			return nil, fmt.Errorf("lz4 body declares %d bytes", size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body[4:], out)
		if err != nil {
			return nil, err
		}
		if n != int(size) {
			return nil, fmt.Errorf("lz4 size mismatch: %d != %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression mode %q", byte(mode))
	}
}
