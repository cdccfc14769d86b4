// Package config builds vidmem components from environment variables and
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/perbu/vidmem/pkg/chunker"
	"github.com/perbu/vidmem/pkg/container"
	"github.com/perbu/vidmem/pkg/embedder"
	"github.com/perbu/vidmem/pkg/frame"
	"github.com/perbu/vidmem/pkg/vidmem"
)

// Config is the complete runtime configuration of the vidmem tools.
type Config struct {
	Embedder         embedder.Config
	CachePath        string // bbolt embedding cache; empty disables caching
	EmbedConcurrency int

	ChunkSize    int
	BatchSize    int
	FrameWorkers int

	FrameCodec  string // "qr" or "pixel"
	FrameSize   int
	Compression frame.Compression

	Video container.Config

	LogLevel  slog.Level
	LogFormat string // "text" or "json"
}

// Default returns the configuration used when no variables are set.
func Default() *Config {
	return &Config{
		Embedder: embedder.Config{
			Backend:    embedder.BackendOpenAI,
			Model:      embedder.DefaultOpenAIModel,
			MaxRetries: embedder.DefaultRetryPolicy().MaxRetries,
		},
		EmbedConcurrency: 1,
		ChunkSize:        chunker.DefaultMaxSize,
		BatchSize:        vidmem.DefaultBatchSize,
		FrameWorkers:     vidmem.DefaultFrameWorkers,
		FrameCodec:       "qr",
		FrameSize:        frame.DefaultFrameSize,
		Compression:      frame.CompressionZstd,
		Video:            container.DefaultConfig(),
		LogLevel:         slog.LevelInfo,
		LogFormat:        "text",
	}
}

// Load reads the given .env files (".env" when none are named) into the
// process environment and returns FromEnv. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from VIDMEM_* variables and OPENAI_API_KEY.
func FromEnv() (*Config, error) {
	c := Default()
	p := parser{}

	c.Embedder.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("VIDMEM_EMBEDDER"); v != "" {
		c.Embedder.Backend = embedder.Backend(strings.ToLower(v))
	}
	if c.Embedder.Backend == embedder.BackendHash {
		c.Embedder.Model = ""
	}
	p.stringVar("VIDMEM_EMBED_MODEL", &c.Embedder.Model)
	p.stringVar("VIDMEM_OPENAI_BASE_URL", &c.Embedder.BaseURL)
	p.intVar("VIDMEM_EMBED_DIMENSIONS", &c.Embedder.Dimensions)
	p.floatVar("VIDMEM_EMBED_RPS", &c.Embedder.RequestsPerSecond)
	p.intVar("VIDMEM_EMBED_RETRIES", &c.Embedder.MaxRetries)
	p.intVar("VIDMEM_EMBED_CONCURRENCY", &c.EmbedConcurrency)
	p.stringVar("VIDMEM_EMBED_CACHE", &c.CachePath)

	p.intVar("VIDMEM_CHUNK_SIZE", &c.ChunkSize)
	p.intVar("VIDMEM_BATCH_SIZE", &c.BatchSize)
	p.intVar("VIDMEM_FRAME_WORKERS", &c.FrameWorkers)

	p.stringVar("VIDMEM_FRAME_CODEC", &c.FrameCodec)
	p.intVar("VIDMEM_FRAME_SIZE", &c.FrameSize)
	if v, ok := os.LookupEnv("VIDMEM_COMPRESSION"); ok {
		mode, err := frame.ParseCompression(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("VIDMEM_COMPRESSION: %w", err))
		}
		c.Compression = mode
	}

	// ffv1 is lossless and takes no CRF.
	p.stringVar("VIDMEM_CODEC", &c.Video.Codec)
	if c.Video.Codec == container.LosslessConfig().Codec {
		lossless := container.LosslessConfig()
		c.Video.CRF, c.Video.PixelFormat = lossless.CRF, lossless.PixelFormat
	}
	p.stringVar("VIDMEM_FFMPEG", &c.Video.Binary)
	p.intVar("VIDMEM_FPS", &c.Video.FPS)
	p.intVar("VIDMEM_CRF", &c.Video.CRF)
	p.stringVar("VIDMEM_PIXEL_FORMAT", &c.Video.PixelFormat)
	p.intVar("VIDMEM_FFMPEG_WORKERS", &c.Video.Workers)

	if v := os.Getenv("VIDMEM_LOG_LEVEL"); v != "" {
		if err := c.LogLevel.UnmarshalText([]byte(v)); err != nil {
			p.errs = append(p.errs, fmt.Errorf("VIDMEM_LOG_LEVEL: %w", err))
		}
	}

	p.stringVar("VIDMEM_LOG_FORMAT", &c.LogFormat)

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail late in a pipeline.
func (c *Config) Validate() error {
	var errs []error
	switch c.Embedder.Backend {
	case embedder.BackendOpenAI, embedder.BackendHash:
	default:
		errs = append(errs, fmt.Errorf("unknown embedder %q", c.Embedder.Backend))
	}
	if c.FrameCodec != "qr" && c.FrameCodec != "pixel" {
		errs = append(errs, fmt.Errorf("unknown frame codec %q", c.FrameCodec))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.FrameSize <= 0 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", c.FrameSize))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if c.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.Video.FPS))
	}
	return errors.Join(errs...)
}

// Logger builds the pipeline logger writing to stderr.
func (c *Config) Logger() *vidmem.Logger {
	if c.LogFormat == "json" {
		return vidmem.NewJSONLogger(c.LogLevel)
	}
	return vidmem.NewTextLogger(c.LogLevel)
}

// Provider builds the embedding provider, wrapped in the persistent cache
// when CachePath is set. The returned close function releases the cache.
func (c *Config) Provider() (embedder.Provider, func() error, error) {
	p, err := embedder.New(c.Embedder)
	if err != nil {
		return nil, nil, err
	}
	if c.CachePath == "" {
		return p, func() error { return nil }, nil
	}

	cached, err := embedder.NewCached(p, c.CachePath)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

// Codec builds the frame codec.
func (c *Config) Codec() (frame.Codec, error) {
	codec, ok := frame.ByName(c.FrameCodec, c.FrameSize)
	if !ok {
		return nil, fmt.Errorf("unknown frame codec %q", c.FrameCodec)
	}
	return codec, nil
}

// Container builds the ffmpeg container.
func (c *Config) Container() *container.FFmpeg {
	return container.NewFFmpeg(c.Video)
}

// Options returns the Memory options for c.
func (c *Config) Options(logger *vidmem.Logger) []vidmem.Option {
	return []vidmem.Option{
		vidmem.WithChunkSize(c.ChunkSize),
		vidmem.WithBatchSize(c.BatchSize),
		vidmem.WithEmbedConcurrency(c.EmbedConcurrency),
		vidmem.WithFrameWorkers(c.FrameWorkers),
		vidmem.WithPayloadEncoding(frame.EncodeOptions{
			Compression: c.Compression,
			Threshold:   frame.DefaultCompressThreshold,
		}),
		vidmem.WithLogger(logger),
	}
}

// Memory assembles a Memory from c. The close function releases resources
// held by the provider.
func (c *Config) Memory(logger *vidmem.Logger) (*vidmem.Memory, func() error, error) {
	provider, closeFn, err := c.Provider()
	if err != nil {
		return nil, nil, err
	}
	codec, err := c.Codec()
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return vidmem.New(provider, codec, c.Container(), c.Options(logger)...), closeFn, nil
}

// parser collects conversion errors for optional variables.
type parser struct {
	errs []error
}

func (p *parser) stringVar(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (p *parser) intVar(key string, dst *int) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) floatVar(key string, dst *float64) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}
