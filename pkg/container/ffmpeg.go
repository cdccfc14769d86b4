package container

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Config holds the video parameters used by FFmpeg.
type Config struct {
	Binary      string // ffmpeg executable
	FPS         int    // Frame cadence
	Codec       string // Video codec passed to -c:v
	CRF         int    // Compression aggressiveness; higher risks unreadable frames. Negative omits -crf.
	PixelFormat string // Output pixel format; empty keeps the codec default
	Workers     int    // Parallel PNG writers/readers
}

// DefaultConfig favours barcode readability over file size: libx264 at a
// low CRF.
func DefaultConfig() Config {
	return Config{
		Binary:      "ffmpeg",
		FPS:         30,
		Codec:       "libx264",
		CRF:         18,
		PixelFormat: "yuv420p",
		Workers:     4,
	}
}

// LosslessConfig stores frames with the lossless FFV1 codec.
func LosslessConfig() Config {
	cfg := DefaultConfig()
	cfg.Codec = "ffv1"
	cfg.CRF = -1
	cfg.PixelFormat = "gray"
	return cfg
}

// FFmpeg is a Container backed by the ffmpeg command line tool.
type FFmpeg struct {
	cfg Config
}

// NewFFmpeg creates an ffmpeg container. Zero fields of cfg fall back to
// DefaultConfig.
func NewFFmpeg(cfg Config) *FFmpeg {
	def := DefaultConfig()
	if cfg.Binary == "" {
		cfg.Binary = def.Binary
	}
	if cfg.FPS <= 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Codec == "" {
		cfg.Codec = def.Codec
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	return &FFmpeg{cfg: cfg}
}

// Name returns "ffmpeg/<codec>".
func (f *FFmpeg) Name() string { return "ffmpeg/" + f.cfg.Codec }

// Config returns the effective configuration.
func (f *FFmpeg) Config() Config { return f.cfg }

// Mux writes frames as numbered PNGs to a scratch directory and encodes them
// into path. An empty frame list yields an empty file, the zero-frame
// artifact that Demux reads back as no frames.
func (f *FFmpeg) Mux(ctx context.Context, frames []image.Image, path string) error {
	if len(frames) == 0 {
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("%w: %v", ErrContainer, err)
		}
		return nil
	}

	dir, err := os.MkdirTemp("", "vidmem-mux-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContainer, err)
	}
	defer os.RemoveAll(dir)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i, img := range frames {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writePNG(filepath.Join(dir, FrameName(i)), img)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: write frames: %v", ErrContainer, err)
	}

	args := f.muxArgs(filepath.Join(dir, "frame_%06d.png"), path)
	if err := f.run(ctx, args); err != nil {
		return err
	}
	return nil
}

func (f *FFmpeg) muxArgs(pattern, out string) []string {
	args := []string{
		"-y", "-loglevel", "error",
		"-framerate", strconv.Itoa(f.cfg.FPS),
		"-start_number", "0",
		"-i", pattern,
		"-c:v", f.cfg.Codec,
	}
	if f.cfg.CRF >= 0 {
		args = append(args, "-crf", strconv.Itoa(f.cfg.CRF))
	}
	if f.cfg.PixelFormat != "" {
		args = append(args, "-pix_fmt", f.cfg.PixelFormat)
	}
	return append(args, out)
}

// Demux extracts every frame of path in presentation order.
func (f *FFmpeg) Demux(ctx context.Context, path string) ([]image.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}
	if info.Size() == 0 {
		return nil, nil
	}

	dir, err := os.MkdirTemp("", "vidmem-demux-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}
	defer os.RemoveAll(dir)

	args := []string{
		"-loglevel", "error",
		"-i", path,
		"-vsync", "0",
		"-start_number", "0",
		filepath.Join(dir, "frame_%06d.png"),
	}
	if err := f.run(ctx, args); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainer, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".png") {
			names = append(names, e.Name())
		}
	}
	sortFrameNames(names)

	images := make([]image.Image, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.cfg.Workers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			img, err := readPNG(filepath.Join(dir, name))
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: read frames: %v", ErrContainer, err)
	}

	return images, nil
}

// sortFrameNames orders FrameName outputs by frame index. Past frame 999999
// the names grow a digit, so shorter names come first.
func sortFrameNames(names []string) {
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) < len(names[j])
		}
		return names[i] < names[j]
	})
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	bin, err := exec.LookPath(f.cfg.Binary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrContainer, err)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return fmt.Errorf("%w: %s %s: %v: %s", ErrContainer, f.cfg.Binary, args[len(args)-1], err, msg)
	}
	return nil
}

func writePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func readPNG(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return png.Decode(file)
}
