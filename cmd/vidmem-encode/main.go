package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/perbu/vidmem/pkg/config"
	"github.com/perbu/vidmem/pkg/loader"
	"github.com/perbu/vidmem/pkg/vidmem"
)

func main() {
	output := flag.String("o", "memory.mp4", "output video path; vectors are written next to it")
	chunkSize := flag.Int("chunk-size", 0, "maximum chunk length in characters (default from VIDMEM_CHUNK_SIZE or 500)")
	preflight := flag.Bool("preflight", false, "check that a sample frame survives the codec and container before encoding")
	envFile := flag.String("env", "", "load variables from this file instead of .env")
	verbose := flag.Bool("verbose", false, "enable verbose output for debugging")
	var meta config.MetadataFlag
	flag.Var(&meta, "meta", "key=value metadata added to every chunk (repeatable)")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: vidmem-encode [options] <file or directory>...\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, paths, *output, *chunkSize, *preflight, *envFile, *verbose, meta); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "\n\n⚠ Interrupted, nothing was written")
		} else {
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, paths []string, output string, chunkSize int, preflight bool, envFile string, verbose bool, meta config.MetadataFlag) error {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	if chunkSize > 0 {
		cfg.ChunkSize = chunkSize
	}
	if verbose {
		cfg.LogLevel = slog.LevelDebug
	}
	logger := cfg.Logger()

	fmt.Println("vidmem encoder")
	fmt.Println("==============")
	fmt.Println()

	// Step 1: Load documents
	fmt.Println("Step 1: Loading documents...")
	docs, err := loader.LoadPaths(paths)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	fmt.Printf("  ✓ Loaded %d documents\n\n", len(docs))

	// Step 2: Set up the pipeline
	fmt.Println("Step 2: Initializing pipeline...")
	mem, closeProvider, err := cfg.Memory(logger)
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}
	defer closeProvider()

	stats := mem.Stats()
	fmt.Printf("  ✓ provider=%s codec=%s container=%s chunk-size=%d\n\n", stats.Provider, stats.Codec, stats.Container, cfg.ChunkSize)

	// Step 3: Chunk and embed
	fmt.Println("Step 3: Chunking and embedding...")
	total := 0
	for i, doc := range docs {
		md := meta.Metadata()
		md["source"] = doc.Path

		ids, err := mem.ProcessText(ctx, doc.Content, md)
		total += len(ids)
		if err != nil {
			return fmt.Errorf("%s: %w", doc.Path, err)
		}

		fmt.Printf("\r  Progress: %d/%d documents, %d chunks", i+1, len(docs), total)
	}
	fmt.Printf("\n  ✓ Embedded %d chunks (dim=%d)\n\n", total, mem.Stats().Dimension)

	// Step 4: Render the video
	fmt.Println("Step 4: Encoding video...")
	if preflight {
		fmt.Println("  (running preflight round trip first)")
	}
	res, err := mem.Encode(ctx, output, vidmem.EncodeOptions{Preflight: preflight})
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	fmt.Printf("  ✓ Wrote %d frames to %s (%s)\n", res.TotalChunks, res.VideoPath, fileSize(res.VideoPath))
	fmt.Printf("  ✓ Wrote vectors to %s (%s)\n\n", res.SidecarPath, fileSize(res.SidecarPath))

	fmt.Println("Done! Query with:")
	fmt.Printf("  vidmem -video %s <query>\n", res.VideoPath)
	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}
	return fmt.Sprintf("%.2f MB", float64(info.Size())/(1024*1024))
}
