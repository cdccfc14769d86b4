package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/perbu/vidmem/pkg/config"
	"github.com/perbu/vidmem/pkg/vidmem"
)

func main() {
	// Parse command line flags
	video := flag.String("video", "memory.mp4", "video produced by vidmem-encode")
	top := flag.Int("top", 5, "number of results to return")
	threshold := flag.Float64("threshold", 0.0, "minimum similarity score")
	full := flag.Bool("full", false, "show full content instead of just sources")
	verbose := flag.Bool("verbose", false, "enable verbose output for debugging")
	contextSize := flag.Int("context", 0, "number of surrounding chunks to show for context")
	envFile := flag.String("env", "", "load variables from this file instead of .env")
	var filter config.MetadataFlag
	flag.Var(&filter, "where", "only match chunks whose metadata has key=value (repeatable)")
	flag.Parse()

	// Get query string
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: vidmem [options] <query>\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	query := strings.Join(args, " ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var files []string
	if *envFile != "" {
		files = append(files, *envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.LogLevel = slog.LevelDebug
	}

	mem, closeProvider, err := cfg.Memory(cfg.Logger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing pipeline: %v\n", err)
		os.Exit(1)
	}
	defer closeProvider()

	// Step 1: Decode the video and its vectors
	if *verbose {
		fmt.Printf("[DEBUG] Decoding %s (vectors: %s)...\n", *video, vidmem.SidecarPath(*video))
	}

	res, err := mem.Decode(ctx, *video)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading memory: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		stats := mem.Stats()
		fmt.Printf("[DEBUG] Loaded %d chunks from %d frames, %d vectors (dim=%d, provider=%s)\n",
			res.TotalChunks, res.FramesExamined, stats.Vectors, stats.Dimension, res.Provider)
	}
	if res.LostFrames > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d of %d frames could not be read (%d malformed)\n",
			res.LostFrames, res.FramesExamined, res.MalformedFrames)
	}

	// Step 2: Execute search
	if *verbose {
		fmt.Printf("[DEBUG] Searching for %q with top=%d, threshold=%.2f\n", query, *top, *threshold)
	}

	var predicate vidmem.Predicate
	if len(filter) > 0 {
		predicate = filter.Matches
	}
	results, err := mem.Search(ctx, query, *top, predicate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error searching: %v\n", err)
		os.Exit(1)
	}
	results = aboveThreshold(results, float32(*threshold))

	if *verbose {
		fmt.Printf("[DEBUG] Found %d results\n\n", len(results))
	}

	// Step 3: Display results
	if len(results) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for i, result := range results {
		fmt.Printf("Score: %.2f | %s [%s]\n", result.Score, sourceOf(result.Chunk), result.Chunk.ID)

		if !*full && *contextSize == 0 {
			continue
		}
		fmt.Println()

		if *contextSize > 0 {
			window := sameSource(mem.ContextWindow(result.Chunk.ID, *contextSize), result.Chunk)
			for j, chunk := range window {
				if chunk.ID == result.Chunk.ID {
					fmt.Printf(">>> MATCHED CHUNK <<<\n")
				}
				fmt.Printf("%s\n", chunk.Text)
				if j < len(window)-1 {
					fmt.Println()
				}
			}
		} else {
			fmt.Printf("%s\n", result.Chunk.Text)
		}

		if i < len(results)-1 {
			fmt.Println("\n" + strings.Repeat("-", 80) + "\n")
		}
	}
}

// aboveThreshold drops results scoring below floor. Results are sorted, so
// the cut is a prefix.
func aboveThreshold(results []vidmem.SearchResult, floor float32) []vidmem.SearchResult {
	for i, r := range results {
		if r.Score < floor {
			return results[:i]
		}
	}
	return results
}

func sourceOf(c vidmem.Chunk) string {
	if src, ok := c.Metadata["source"]; ok {
		return fmt.Sprint(src)
	}
	return "(no source)"
}

// sameSource keeps the chunks of window that come from the same document
// as target.
func sameSource(window []vidmem.Chunk, target vidmem.Chunk) []vidmem.Chunk {
	src := sourceOf(target)
	out := window[:0:0]
	for _, c := range window {
		if sourceOf(c) == src {
			out = append(out, c)
		}
	}
	return out
}
