package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is a raw source document.
type Document struct {
	Path    string // Path relative to the walked root
	Content string
}

// Extensions lists the file extensions treated as plain text sources.
var Extensions = []string{".md", ".txt"}

// LoadDocuments reads all text files below root in fsys and returns them
// ordered by path.
func LoadDocuments(fsys fs.FS, root string) ([]Document, error) {
	var docs []Document

	err := fs.WalkDir(fsys, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		if !isText(path) {
			return nil
		}

		content, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		// Store with path relative to root
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}

		docs = append(docs, Document{Path: filepath.ToSlash(relPath), Content: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})

	return docs, nil
}

// LoadPaths loads documents from a mix of files and directories on disk.
// Files are taken as given regardless of extension; directories are walked
// with LoadDocuments. Output preserves argument order.
func LoadPaths(paths []string) ([]Document, error) {
	var docs []Document

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}

		if !info.IsDir() {
			content, err := os.ReadFile(p)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", p, err)
			}
			docs = append(docs, Document{Path: p, Content: string(content)})
			continue
		}

		dirDocs, err := LoadDocuments(os.DirFS(p), ".")
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
		for _, d := range dirDocs {
			d.Path = filepath.ToSlash(filepath.Join(p, d.Path))
			docs = append(docs, d)
		}
	}

	return docs, nil
}

func isText(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
