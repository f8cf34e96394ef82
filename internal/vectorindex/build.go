package vectorindex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DocumentEmbedder embeds a batch of texts. embeddings.Embedder satisfies it.
type DocumentEmbedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// SplitDocument cuts text into blank-line separated paragraphs. Paragraphs
// shorter than minChars are merged into the following one so that headings
// stay attached to their body. Fragment ids are "<name>#<n>".
func SplitDocument(name, text string, minChars int) []Fragment {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var (
		out     []Fragment
		pending string
	)
	flush := func(force bool) {
		if pending == "" || (!force && len([]rune(pending)) < minChars) {
			return
		}
		out = append(out, Fragment{ID: fmt.Sprintf("%s#%d", name, len(out)+1), Text: pending})
		pending = ""
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if pending == "" {
			pending = para
		} else {
			pending += "\n" + para
		}
		flush(false)
	}
	flush(true)
	return out
}

// ReadDocuments splits every .txt and .md file under dir, in path order.
func ReadDocuments(dir string, minChars int) ([]Fragment, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	var fragments []Fragment
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		fragments = append(fragments, SplitDocument(filepath.ToSlash(rel), string(data), minChars)...)
	}
	return fragments, nil
}

// Build embeds fragments in batches of batchSize and returns the filled index.
// progress, when set, is called after every batch with the running total.
func Build(ctx context.Context, embedder DocumentEmbedder, fragments []Fragment, batchSize int, progress func(done int)) (*MemoryIndex, error) {
	if len(fragments) == 0 {
		return nil, fmt.Errorf("no fragments to index")
	}
	if batchSize <= 0 {
		batchSize = 1
	}

	var idx *MemoryIndex
	for start := 0; start < len(fragments); start += batchSize {
		end := min(start+batchSize, len(fragments))
		batch := fragments[start:end]

		texts := make([]string, len(batch))
		for i, f := range batch {
			texts[i] = f.Text
		}
		vectors, err := embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed fragments %d-%d: %w", start+1, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(batch))
		}

		if idx == nil {
			idx, err = NewMemoryIndex(len(vectors[0]))
			if err != nil {
				return nil, err
			}
		}
		if err := idx.Add(batch, vectors); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(end)
		}
	}
	return idx, nil
}
