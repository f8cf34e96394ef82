// Package vectorindex holds the reference fragments used to augment analysis
// prompts. The index is built offline, loaded once and then only read.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrDimensionMismatch is returned when a vector does not match the index dimensions.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// ErrInvalidK is returned for a non-positive result count.
var ErrInvalidK = errors.New("k must be at least 1")

// Fragment is one reference text with its id.
type Fragment struct {
	ID   string
	Text string
}

// Hit is a search result. Score is cosine similarity, higher is closer.
type Hit struct {
	Fragment
	Score float64
}

// MemoryIndex is a brute-force cosine similarity index. Vectors are
// normalized on insert so search reduces to an inner product.
type MemoryIndex struct {
	dimensions int
	fragments  []Fragment
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Dimensions returns the vector width.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Size returns the number of fragments in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fragments)
}

// Add appends fragments with their embeddings.
func (m *MemoryIndex) Add(fragments []Fragment, vectors [][]float32) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("fragments and vectors length mismatch: %d != %d", len(fragments), len(vectors))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, f := range fragments {
		if len(vectors[i]) != m.dimensions {
			return fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vectors[i]), m.dimensions)
		}
		m.fragments = append(m.fragments, f)
		m.vectors = append(m.vectors, normalize(vectors[i]))
	}
	return nil
}

// Search returns up to k fragments ordered by descending similarity.
func (m *MemoryIndex) Search(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, ErrInvalidK
	}
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(query), m.dimensions)
	}
	q := normalize(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]Hit, len(m.fragments))
	for i, vec := range m.vectors {
		hits[i] = Hit{Fragment: m.fragments[i], Score: innerProduct(q, vec)}
	}
	// Stable so equal scores keep insertion order.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// each calls fn for every stored fragment in insertion order.
func (m *MemoryIndex) each(fn func(f Fragment, vec []float32) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, f := range m.fragments {
		if err := fn(f, m.vectors[i]); err != nil {
			return err
		}
	}
	return nil
}

func innerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	out := make([]float32, len(v))
	norm := math.Sqrt(sum)
	if norm == 0 {
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
