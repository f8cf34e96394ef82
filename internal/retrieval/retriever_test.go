package retrieval

import (
	"context"
	"errors"
	"testing"

	"chat-risk-analysis/backend/internal/vectorindex"
	"chat-risk-analysis/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func newIndex(t *testing.T) *vectorindex.MemoryIndex {
	t.Helper()
	idx, err := vectorindex.NewMemoryIndex(2)
	require.NoError(t, err)
	require.NoError(t, idx.Add(
		[]vectorindex.Fragment{{ID: "1", Text: "north"}, {ID: "2", Text: "east"}, {ID: "3", Text: "north-east"}},
		[][]float32{{0, 1}, {1, 0}, {1, 1}},
	))
	return idx
}

func TestSearchReturnsTextsBySimilarity(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{"q": {0.2, 1}}}
	r := NewVectorRetriever(emb, newIndex(t), 8, logger.Discard())
	defer r.Close()

	got, err := r.Search(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"north", "north-east", "east"}, got)

	got, err = r.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"north"}, got)
	assert.Equal(t, 1, emb.calls, "second query should hit the cache")
	assert.Equal(t, 3, r.IndexSize())
}

func TestSearchFailsClosed(t *testing.T) {
	boom := errors.New("embedding endpoint down")
	r := NewVectorRetriever(&fakeEmbedder{err: boom}, newIndex(t), 0, logger.Discard())

	_, err := r.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, boom)

	r = NewVectorRetriever(&fakeEmbedder{vectors: map[string][]float32{}}, newIndex(t), 0, logger.Discard())
	_, err = r.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, ErrEmptyEmbedding)

	r = NewVectorRetriever(&fakeEmbedder{vectors: map[string][]float32{"q": {1, 2, 3}}}, newIndex(t), 0, logger.Discard())
	_, err = r.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, vectorindex.ErrDimensionMismatch)
}

func TestSearchRejectsInvalidK(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewVectorRetriever(emb, newIndex(t), 0, logger.Discard())

	_, err := r.Search(context.Background(), "q", 0)
	assert.ErrorIs(t, err, vectorindex.ErrInvalidK)
	assert.Zero(t, emb.calls)
}

func TestUnavailable(t *testing.T) {
	cause := errors.New("missing")
	_, err := Unavailable{Err: cause}.Search(context.Background(), "q", 3)
	assert.ErrorIs(t, err, cause)
}
