package index

import (
	"context"
	"path/filepath"
	"testing"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 按关键字返回正交方向的向量，让相似度可以精确断言。
type fakeEmbedder struct {
	calls int
}

func (f *fakeEmbedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.embed(text), nil
}

func (f *fakeEmbedder) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		vectors[i] = f.embed(t)
	}
	return vectors, nil
}

func (f *fakeEmbedder) embed(text string) []float32 {
	v := make([]float32, 3)
	for _, r := range text {
		switch r {
		case 'a':
			v[0]++
		case 'b':
			v[1]++
		case 'c':
			v[2]++
		}
	}
	if v[0] == 0 && v[1] == 0 && v[2] == 0 {
		v[0] = 1
	}
	return v
}

func newTestManager(t *testing.T) (*Manager, repository.ChunkRepository, *fakeEmbedder) {
	t.Helper()
	chunkRepo := repository.NewChunkRepository(filepath.Join(t.TempDir(), "documents.json"))
	embedder := &fakeEmbedder{}
	return NewManager(chunkRepo, embedder), chunkRepo, embedder
}

func seed(t *testing.T, repo repository.ChunkRepository, contents ...string) {
	t.Helper()
	chunks := make([]model.DocumentChunk, 0, len(contents))
	for _, c := range contents {
		chunks = append(chunks, model.DocumentChunk{
			PageContent: c,
			Metadata:    model.ChunkMetadata{Source: "test.pdf"},
		})
	}
	require.NoError(t, repo.Append(chunks))
}

func TestSearchEmptyStore(t *testing.T) {
	m, _, _ := newTestManager(t)

	results, err := m.Search(context.Background(), "anything", 3)

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	m, repo, _ := newTestManager(t)
	seed(t, repo, "aaaa", "bbbb", "aabb")

	results, err := m.Search(context.Background(), "aa", 2)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "aaaa", results[0].Chunk.PageContent)
	assert.Equal(t, "aabb", results[1].Chunk.PageContent)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestSearchTopKClamped(t *testing.T) {
	m, repo, _ := newTestManager(t)
	seed(t, repo, "aaaa", "bbbb")

	results, err := m.Search(context.Background(), "aa", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	// 非法 topK 退回默认值而不是报错
	results, err = m.Search(context.Background(), "aa", 0)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIndexBuiltOncePerGeneration(t *testing.T) {
	m, repo, embedder := newTestManager(t)
	seed(t, repo, "aaaa", "bbbb")

	_, err := m.Search(context.Background(), "aa", 1)
	require.NoError(t, err)
	_, err = m.Search(context.Background(), "bb", 1)
	require.NoError(t, err)

	// 同一代数内只做一次全量向量化
	assert.Equal(t, 1, embedder.calls)
}

func TestInvalidateTriggersRebuild(t *testing.T) {
	m, repo, embedder := newTestManager(t)
	seed(t, repo, "aaaa")

	results, err := m.Search(context.Background(), "cc", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	gen := m.Generation()
	seed(t, repo, "cccc")
	m.Invalidate()
	assert.Equal(t, gen+1, m.Generation())

	results, err = m.Search(context.Background(), "cc", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "cccc", results[0].Chunk.PageContent)
	assert.Equal(t, 2, embedder.calls)
}
