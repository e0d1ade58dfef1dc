// Package index 实现了进程内的向量检索索引。
package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/embedding"
	"medsmart-go/pkg/log"
)

// Manager 持有按需构建的检索索引和一个代数计数器。
// 构建（全量向量化）开销大，每个代数内最多构建一次；
// 导入新文档后调用 Invalidate 递增代数，下一次检索会重建。
type Manager struct {
	mu              sync.Mutex
	chunkRepo       repository.ChunkRepository
	embeddingClient embedding.Client

	current    *memoryIndex
	generation uint64 // 最新代数，Invalidate 时递增
	builtGen   uint64 // current 对应的代数
}

// memoryIndex 是一次构建出的不可变快照：分块与其 L2 归一化后的向量。
type memoryIndex struct {
	chunks  []model.DocumentChunk
	vectors [][]float32
}

// NewManager 创建一个新的索引 Manager。
func NewManager(chunkRepo repository.ChunkRepository, embeddingClient embedding.Client) *Manager {
	return &Manager{
		chunkRepo:       chunkRepo,
		embeddingClient: embeddingClient,
		generation:      1,
	}
}

// Invalidate 声明底层分块存储已变化，使当前索引过期。
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generation++
	log.Infof("[Index] 索引已失效, 新代数: %d", m.generation)
}

// Search 返回与查询最相似的 topK 个分块，按余弦相似度降序。
// 若索引过期会先重建；空语料返回空结果而非错误。
func (m *Manager) Search(ctx context.Context, query string, topK int) ([]model.RetrievedChunk, error) {
	if topK <= 0 {
		topK = 3
	}

	idx, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.chunks) == 0 {
		return nil, nil
	}

	queryVector, err := m.embeddingClient.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("向量化查询失败: %w", err)
	}
	normalize(queryVector)

	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, len(idx.vectors))
	for i, v := range idx.vectors {
		scores[i] = scored{i: i, score: dot(v, queryVector)}
	}
	sort.Slice(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]model.RetrievedChunk, 0, topK)
	for _, s := range scores[:topK] {
		results = append(results, model.RetrievedChunk{Chunk: idx.chunks[s.i], Score: s.score})
	}
	return results, nil
}

// Generation 返回当前代数，便于观测与测试。
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// acquire 返回与最新代数一致的索引，必要时重建。
// 构建在锁内进行：重建期间的并发检索会阻塞等待同一个快照，
// 而不是各自触发一次全量向量化。
func (m *Manager) acquire(ctx context.Context) (*memoryIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.builtGen == m.generation {
		return m.current, nil
	}

	gen := m.generation
	log.Infof("[Index] 开始构建检索索引, 代数: %d", gen)

	chunks, err := m.chunkRepo.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("加载分块存储失败: %w", err)
	}

	idx := &memoryIndex{chunks: chunks}
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.PageContent
		}
		vectors, err := m.embeddingClient.CreateEmbeddings(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("向量化分块失败: %w", err)
		}
		if len(vectors) != len(chunks) {
			return nil, errors.New("向量数量与分块数量不一致")
		}
		for _, v := range vectors {
			normalize(v)
		}
		idx.vectors = vectors
	}

	m.current = idx
	m.builtGen = gen
	log.Infof("[Index] 索引构建完成, 分块数: %d", len(chunks))
	return idx, nil
}

// normalize 将向量原地 L2 归一化，之后点积即余弦相似度。
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
