package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(500, 150)

	chunks := s.Split("A. B. C.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "A. B. C.", chunks[0])
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(500, 150)

	assert.Nil(t, s.Split(""))
}

func TestSplitChunkSizeLimit(t *testing.T) {
	s := NewSplitter(100, 30)
	text := strings.Repeat("word ", 200)

	chunks := s.Split(text)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		assert.NotEmpty(t, c)
	}
}

func TestSplitChunksAreContiguousSlices(t *testing.T) {
	s := NewSplitter(80, 20)
	text := "第一段的内容。\n\n第二段的内容要长一些，包含更多的句子。这里还有一句。\n\n第三段收尾。" +
		strings.Repeat(" 继续填充文本内容", 20)

	chunks := s.Split(text)

	require.NotEmpty(t, chunks)
	// 每个分块都是原文的连续切片
	for _, c := range chunks {
		assert.Contains(t, text, c)
	}
	// 首尾分块分别覆盖原文的开头和结尾
	assert.True(t, strings.HasPrefix(text, chunks[0]))
	assert.True(t, strings.HasSuffix(text, chunks[len(chunks)-1]))
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	s := NewSplitter(100, 20)
	// 段落分隔符落在窗口后半段，首个分块应在该处断开
	first := strings.Repeat("a", 70) + "\n\n"
	text := first + strings.Repeat("b", 200)

	chunks := s.Split(text)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, first, chunks[0])
}

func TestSplitOverlapCarriesContext(t *testing.T) {
	s := NewSplitter(100, 40)
	text := strings.Repeat("x", 500)

	chunks := s.Split(text)

	require.Greater(t, len(chunks), 1)
	// 纯填充文本没有分隔符，相邻分块按固定步长推进并保留重叠
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		cur := []rune(chunks[i])
		overlap := string(prev[len(prev)-40:])
		assert.True(t, strings.HasPrefix(string(cur), overlap))
	}
}

func TestNewSplitterDefaults(t *testing.T) {
	s := NewSplitter(0, -1)

	assert.Equal(t, 500, s.chunkSize)
	assert.Less(t, s.chunkOverlap, s.chunkSize)

	// overlap 不小于 size 时退回默认值，防止死循环
	s = NewSplitter(100, 100)
	assert.Less(t, s.chunkOverlap, 100)
}
