// Package pipeline 定义了文档导入的核心流程。
package pipeline

// Splitter 将长文本按固定窗口与重叠切分为检索分块。
// 切分优先在自然边界断开：段落 > 换行 > 句子 > 单词，
// 窗口内找不到任何分隔符时才按字符硬切。
type Splitter struct {
	chunkSize    int // 单个分块的最大 rune 数
	chunkOverlap int // 相邻分块的重叠 rune 数
}

// 分隔符按优先级排列，与相邻分块的重叠一起保证上下文连续。
var separators = []string{"\n\n", "\n", ". ", " "}

// NewSplitter 创建一个文本切分器。overlap 必须小于 size，否则退回默认值。
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 3
	}
	return &Splitter{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Split 将文本切分为有重叠的分块序列。
// 每个分块都是原文的连续切片；去掉相邻分块间的重叠后
// 拼接结果能还原原文，不丢也不重任何内容。
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= s.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		end := start + s.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		// 在窗口内从高优先级到低依次找最靠后的分隔符
		if cut := findBreak(runes, start, end); cut > start {
			end = cut
		}

		chunks = append(chunks, string(runes[start:end]))

		next := end - s.chunkOverlap
		if next <= start {
			// 保证前进，防止小分块导致死循环
			next = start + 1
		}
		start = next
	}
	return chunks
}

// findBreak 在 runes[start:end] 内寻找最佳断点，返回断点后的下标。
// 只接受落在窗口后半段的断点，避免产生过小的分块；找不到返回 start。
func findBreak(runes []rune, start, end int) int {
	minCut := start + (end-start)/2
	for _, sep := range separators {
		if cut := lastIndexOf(runes, []rune(sep), minCut, end); cut >= 0 {
			return cut + len([]rune(sep))
		}
	}
	return start
}

// lastIndexOf 在 runes[from:to] 内查找 sep 的最后一次出现（sep 需完整落在区间内）。
func lastIndexOf(runes, sep []rune, from, to int) int {
	for i := to - len(sep); i >= from; i-- {
		match := true
		for j := range sep {
			if runes[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
