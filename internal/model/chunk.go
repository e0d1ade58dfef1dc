// Package model 定义了应用的数据模型。
package model

// ChunkMetadata 记录分块的来源信息，用于回答时的引用展示。
type ChunkMetadata struct {
	// Source 是来源文件名（仅 basename，不含目录）。
	Source string `json:"source"`
	// Page 是来源页码（从 0 开始）；无法确定页码时为 null。
	Page *int `json:"page"`
}

// DocumentChunk 是检索的基本单元：一段有界的文档文本加来源元数据。
// JSON 字段名与分块存储文件的既有格式保持一致，
// 批量与增量两条导入路径都必须写出同一种结构。
type DocumentChunk struct {
	PageContent string        `json:"page_content"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// RetrievedChunk 是一次检索命中的分块及其相似度得分。
type RetrievedChunk struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}
