// Package repository 提供了数据访问层的实现。
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"medsmart-go/internal/model"
	"medsmart-go/pkg/log"
)

// ChunkRepository 定义了文档分块存储的操作接口。
// 存储介质是一个 UTF-8 JSON 数组文件，批量与增量导入写的是同一种结构。
// 导入只追加、从不覆盖已有分块。
type ChunkRepository interface {
	LoadAll() ([]model.DocumentChunk, error)
	Append(chunks []model.DocumentChunk) error
}

type jsonChunkRepository struct {
	mu   sync.Mutex
	path string
}

// NewChunkRepository 创建一个以 JSON 文件为介质的 ChunkRepository。
func NewChunkRepository(path string) ChunkRepository {
	return &jsonChunkRepository{path: path}
}

// LoadAll 读取存储文件中的全部分块。
// 文件缺失或内容损坏都视为空存储，不让单个坏文件拖垮整个流程。
func (r *jsonChunkRepository) LoadAll() ([]model.DocumentChunk, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *jsonChunkRepository) loadLocked() ([]model.DocumentChunk, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.DocumentChunk{}, nil
		}
		return nil, fmt.Errorf("读取分块存储失败: %w", err)
	}

	var chunks []model.DocumentChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		log.Warnf("[ChunkRepository] 分块存储文件损坏，按空存储处理: %v", err)
		return []model.DocumentChunk{}, nil
	}
	return chunks, nil
}

// Append 将新分块追加到存储末尾并整体写回。
// 写入先落到同目录的临时文件再原子重命名，避免中途失败留下半个文件。
func (r *jsonChunkRepository) Append(chunks []model.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.loadLocked()
	if err != nil {
		return err
	}
	combined := append(existing, chunks...)

	data, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化分块失败: %w", err)
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, ".chunks-*.json")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("写入分块存储失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("替换分块存储失败: %w", err)
	}

	log.Infof("[ChunkRepository] 追加 %d 个分块, 当前总数: %d", len(chunks), len(combined))
	return nil
}
