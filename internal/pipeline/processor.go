// Package pipeline 定义了文档导入的核心流程。
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"medsmart-go/internal/config"
	"medsmart-go/internal/model"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/storage"
	"medsmart-go/pkg/tasks"
	"medsmart-go/pkg/tika"
)

// Invalidator 在语料变化后使检索索引过期。
type Invalidator interface {
	Invalidate()
}

// Processor 封装了文档导入的所有依赖和逻辑。
// 批量 CLI 与后台消费者两条路径共用同一个 Processor，
// 因此分块参数和存储格式天然一致。
type Processor struct {
	tikaClient *tika.Client
	chunkRepo  repository.ChunkRepository
	splitter   *Splitter
	minioCfg   config.MinIOConfig
	index      Invalidator // 可为 nil（CLI 场景没有常驻索引）
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	tikaClient *tika.Client,
	chunkRepo repository.ChunkRepository,
	splitter *Splitter,
	minioCfg config.MinIOConfig,
	index Invalidator,
) *Processor {
	return &Processor{
		tikaClient: tikaClient,
		chunkRepo:  chunkRepo,
		splitter:   splitter,
		minioCfg:   minioCfg,
		index:      index,
	}
}

// IngestLocalFile 导入本地磁盘上的一个 PDF 文件（批量路径）。
// 文件不存在直接报错，而不是静默跳过。
func (p *Processor) IngestLocalFile(ctx context.Context, path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("文件不存在: %s: %w", path, err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("路径是目录而非文件: %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("打开文件失败: %s: %w", path, err)
	}
	defer f.Close()

	return p.IngestReader(ctx, f, filepath.Base(path))
}

// IngestReader 是导入的主流程：提取每页文本、切分、追加到分块存储。
// 返回写入的分块数。未提取到任何页面视为失败。
func (p *Processor) IngestReader(ctx context.Context, r io.Reader, fileName string) (int, error) {
	log.Infof("[Processor] 开始处理文件: %s", fileName)

	// 1. 按页提取文本
	pages, err := p.tikaClient.ExtractPages(r, fileName)
	if err != nil {
		log.Errorf("[Processor] 提取文本失败, FileName: %s, Error: %v", fileName, err)
		return 0, fmt.Errorf("提取文本失败: %w", err)
	}
	if len(pages) == 0 {
		log.Warnf("[Processor] 未提取到任何页面, 处理中止, FileName: %s", fileName)
		return 0, errors.New("未从文件中提取到任何页面")
	}
	log.Infof("[Processor] 提取到 %d 页文本", len(pages))

	// 2. 逐页切分，分块携带来源文件名（仅 basename）与页码
	source := filepath.Base(fileName)
	var chunks []model.DocumentChunk
	for pageNum, pageText := range pages {
		if strings.TrimSpace(pageText) == "" {
			// 空白页不产生分块，但页码对应关系保留
			continue
		}
		page := pageNum
		for _, piece := range p.splitter.Split(pageText) {
			chunks = append(chunks, model.DocumentChunk{
				PageContent: piece,
				Metadata:    model.ChunkMetadata{Source: source, Page: &page},
			})
		}
	}
	if len(chunks) == 0 {
		log.Warnf("[Processor] 未生成任何文本分块, 处理中止, FileName: %s", fileName)
		return 0, errors.New("未生成任何文本分块")
	}
	log.Infof("[Processor] 文本切分完成, 共生成 %d 个分块", len(chunks))

	// 3. 追加到分块存储
	if err := p.chunkRepo.Append(chunks); err != nil {
		log.Errorf("[Processor] 追加分块到存储失败, Error: %v", err)
		return 0, fmt.Errorf("追加分块失败: %w", err)
	}

	// 4. 使检索索引过期，下一次提问时全量重建
	if p.index != nil {
		p.index.Invalidate()
	}

	log.Infof("[Processor] 文件处理成功完成: %s", fileName)
	return len(chunks), nil
}

// Process 处理一个来自 Kafka 的导入任务（增量路径）：
// 从 MinIO 下载原始文件，然后走与批量路径相同的主流程。
func (p *Processor) Process(ctx context.Context, task tasks.IngestTask) error {
	log.Infof("[Processor] 开始处理导入任务, Object: %s, FileName: %s", task.ObjectName, task.FileName)

	object, err := storage.GetObject(ctx, p.minioCfg.BucketName, task.ObjectName)
	if err != nil {
		return fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(object)
	if err != nil {
		return fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	if size == 0 {
		log.Warnf("[Processor] 文件 '%s' 内容为空, 处理中止", task.FileName)
		return errors.New("文件内容为空")
	}

	_, err = p.IngestReader(ctx, bytes.NewReader(buf.Bytes()), task.FileName)
	return err
}
