// Package main 是批量文档导入 CLI 的入口点。
// 扫描数据目录（或命令行指定的文件），逐个提取、切分并追加到分块存储。
// 服务端进程会在下一次提问时感知到新内容（索引按代数重建）。
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"medsmart-go/internal/config"
	"medsmart-go/internal/pipeline"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/log"
	"medsmart-go/pkg/tika"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "配置文件路径")
	dataFolder := flag.String("data", "", "PDF 目录（缺省使用配置中的 rag.data_folder）")
	flag.Parse()

	config.Init(*configPath)
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()

	chunkRepository := repository.NewChunkRepository(cfg.RAG.StoreFile)
	tikaClient := tika.NewClient(cfg.Tika.ServerURL)
	splitter := pipeline.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	// CLI 进程没有常驻索引，Invalidator 传 nil
	processor := pipeline.NewProcessor(tikaClient, chunkRepository, splitter, cfg.MinIO, nil)

	ctx := context.Background()

	// 命令行给定文件时只导入这些文件，否则扫描数据目录
	files := flag.Args()
	if len(files) == 0 {
		folder := *dataFolder
		if folder == "" {
			folder = cfg.RAG.DataFolder
		}
		if folder == "" {
			fmt.Fprintln(os.Stderr, "未指定数据目录：使用 -data 参数或配置 rag.data_folder")
			os.Exit(1)
		}
		var err error
		files, err = collectPDFs(folder)
		if err != nil {
			log.Fatalf("扫描数据目录失败: %v", err)
		}
		if len(files) == 0 {
			log.Warnf("数据目录中没有 PDF 文件: %s", folder)
			return
		}
	}

	// 单个文件失败立即中止并以非零码退出，不静默跳过
	total := 0
	for _, file := range files {
		count, err := processor.IngestLocalFile(ctx, file)
		if err != nil {
			log.Fatalf("导入失败: %s: %v", file, err)
		}
		log.Infof("导入完成: %s, 分块数: %d", file, count)
		total += count
	}

	log.Infof("批量导入完成, 文件数: %d, 总分块数: %d", len(files), total)
}

// collectPDFs 递归收集目录下的全部 PDF 文件。
func collectPDFs(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("不是目录: %s", dir)
	}

	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
