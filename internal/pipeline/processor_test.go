package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"medsmart-go/internal/config"
	"medsmart-go/internal/repository"
	"medsmart-go/pkg/tika"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTikaServer 返回固定的 XHTML，模拟 Tika 的 /tika 端点。
func fakeTikaServer(t *testing.T, xhtml string) *tika.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(xhtml))
	}))
	t.Cleanup(srv.Close)
	return tika.NewClient(srv.URL)
}

// countingInvalidator 记录索引被失效的次数。
type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

func TestIngestSinglePageDocument(t *testing.T) {
	xhtml := `<html><head><title>notice</title></head><body>` +
		`<div class="page"><p>探视时间为每天下午两点到六点。</p></div>` +
		`</body></html>`
	tikaClient := fakeTikaServer(t, xhtml)
	chunkRepo := repository.NewChunkRepository(filepath.Join(t.TempDir(), "documents.json"))
	inv := &countingInvalidator{}
	p := NewProcessor(tikaClient, chunkRepo, NewSplitter(500, 150), config.MinIOConfig{}, inv)

	count, err := p.IngestReader(context.Background(), strings.NewReader("%PDF-fake"), "data/notice.pdf")

	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, inv.calls)

	chunks, err := chunkRepo.LoadAll()
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	// 来源只记文件名（basename），页码从 0 开始
	assert.Equal(t, "notice.pdf", chunks[0].Metadata.Source)
	require.NotNil(t, chunks[0].Metadata.Page)
	assert.Equal(t, 0, *chunks[0].Metadata.Page)
	assert.Contains(t, chunks[0].PageContent, "探视时间")
}

func TestIngestMultiPageKeepsPageNumbers(t *testing.T) {
	xhtml := `<html><body>` +
		`<div class="page"><p>first page text</p></div>` +
		`<div class="page"><p></p></div>` +
		`<div class="page"><p>third page text</p></div>` +
		`</body></html>`
	tikaClient := fakeTikaServer(t, xhtml)
	chunkRepo := repository.NewChunkRepository(filepath.Join(t.TempDir(), "documents.json"))
	p := NewProcessor(tikaClient, chunkRepo, NewSplitter(500, 150), config.MinIOConfig{}, nil)

	count, err := p.IngestReader(context.Background(), strings.NewReader("%PDF-fake"), "manual.pdf")

	require.NoError(t, err)
	assert.Equal(t, 2, count)

	chunks, err := chunkRepo.LoadAll()
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// 空白的第 1 页不产生分块，但页码对应关系保留
	assert.Equal(t, 0, *chunks[0].Metadata.Page)
	assert.Equal(t, 2, *chunks[1].Metadata.Page)
}

func TestIngestEmptyDocumentFails(t *testing.T) {
	tikaClient := fakeTikaServer(t, `<html><body></body></html>`)
	chunkRepo := repository.NewChunkRepository(filepath.Join(t.TempDir(), "documents.json"))
	inv := &countingInvalidator{}
	p := NewProcessor(tikaClient, chunkRepo, NewSplitter(500, 150), config.MinIOConfig{}, inv)

	_, err := p.IngestReader(context.Background(), strings.NewReader("%PDF-fake"), "empty.pdf")

	assert.Error(t, err)
	assert.Zero(t, inv.calls)
}

func TestIngestLocalFileMissing(t *testing.T) {
	tikaClient := fakeTikaServer(t, `<html><body></body></html>`)
	chunkRepo := repository.NewChunkRepository(filepath.Join(t.TempDir(), "documents.json"))
	p := NewProcessor(tikaClient, chunkRepo, NewSplitter(500, 150), config.MinIOConfig{}, nil)

	_, err := p.IngestLocalFile(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"))

	assert.Error(t, err)
}
