// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(serverURL string) *Client {
	return &Client{serverURL: serverURL, client: http.DefaultClient}
}

// ExtractText 自动根据文件后缀推断 MIME 类型，并调用 Tika 提取纯文本。
func (c *Client) ExtractText(fileReader io.Reader, fileName string) (string, error) {
	body, err := c.call(fileReader, fileName, "text/plain")
	if err != nil {
		return "", err
	}
	return body, nil
}

// 匹配 Tika XHTML 输出中的分页标记 <div class="page">
var pageDivRe = regexp.MustCompile(`<div[^>]*class="page"[^>]*>`)

// 匹配任意 XHTML 标签，用于剥离标记得到纯文本
var tagRe = regexp.MustCompile(`<[^>]+>`)

// ExtractPages 调用 Tika 提取 XHTML 并按分页标记切分，返回每页的纯文本。
// 对 PDF 这类分页文档，Tika 会为每一页输出一个 page div；
// 没有分页标记的文档整体作为第 0 页返回。空白页会被保留以维持页码对应关系。
func (c *Client) ExtractPages(fileReader io.Reader, fileName string) ([]string, error) {
	xhtml, err := c.call(fileReader, fileName, "text/html")
	if err != nil {
		return nil, err
	}

	parts := pageDivRe.Split(xhtml, -1)
	if len(parts) <= 1 {
		// 无分页标记：整篇文档视为单页
		text := stripTags(xhtml)
		if strings.TrimSpace(text) == "" {
			return nil, nil
		}
		return []string{text}, nil
	}

	// parts[0] 是 body 之前的头部，丢弃
	pages := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		pages = append(pages, stripTags(part))
	}
	return pages, nil
}

// call 向 Tika 的 /tika 端点发起提取请求。
func (c *Client) call(fileReader io.Reader, fileName, accept string) (string, error) {
	req, err := http.NewRequest(http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("读取 Tika 响应失败: %w", err)
	}

	return buf.String(), nil
}

// stripTags 去除 XHTML 标签并反转义实体，保留文本与换行结构。
func stripTags(s string) string {
	// 块级闭合标签换成换行，避免段落粘连
	s = strings.NewReplacer("</p>", "\n\n", "</div>", "\n", "<br/>", "\n", "<br>", "\n").Replace(s)
	s = tagRe.ReplaceAllString(s, "")
	return html.UnescapeString(s)
}

// detectMimeType 根据文件扩展名判断 Content-Type。
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
