package ingest

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	applog "regpulse/internal/platform/log"
)

// 文档格式抽取：监管文档以 HTML 页面为主，通告/主指令常见 PDF，
// 偶见 DOCX。按 Content-Type 优先、URL 扩展名兜底选择抽取器。

// ── HTML ─────────────────────────────────────────────────────

var (
	reHTMLComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	// 非正文块整段剔除：脚本、样式、导航、页眉页脚、侧栏
	reHTMLDropBlocks = regexp.MustCompile(`(?is)<(script|style|nav|header|footer|aside)\b[^>]*>.*?</(script|style|nav|header|footer|aside)\s*>`)
	// 块级标签结束处补换行，保住段落边界
	reHTMLBlockEnd = regexp.MustCompile(`(?i)</(p|div|li|h[1-6]|tr|table|section|article|blockquote)\s*>|<br\s*/?>`)
	reHTMLTag      = regexp.MustCompile(`<[^>]+>`)
	reSpaces       = regexp.MustCompile(`[ \t\r\f]+`)
	reBlankLines   = regexp.MustCompile(`\n\s*\n+`)
)

// extractHTML 剥离标记与版式噪音，输出保留段落边界的纯文本。
func extractHTML(raw []byte) string {
	text := string(raw)
	text = reHTMLComment.ReplaceAllString(text, " ")
	text = reHTMLDropBlocks.ReplaceAllString(text, " ")
	text = reHTMLBlockEnd.ReplaceAllString(text, "\n\n")
	text = reHTMLTag.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	return collapseWhitespace(text)
}

// collapseWhitespace 行内空白折叠为单空格，多空行折叠为段落分隔。
func collapseWhitespace(text string) string {
	text = reSpaces.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// ── PDF ──────────────────────────────────────────────────────

func extractPDF(raw []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			applog.Warn("[Ingest/PDF] Failed to extract page text", "page", i, "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			sb.WriteString(text)
			sb.WriteString("\n\n")
		}
	}
	return collapseWhitespace(sb.String()), nil
}

// ── DOCX ─────────────────────────────────────────────────────

func extractDOCX(raw []byte) (string, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	defer r.Close()

	// docx 库返回文档 XML，逐行剥标签取纯文本
	content := r.Editable().GetContent()
	var sb strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := reHTMLTag.ReplaceAllString(scanner.Text(), " ")
		if line = strings.TrimSpace(line); line != "" {
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return collapseWhitespace(sb.String()), nil
}

// ── 格式分派 ─────────────────────────────────────────────────

type docFormat int

const (
	formatHTML docFormat = iota
	formatPDF
	formatDOCX
	formatPlain
)

// detectFormat 根据 Content-Type 与 URL 扩展名判断文档格式。
func detectFormat(contentType, rawURL string) docFormat {
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = ct[:idx]
	}
	ct = strings.TrimSpace(ct)

	switch {
	case strings.Contains(ct, "pdf"):
		return formatPDF
	case strings.Contains(ct, "wordprocessingml"), strings.Contains(ct, "msword"):
		return formatDOCX
	case strings.Contains(ct, "html"), strings.Contains(ct, "xhtml"):
		return formatHTML
	case strings.HasPrefix(ct, "text/"):
		return formatPlain
	}

	if u, err := url.Parse(rawURL); err == nil {
		switch strings.ToLower(path.Ext(u.Path)) {
		case ".pdf":
			return formatPDF
		case ".docx", ".doc":
			return formatDOCX
		case ".txt", ".text":
			return formatPlain
		}
	}
	return formatHTML
}

// ExtractText 将原始文档字节转为干净纯文本。
func ExtractText(contentType, rawURL string, body []byte) (string, error) {
	switch detectFormat(contentType, rawURL) {
	case formatPDF:
		return extractPDF(body)
	case formatDOCX:
		return extractDOCX(body)
	case formatPlain:
		return collapseWhitespace(string(body)), nil
	default:
		return extractHTML(body), nil
	}
}
