package ingest

import (
	"strings"
	"testing"
)

// TestExtractHTMLStripsMarkup HTML 抽取剔除标签与噪音块
func TestExtractHTMLStripsMarkup(t *testing.T) {
	raw := `<html><head><title>RBI Circular</title>
<script>var x = 1;</script>
<style>.a { color: red }</style></head>
<body>
<nav>Home | About</nav>
<!-- tracking comment -->
<h1>Master Direction on Digital Lending</h1>
<p>All regulated entities shall comply with these guidelines.</p>
<p>Effective date: April 1, 2026.</p>
<footer>Copyright RBI</footer>
</body></html>`

	text := extractHTML([]byte(raw))

	if strings.Contains(text, "var x") || strings.Contains(text, "color: red") {
		t.Error("script/style content leaked into text")
	}
	if strings.Contains(text, "Home | About") || strings.Contains(text, "Copyright RBI") {
		t.Error("nav/footer content leaked into text")
	}
	if strings.Contains(text, "<") || strings.Contains(text, ">") {
		t.Errorf("tags leaked into text: %q", text)
	}
	if !strings.Contains(text, "Master Direction on Digital Lending") {
		t.Error("heading missing from extracted text")
	}
	if !strings.Contains(text, "All regulated entities shall comply") {
		t.Error("body text missing from extracted text")
	}

	// 段落边界保留为空行
	if !strings.Contains(text, "\n\n") {
		t.Error("expected paragraph boundaries in extracted text")
	}
}

// TestExtractHTMLEntities HTML 实体被解码
func TestExtractHTMLEntities(t *testing.T) {
	text := extractHTML([]byte(`<p>KYC &amp; AML norms &mdash; updated</p>`))
	if !strings.Contains(text, "KYC & AML") {
		t.Errorf("expected decoded entities, got %q", text)
	}
}

// TestDetectFormat Content-Type 优先，URL 扩展名兜底
func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		url         string
		want        docFormat
	}{
		{"pdf by content type", "application/pdf", "https://rbi.org.in/doc", formatPDF},
		{"pdf with charset", "application/pdf; charset=utf-8", "https://rbi.org.in/doc", formatPDF},
		{"docx by content type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "https://x/doc", formatDOCX},
		{"html by content type", "text/html; charset=utf-8", "https://x/page", formatHTML},
		{"plain text", "text/plain", "https://x/notes", formatPlain},
		{"pdf by extension", "", "https://rbi.org.in/notification.pdf", formatPDF},
		{"docx by extension", "application/octet-stream", "https://x/circular.docx", formatDOCX},
		{"default html", "", "https://x/page", formatHTML},
		{"content type wins over extension", "text/html", "https://x/fake.pdf", formatHTML},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectFormat(tt.contentType, tt.url); got != tt.want {
				t.Errorf("detectFormat(%q, %q) = %v, want %v", tt.contentType, tt.url, got, tt.want)
			}
		})
	}
}

// TestExtractTextPlain 纯文本仅折叠空白
func TestExtractTextPlain(t *testing.T) {
	text, err := ExtractText("text/plain", "https://x/notes.txt", []byte("line one   \n\n\n\nline two"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "line one\n\nline two" {
		t.Errorf("unexpected plain text: %q", text)
	}
}
