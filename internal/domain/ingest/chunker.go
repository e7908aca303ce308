package ingest

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Chunker 把干净文本切成带重叠的定长块。
// 断点优先级：段落 > 句子 > 任意字符；不会产出空块。
type Chunker struct {
	chunkSize int // 每块目标字符数
	overlap   int // 块间重叠字符数
}

// NewChunker 创建分块器。
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}
}

// 句子切分：保留结尾标点，兼容中英文句号
var reSentence = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]+['")\]]*\s*|[^.!?。！？]+$`)

// Split 切分文本。结果对同一输入完全确定，重复处理产出相同的块序列。
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, unit := range c.units(text) {
		unitLen := utf8.RuneCountInString(unit)

		// 单个 unit 超限：先落当前块，再硬切
		if unitLen > c.chunkSize {
			flush()
			runes := []rune(unit)
			step := c.chunkSize - c.overlap
			for i := 0; ; i += step {
				end := i + c.chunkSize
				if end > len(runes) {
					end = len(runes)
				}
				if piece := strings.TrimSpace(string(runes[i:end])); piece != "" {
					chunks = append(chunks, piece)
				}
				if end >= len(runes) {
					break
				}
			}
			continue
		}

		currentLen := utf8.RuneCountInString(current.String())
		if currentLen > 0 && currentLen+unitLen+1 > c.chunkSize {
			// 当前块已满，保存并以尾部 overlap 开启新块
			prev := current.String()
			flush()
			if c.overlap > 0 {
				prevRunes := []rune(prev)
				if len(prevRunes) > c.overlap {
					current.WriteString(string(prevRunes[len(prevRunes)-c.overlap:]))
					current.WriteString(" ")
				}
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(unit)
	}

	flush()
	return chunks
}

// units 文本的原子切分单元：段落优先，超限段落降级为句子。
func (c *Chunker) units(text string) []string {
	var units []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= c.chunkSize {
			units = append(units, para)
			continue
		}
		for _, sent := range reSentence.FindAllString(para, -1) {
			if sent = strings.TrimSpace(sent); sent != "" {
				units = append(units, sent)
			}
		}
	}
	return units
}
