// Package answer 基于检索上下文的回答与摘要生成。
package answer

import (
	"context"
	"fmt"
	"strings"

	"regpulse/internal/domain/index"
	applog "regpulse/internal/platform/log"
	"regpulse/internal/provider"
)

// 历史对话最多携带的轮数
const maxHistoryTurns = 4

// 摘要对比时新文档截断长度（字符），控制 prompt 体积
const maxDigestDocChars = 8000

// Turn 一轮对话。
type Turn struct {
	Role    string `json:"role"` // user / assistant
	Content string `json:"content"`
}

// GeneratorConfig 生成配置。
type GeneratorConfig struct {
	Provider string // provider 注册名
	Model    string
}

// Generator 回答与摘要生成器。
type Generator struct {
	cfg GeneratorConfig
}

// NewGenerator 创建生成器。
func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{cfg: cfg}
}

const answerSystemPrompt = `You are an expert financial-analyst AI specializing in Indian fintech regulations.

Base every answer on the retrieved documents and the user's current question.
Draw on the full spectrum of Indian financial-technology rules, including but not limited to:
Reserve Bank of India (RBI) directives (digital lending, P2P, payment aggregators, prepaid instruments, NBFC norms, KYC/AML).
Securities and Exchange Board of India (SEBI) regulations (crowdfunding, investment advisors, algorithmic trading, fintech in securities markets).
Insurance Regulatory and Development Authority of India (IRDAI) guidelines (insurtech, digital policies).
Ministry of Finance notifications, Prevention of Money Laundering Act (PMLA) obligations, data-privacy requirements under the Digital Personal Data Protection Act, IT Act provisions, and cross-border payment rules.
Recent circulars, master directions, press releases, and consultation papers from all relevant regulators.
If the context or retrieved material does not contain the necessary detail, state clearly: "The information is not in the documents."
When helpful, flag regulatory gaps, pending consultations, or effective dates.
Use prior chat history only for conversational continuity, not as a source of regulatory facts.`

// Answer 结合检索上下文与对话历史生成回答。
// LLM 调用失败时返回固定的降级文案（error 为 nil，上层不升级为 5xx）。
func (g *Generator) Answer(ctx context.Context, query string, docs []index.Document, history []Turn) string {
	prompt := buildAnswerPrompt(query, docs, history)

	p, err := provider.GetProvider(g.cfg.Provider)
	if err != nil {
		applog.Error("[Answer] LLM provider unavailable", "provider", g.cfg.Provider, "error", err)
		return "Error: There was an issue communicating with the language model."
	}

	resp, err := p.Complete(ctx, &provider.CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: 0.1, // 事实性回答用低温
		MaxTokens:   1024,
	})
	if err != nil {
		applog.Error("[Answer] LLM completion failed", "error", err)
		return "Error: There was an issue communicating with the language model."
	}

	applog.Info("[Answer] Answer generated",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Content)
}

// GenerateDigest 为新文档生成摘要。有相关旧文档时做对比摘要，
// 否则做独立摘要。失败返回降级文案。
func (g *Generator) GenerateDigest(ctx context.Context, newDocText string, oldDocTexts []string) string {
	prompt := buildDigestPrompt(newDocText, oldDocTexts)

	p, err := provider.GetProvider(g.cfg.Provider)
	if err != nil {
		applog.Error("[Answer] LLM provider unavailable", "provider", g.cfg.Provider, "error", err)
		return "Error: Could not generate summary."
	}

	resp, err := p.Complete(ctx, &provider.CompletionRequest{
		Model:       g.cfg.Model,
		Messages:    []provider.Message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   512,
	})
	if err != nil {
		applog.Error("[Answer] Digest completion failed", "error", err)
		return "Error: Could not generate summary."
	}
	return strings.TrimSpace(resp.Content)
}

// buildAnswerPrompt 组装回答 prompt：系统指令 + 历史 + 上下文 + 问题。
func buildAnswerPrompt(query string, docs []index.Document, history []Turn) string {
	contextBlocks := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc.Text != "" {
			contextBlocks = append(contextBlocks, doc.Text)
		}
	}
	contextStr := strings.Join(contextBlocks, "\n\n---\n\n")
	if contextStr == "" {
		contextStr = "No relevant documents were found in the knowledge base."
	}

	var historyBuilder strings.Builder
	start := 0
	if len(history) > maxHistoryTurns {
		start = len(history) - maxHistoryTurns
	}
	for _, turn := range history[start:] {
		historyBuilder.WriteString(capitalize(turn.Role))
		historyBuilder.WriteString(": ")
		historyBuilder.WriteString(turn.Content)
		historyBuilder.WriteString("\n")
	}

	return fmt.Sprintf(`%s

CHAT HISTORY:
---
%s
---

RETRIEVED CONTEXT:
---
%s
---

CURRENT QUESTION: %s

ANSWER:`, answerSystemPrompt, historyBuilder.String(), contextStr, query)
}

// buildDigestPrompt 组装摘要 prompt，按是否有旧文档选择对比或独立模板。
func buildDigestPrompt(newDocText string, oldDocTexts []string) string {
	newDocText = truncate(newDocText, maxDigestDocChars)

	if len(oldDocTexts) > 0 {
		blocks := make([]string, 0, len(oldDocTexts))
		for _, t := range oldDocTexts {
			blocks = append(blocks, truncate(t, maxDigestDocChars))
		}
		return fmt.Sprintf(`You are a compliance analyst. Your task is to identify and summarize the key changes or new introductions in a new regulatory document compared to older, related ones.

OLDER RELATED DOCUMENTS:
---
%s
---

NEW DOCUMENT:
---
%s
---

Based on the provided documents, summarize the most significant changes or new points introduced in the NEW DOCUMENT in three concise bullet points. If there are no significant changes, state that.`,
			strings.Join(blocks, "\n\n---\n\n"), newDocText)
	}

	return fmt.Sprintf(`You are a compliance analyst. Your task is to summarize a new regulatory document.

NEW DOCUMENT:
---
%s
---

Summarize the key takeaways from this document in three concise bullet points.`, newDocText)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
