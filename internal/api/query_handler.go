package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/index"
	applog "regpulse/internal/platform/log"
)

// QueryRequest 问答请求
type QueryRequest struct {
	Question string        `json:"question"`
	History  []answer.Turn `json:"history,omitempty"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	Answer  string         `json:"answer"`
	Sources []index.Source `json:"sources"`
}

// QueryHandler 问答接口
type QueryHandler struct {
	retriever *index.HybridRetriever
	generator *answer.Generator
	timeout   time.Duration
}

// NewQueryHandler 创建问答 handler
func NewQueryHandler(retriever *index.HybridRetriever, generator *answer.Generator, timeout time.Duration) *QueryHandler {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &QueryHandler{
		retriever: retriever,
		generator: generator,
		timeout:   timeout,
	}
}

// HandleQuery POST /v1/query
// 检索失败或 LLM 失败均降级为可读回答，不返回 5xx。
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	start := time.Now()
	docs, err := h.retriever.Retrieve(ctx, req.Question)
	if err != nil {
		// 检索失败走空上下文，回答层会声明信息不在文档中
		applog.Error("[API/Query] Retrieval failed, answering without context", "error", err)
		docs = nil
	}

	answerText := h.generator.Answer(ctx, req.Question, docs, req.History)

	applog.Info("[API/Query] Query answered",
		"docs", len(docs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:  answerText,
		Sources: index.DedupSources(docs),
	})
}
