package api

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"regpulse/internal/domain/answer"
	"regpulse/internal/domain/digest"
	"regpulse/internal/domain/index"
	"regpulse/internal/provider"
)

const testSecret = "test-secret"

type stubLLM struct{}

func (stubLLM) Name() string { return "stub-api" }

func (stubLLM) Complete(_ context.Context, _ *provider.CompletionRequest) (*provider.CompletionResponse, error) {
	return &provider.CompletionResponse{Content: "stub answer"}, nil
}

type testEmbedder struct{}

func (testEmbedder) Dims() int { return 8 }

func (testEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32(sum[j]) / 255.0
		}
		out[i] = index.Normalize(v)
	}
	return out, nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	provider.RegisterProvider(stubLLM{})

	retriever := index.NewHybridRetriever(
		index.HybridRetrieverConfig{TopK: 5},
		testEmbedder{},
		index.NewMemoryVectorIndex(),
		index.NewLexicalIndex(filepath.Join(t.TempDir(), "snapshot.json")),
		nil,
	)
	generator := answer.NewGenerator(answer.GeneratorConfig{Provider: "stub-api", Model: "test"})

	cfg := DefaultServerConfig()
	cfg.JWTSecret = testSecret

	server := NewServer(cfg,
		NewQueryHandler(retriever, generator, 10*time.Second),
		NewDigestHandler(digest.NewStore(filepath.Join(t.TempDir(), "latest_summaries.json"))),
	)
	return server.Handler()
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "analyst-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// TestHealthIsPublic /health 不需要鉴权
func TestHealthIsPublic(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for /health, got %d", rr.Code)
	}
}

// TestProtectedRoutesRequireJWT 业务路由缺 token 返回 401
func TestProtectedRoutesRequireJWT(t *testing.T) {
	handler := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"query requires jwt", http.MethodPost, "/v1/query"},
		{"digests requires jwt", http.MethodGet, "/v1/digests"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for %s, got %d", tt.path, rr.Code)
			}
		})
	}
}

// TestInvalidTokenRejected 错误密钥签名的 token 返回 401
func TestInvalidTokenRejected(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(`{"question":"q"}`))
	req.Header.Set("Authorization", "Bearer "+signToken(t, "wrong-secret"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rr.Code)
	}
}

// TestQueryWithValidToken 合法 token 正常问答，空索引也不返回 5xx
func TestQueryWithValidToken(t *testing.T) {
	handler := newTestServer(t)

	body := `{"question":"What changed in digital lending rules?"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Data QueryResponse `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Data.Answer != "stub answer" {
		t.Errorf("unexpected answer: %q", resp.Data.Answer)
	}

	t.Logf("✅ Query answered with %d sources", len(resp.Data.Sources))
}

// TestQueryValidation 缺 question 返回 400
func TestQueryValidation(t *testing.T) {
	handler := newTestServer(t)

	for _, body := range []string{`{}`, `{"question":"  "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

// TestDigestsEndpoint 合法 token 读取摘要列表
func TestDigestsEndpoint(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/digests?limit=5", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	// 非法 limit
	req = httptest.NewRequest(http.MethodGet, "/v1/digests?limit=abc", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid limit, got %d", rr.Code)
	}
}
