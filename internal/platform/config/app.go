package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，各服务按需提取。
type AppConfig struct {
	LogLevel  string          `json:"log_level"`
	LogFormat string          `json:"log_format"`
	Redis     RedisConfig     `json:"redis"`
	Stream    StreamConfig    `json:"stream"`
	Monitor   MonitorConfig   `json:"monitor"`
	Ingest    IngestConfig    `json:"ingest"`
	Vector    VectorConfig    `json:"vector"`
	Embedding EmbeddingConfig `json:"embedding"`
	LLM       LLMConfig       `json:"llm"`
	Retrieval RetrievalConfig `json:"retrieval"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Artifacts ArtifactsConfig `json:"artifacts"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

// StreamConfig 事件流主题与消费组。
type StreamConfig struct {
	RawTopic       string `json:"raw_topic"`       // 新文档变更事件
	ProcessedTopic string `json:"processed_topic"` // 已入库文档事件（触发摘要）
	GroupID        string `json:"group_id"`
}

// MonitorConfig 数据源轮询配置。
type MonitorConfig struct {
	// Sources 源标识 -> RSS/Atom feed URL
	Sources              map[string]string `json:"sources"`
	CheckIntervalSeconds int               `json:"check_interval_seconds"`
	FetchTimeoutSeconds  int               `json:"fetch_timeout_seconds"`
}

// IngestConfig 文档抓取与分块配置。
type IngestConfig struct {
	ChunkSize           int    `json:"chunk_size"`
	ChunkOverlap        int    `json:"chunk_overlap"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds"`
	UserAgent           string `json:"user_agent"`
}

// VectorConfig 外部向量索引服务配置。ServiceURL 为空时退化为进程内存索引。
type VectorConfig struct {
	ServiceURL      string `json:"service_url"`
	APIKey          string `json:"api_key"`
	IndexName       string `json:"index_name"`
	Dims            int    `json:"dims"`
	Metric          string `json:"metric"`
	UpsertBatchSize int    `json:"upsert_batch_size"`
}

// EmbeddingConfig OpenAI 兼容 embedding API 配置。
type EmbeddingConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key"`
	Model     string `json:"model"`
	Dims      int    `json:"dims"`
	BatchSize int    `json:"batch_size"`
}

// LLMConfig 答案合成与摘要使用的 LLM 配置（OpenAI 兼容 API）。
type LLMConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
}

type RetrievalConfig struct {
	TopK            int `json:"top_k"`
	CacheTTLSeconds int `json:"cache_ttl_seconds"` // 0=禁用
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
	JWTSecret           string `json:"jwt_secret"`
	JWTIssuer           string `json:"jwt_issuer"`
}

// DatabaseConfig 可选的 PostgreSQL 归档库（摘要镜像）。
type DatabaseConfig struct {
	URL string `json:"url"`
}

// ArtifactsConfig 持久化工件目录。
type ArtifactsConfig struct {
	Dir string `json:"dir"`
}

// FingerprintDBPath 指纹库文件路径。
func (a ArtifactsConfig) FingerprintDBPath() string {
	return filepath.Join(a.Dir, "fingerprints.db")
}

// LexicalSnapshotPath 词法索引快照文件路径。
func (a ArtifactsConfig) LexicalSnapshotPath() string {
	return filepath.Join(a.Dir, "lexical_snapshot.json")
}

// SummariesPath 摘要日志文件路径。
func (a ArtifactsConfig) SummariesPath() string {
	return filepath.Join(a.Dir, "latest_summaries.json")
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Stream: StreamConfig{
			RawTopic:       "raw-updates",
			ProcessedTopic: "processed-documents",
			GroupID:        "regpulse-processor",
		},
		Monitor: MonitorConfig{
			Sources: map[string]string{
				"rbi":  "https://rbi.org.in/Scripts/Rss.aspx",
				"sebi": "https://www.sebi.gov.in/sebirss.xml",
			},
			CheckIntervalSeconds: 100,
			FetchTimeoutSeconds:  30,
		},
		Ingest: IngestConfig{
			ChunkSize:           1000,
			ChunkOverlap:        150,
			FetchTimeoutSeconds: 20,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Vector: VectorConfig{
			IndexName:       "regpulse-chunks",
			Dims:            384,
			Metric:          "cosine",
			UpsertBatchSize: 100,
		},
		Embedding: EmbeddingConfig{
			BaseURL:   "http://localhost:11434/v1",
			Model:     "all-minilm",
			Dims:      384,
			BatchSize: 32,
		},
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "llama-3.1-8b-instant",
			BaseURL:  "https://api.groq.com/openai/v1",
		},
		Retrieval: RetrievalConfig{
			TopK:            5,
			CacheTTLSeconds: 300,
		},
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 120,
		},
		Artifacts: ArtifactsConfig{
			Dir: "artifacts",
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	// .env 非必需，加载失败直接忽略
	_ = godotenv.Load()

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("REDIS_URL", &c.Redis.URL)

	applyString("STREAM_RAW_TOPIC", &c.Stream.RawTopic)
	applyString("STREAM_PROCESSED_TOPIC", &c.Stream.ProcessedTopic)
	applyString("STREAM_GROUP_ID", &c.Stream.GroupID)

	// MONITOR_SOURCES 格式: name=url[,name=url...]
	if v := os.Getenv("MONITOR_SOURCES"); v != "" {
		sources := make(map[string]string)
		for _, pair := range strings.Split(v, ",") {
			parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				sources[parts[0]] = parts[1]
			}
		}
		if len(sources) > 0 {
			c.Monitor.Sources = sources
		}
	}
	applyInt("MONITOR_CHECK_INTERVAL", &c.Monitor.CheckIntervalSeconds)
	applyInt("MONITOR_FETCH_TIMEOUT", &c.Monitor.FetchTimeoutSeconds)

	applyInt("INGEST_CHUNK_SIZE", &c.Ingest.ChunkSize)
	applyInt("INGEST_CHUNK_OVERLAP", &c.Ingest.ChunkOverlap)
	applyInt("INGEST_FETCH_TIMEOUT", &c.Ingest.FetchTimeoutSeconds)
	applyString("INGEST_USER_AGENT", &c.Ingest.UserAgent)

	applyString("VECTOR_SERVICE_URL", &c.Vector.ServiceURL)
	applyString("VECTOR_API_KEY", &c.Vector.APIKey)
	applyString("VECTOR_INDEX_NAME", &c.Vector.IndexName)
	applyInt("VECTOR_DIMS", &c.Vector.Dims)
	applyInt("VECTOR_UPSERT_BATCH", &c.Vector.UpsertBatchSize)

	applyString("EMBEDDING_BASE_URL", &c.Embedding.BaseURL)
	applyString("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	applyString("EMBEDDING_MODEL", &c.Embedding.Model)
	applyInt("EMBEDDING_DIMS", &c.Embedding.Dims)
	applyInt("EMBEDDING_BATCH_SIZE", &c.Embedding.BatchSize)

	applyString("LLM_PROVIDER", &c.LLM.Provider)
	applyString("LLM_MODEL", &c.LLM.Model)
	applyString("LLM_API_KEY", &c.LLM.APIKey)
	applyString("LLM_BASE_URL", &c.LLM.BaseURL)

	applyInt("RETRIEVAL_TOP_K", &c.Retrieval.TopK)
	applyInt("RETRIEVAL_CACHE_TTL", &c.Retrieval.CacheTTLSeconds)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)
	applyString("JWT_SECRET", &c.Server.JWTSecret)
	applyString("JWT_ISSUER", &c.Server.JWTIssuer)

	applyString("DATABASE_URL", &c.Database.URL)

	applyString("ARTIFACTS_DIR", &c.Artifacts.Dir)
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.Redis.URL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("INGEST_CHUNK_OVERLAP must be smaller than INGEST_CHUNK_SIZE")
	}
	if c.Vector.ServiceURL != "" && strings.TrimSpace(c.Vector.APIKey) == "" {
		return fmt.Errorf("VECTOR_API_KEY is required when VECTOR_SERVICE_URL is set")
	}
	return nil
}

// RequireLLM 校验 LLM 凭证，summarizer/queryd 启动时调用。
func (c *AppConfig) RequireLLM() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	return nil
}

// RequireJWT 校验 API 鉴权密钥，queryd 启动时调用。
func (c *AppConfig) RequireJWT() error {
	if strings.TrimSpace(c.Server.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}
