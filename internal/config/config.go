package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config 描述了 empleaidod 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Registry  RegistryConfig  `json:"registry"`
	LLM       LLMConfig       `json:"llm"`
	Audit     AuditConfig     `json:"audit"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Logging   LoggingConfig   `json:"logging"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Knowledge KnowledgeConfig `json:"knowledge"`
	Alerting  AlertingConfig  `json:"alerting"`
	Assistant AssistantConfig `json:"assistant"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
	// MetricsAddress 非空时在独立端口暴露 /metrics。
	MetricsAddress string `json:"metrics_address"`
	RuntimeMetrics bool   `json:"runtime_metrics"`
}

// StorageConfig 描述激活状态、审计与确认记录的存储后端。
type StorageConfig struct {
	Driver                 string `json:"driver"`
	DSN                    string `json:"dsn"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
	SaveRetries            int    `json:"save_retries"`
}

// ConnMaxLifetime 返回连接最大存活时间。
func (s StorageConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(s.ConnMaxLifetimeSeconds) * time.Second
}

// RegistryConfig 指定技能目录的来源。为空时使用内置目录。
type RegistryConfig struct {
	Path string `json:"path"`
}

// LLMConfig 用于配置文本生成与向量服务。
type LLMConfig struct {
	Provider       string       `json:"provider"`
	Retries        int          `json:"retries"`
	RetryBackoffMS int          `json:"retry_backoff_ms"`
	OpenAI         OpenAIConfig `json:"openai"`
	Gemini         GeminiConfig `json:"gemini"`
}

// RetryBackoff 返回重试间隔。
func (l LLMConfig) RetryBackoff() time.Duration {
	return time.Duration(l.RetryBackoffMS) * time.Millisecond
}

// OpenAIConfig 描述 OpenAI 兼容接口的访问参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回请求超时时间。
func (o OpenAIConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutSeconds) * time.Second
}

// GeminiConfig 描述 Google GenAI 的访问参数。
type GeminiConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	Model          string `json:"model"`
	EmbeddingModel string `json:"embedding_model"`
}

// AuditConfig 决定审计事件写入哪些目标。
type AuditConfig struct {
	Sinks    []string       `json:"sinks"`
	File     AuditFile      `json:"file"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// AuditFile 描述审计日志文件的滚动策略。
type AuditFile struct {
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// RabbitMQConfig 描述审计事件的发布目标。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	Queue    string `json:"queue"`
	Durable  bool   `json:"durable"`
}

// RateLimitConfig 控制技能执行的每日配额。
type RateLimitConfig struct {
	Driver string         `json:"driver"`
	Tiers  map[string]int `json:"tiers"`
	Redis  RedisConfig    `json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// KnowledgeConfig 指定 operational 对话引用的知识库文件。
type KnowledgeConfig struct {
	Path       string `json:"path"`
	MaxResults int    `json:"max_results"`
}

// AlertingConfig 描述需要告警的错误发往哪里。
type AlertingConfig struct {
	WebhookURL     string `json:"webhook_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// AssistantConfig 控制 operational 消息的语义技能匹配。
type AssistantConfig struct {
	SemanticMatching bool    `json:"semantic_matching"`
	Threshold        float64 `json:"threshold"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string   `json:"level"`
	Format      string   `json:"format"`
	OutputPaths []string `json:"output_paths"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir                string `json:"data_dir"`
	WorkspaceDir           string `json:"workspace_dir"`
	ConfirmationTTLMinutes int    `json:"confirmation_ttl_minutes"`
}

// ConfirmationTTL 返回待确认结果的有效期。
func (r RuntimeConfig) ConfirmationTTL() time.Duration {
	return time.Duration(r.ConfirmationTTLMinutes) * time.Minute
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回一份完全使用默认值的配置，便于本地运行。
func Default(baseDir string) *Config {
	cfg := &Config{}
	cfg.applyDefaults(baseDir)
	return cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.SaveRetries <= 0 {
		c.Storage.SaveRetries = 5
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "none"
	}
	if c.LLM.Retries <= 0 {
		c.LLM.Retries = 2
	}
	if c.LLM.RetryBackoffMS <= 0 {
		c.LLM.RetryBackoffMS = 200
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if c.LLM.Gemini.APIKeyEnv == "" {
		c.LLM.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}

	if len(c.Audit.Sinks) == 0 {
		c.Audit.Sinks = []string{"log"}
	}

	if c.RateLimit.Driver == "" {
		c.RateLimit.Driver = "memory"
	}
	if len(c.RateLimit.Tiers) == 0 {
		c.RateLimit.Tiers = map[string]int{"free": 100, "pro": 1000, "unlimited": 0}
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Runtime.WorkspaceDir == "" {
		c.Runtime.WorkspaceDir = filepath.Join(c.Runtime.DataDir, "workspaces")
	} else if !filepath.IsAbs(c.Runtime.WorkspaceDir) {
		c.Runtime.WorkspaceDir = filepath.Join(baseDir, c.Runtime.WorkspaceDir)
	}
	if c.Runtime.ConfirmationTTLMinutes <= 0 {
		c.Runtime.ConfirmationTTLMinutes = 60
	}

	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}
	if c.Knowledge.Path != "" && !filepath.IsAbs(c.Knowledge.Path) {
		c.Knowledge.Path = filepath.Join(baseDir, c.Knowledge.Path)
	}
	if c.Alerting.TimeoutSeconds <= 0 {
		c.Alerting.TimeoutSeconds = 5
	}
	if c.Assistant.Threshold <= 0 || c.Assistant.Threshold > 1 {
		c.Assistant.Threshold = 0.82
	}

	if c.Registry.Path != "" && !filepath.IsAbs(c.Registry.Path) {
		c.Registry.Path = filepath.Join(baseDir, c.Registry.Path)
	}
	if c.Audit.File.Path != "" && !filepath.IsAbs(c.Audit.File.Path) {
		c.Audit.File.Path = filepath.Join(baseDir, c.Audit.File.Path)
	}
}

func (c *Config) validate() error {
	switch strings.ToLower(c.Storage.Driver) {
	case "memory":
	case "mysql", "sqlite":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("存储驱动 %s 需要配置 dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.Storage.Driver)
	}
	switch strings.ToLower(c.RateLimit.Driver) {
	case "memory":
	case "redis":
		if c.RateLimit.Redis.Address == "" {
			return errors.New("redis 限流需要配置 address")
		}
	default:
		return fmt.Errorf("未知的限流驱动: %s", c.RateLimit.Driver)
	}
	for _, sink := range c.Audit.Sinks {
		switch strings.ToLower(sink) {
		case "log", "store":
		case "rabbitmq":
			if c.Audit.RabbitMQ.URL == "" {
				return errors.New("rabbitmq 审计需要配置 url")
			}
		default:
			return fmt.Errorf("未知的审计目标: %s", sink)
		}
	}
	return nil
}

// ResolveSecret 优先使用显式配置，其次读取环境变量。
func ResolveSecret(value, envName string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	if envName == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(envName))
}
