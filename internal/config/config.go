package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 應用程式配置
type Config struct {
	Aliyun struct {
		APIKey    string          `yaml:"api_key"`
		Embedding EmbeddingConfig `yaml:"embedding"`
	} `yaml:"aliyun"`

	// 知識檢索引擎配置
	RAG RAGConfig `yaml:"rag"`

	// Redis 快取配置（可省略，省略時退化為無快取模式）
	Redis *RedisConfig `yaml:"redis"`

	// 日誌配置
	Logger LoggerConfig `yaml:"logger"`
}

// EmbeddingConfig 向量化模型配置（OpenAI 相容端點）
type EmbeddingConfig struct {
	Model          string `yaml:"model"`
	Dimensions     int    `yaml:"dimensions"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 單次呼叫超時(秒)
}

// RAGConfig 知識檢索引擎配置
type RAGConfig struct {
	DataDir string `yaml:"data_dir"` // 知識庫目錄

	TopK             int     `yaml:"top_k"`             // 預設回傳筆數
	MinScore         float64 `yaml:"min_score"`         // 最低相關分數門檻
	OversampleFactor int     `yaml:"oversample_factor"` // 過濾前的過取樣倍數
	CacheTTLSeconds  int     `yaml:"cache_ttl_seconds"` // 檢索快取存活時間(秒)

	// 重複問題偵測
	LexicalDupThreshold  float64 `yaml:"lexical_dup_threshold"`  // 字面重疊門檻
	SemanticDupThreshold float64 `yaml:"semantic_dup_threshold"` // 語意相似門檻
	DedupRecentWindow    int     `yaml:"dedup_recent_window"`    // 只比對最近幾輪
}

// RedisConfig Redis 連線配置
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// 連線池設定
	PoolSize     int `yaml:"pool_size"`
	MinIdleConns int `yaml:"min_idle_conns"`
	// 超時設定
	DialTimeoutSeconds  int `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	// 重試設定
	MaxRetries int `yaml:"max_retries"`
}

// LoggerConfig 日誌配置
type LoggerConfig struct {
	Level        string `yaml:"level"`         // debug, info, warn, error
	Format       string `yaml:"format"`        // json, pretty
	TimeFormat   string `yaml:"time_format"`   // 時間格式
	ReportCaller bool   `yaml:"report_caller"` // 是否報告呼叫位置
}

// LoadConfig 從檔案載入配置
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if _, err := os.Stat(configPath); err != nil {
		return nil, fmt.Errorf("配置檔不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("讀取配置檔失敗: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("解析配置檔失敗: %w", err)
	}

	// 從環境變數覆蓋（如果存在）
	if envKey := os.Getenv("ALIYUN_API_KEY"); envKey != "" {
		config.Aliyun.APIKey = envKey
	}
	if envURL := os.Getenv("ALIYUN_EMBEDDING_URL"); envURL != "" {
		config.Aliyun.Embedding.BaseURL = envURL
	}
	if envAddr := os.Getenv("REDIS_ADDRESS"); envAddr != "" {
		if config.Redis == nil {
			config.Redis = &RedisConfig{}
		}
		config.Redis.Address = envAddr
	}

	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults 為未設定的欄位填入預設值
func (c *Config) ApplyDefaults() {
	if c.RAG.DataDir == "" {
		c.RAG.DataDir = "knowledge_base"
	}
	if c.RAG.TopK <= 0 {
		c.RAG.TopK = 2
	}
	if c.RAG.MinScore == 0 {
		c.RAG.MinScore = 0.3
	}
	if c.RAG.OversampleFactor <= 0 {
		c.RAG.OversampleFactor = 3
	}
	if c.RAG.CacheTTLSeconds <= 0 {
		c.RAG.CacheTTLSeconds = 3600
	}
	if c.RAG.LexicalDupThreshold == 0 {
		c.RAG.LexicalDupThreshold = 0.6
	}
	if c.RAG.SemanticDupThreshold == 0 {
		c.RAG.SemanticDupThreshold = 0.85
	}
	if c.RAG.DedupRecentWindow <= 0 {
		c.RAG.DedupRecentWindow = 3
	}
	if c.Aliyun.Embedding.TimeoutSeconds <= 0 {
		c.Aliyun.Embedding.TimeoutSeconds = 30
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
}

// DefaultConfig 回傳內建預設配置（測試與無配置檔場景使用）
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}
