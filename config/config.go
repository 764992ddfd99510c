package config

import (
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	AI         AIConfig         `yaml:"ai"`
	Portal     PortalConfig     `yaml:"portal"`
	Generation GenerationConfig `yaml:"generation"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// StorageConfig S3 兼容对象存储配置（证据文件）
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// ExtractorConfig 清单抽取服务配置
type ExtractorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *ExtractorConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL string `yaml:"base_url"`
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

type AIConfig struct {
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	MaxTokens    int    `yaml:"max_tokens"`
	BatchBaseURL string `yaml:"batch_base_url"` // 批量答案任务服务地址
}

type PortalConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

func (c *PortalConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.BaseURL != "" {
		c.BaseURL = raw.BaseURL
	}
	if raw.APIKey != "" {
		c.APIKey = raw.APIKey
	}
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

// GenerationConfig 批量生成的轮询策略与编排器并发度
// 轮询上限是策略参数，不在代码里写死
type GenerationConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
	MaxWorkers      int           `yaml:"max_workers"`
}

// yaml.v3 不认识 time.Duration，这里手动解析 "2s" 这类写法
func (c *GenerationConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		PollInterval    string `yaml:"poll_interval"`
		MaxPollAttempts *int   `yaml:"max_poll_attempts"`
		MaxWorkers      *int   `yaml:"max_workers"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.PollInterval != "" {
		d, err := time.ParseDuration(raw.PollInterval)
		if err != nil {
			return err
		}
		c.PollInterval = d
	}
	if raw.MaxPollAttempts != nil {
		c.MaxPollAttempts = *raw.MaxPollAttempts
	}
	if raw.MaxWorkers != nil {
		c.MaxWorkers = *raw.MaxWorkers
	}
	return nil
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		cfg = loadConfig()
	})
	return cfg
}

func loadConfig() *Config {
	config := &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		Storage: StorageConfig{
			Endpoint: "localhost:9000",
			Bucket:   "supporting-documents",
		},
		Extractor: ExtractorConfig{
			BaseURL: "http://localhost:8090",
			Timeout: 2 * time.Minute,
		},
		AI: AIConfig{
			APIURL:    "https://api.openai.com/v1",
			Model:     "gpt-4o",
			MaxTokens: 4096,
		},
		Portal: PortalConfig{
			BaseURL: "http://localhost:8091",
			Timeout: time.Minute,
		},
		Generation: GenerationConfig{
			PollInterval:    2 * time.Second,
			MaxPollAttempts: 30,
			MaxWorkers:      2,
		},
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		yaml.Unmarshal(data, config)
	}

	// 环境变量优先级高于配置文件
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.AI.Model = model
	}
	if batchURL := os.Getenv("AI_BATCH_BASE_URL"); batchURL != "" {
		config.AI.BatchBaseURL = batchURL
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	// 对象存储环境变量
	if endpoint := os.Getenv("STORAGE_ENDPOINT"); endpoint != "" {
		config.Storage.Endpoint = endpoint
	}
	if accessKey := os.Getenv("STORAGE_ACCESS_KEY"); accessKey != "" {
		config.Storage.AccessKey = accessKey
	}
	if secretKey := os.Getenv("STORAGE_SECRET_KEY"); secretKey != "" {
		config.Storage.SecretKey = secretKey
	}
	if bucket := os.Getenv("STORAGE_BUCKET"); bucket != "" {
		config.Storage.Bucket = bucket
	}

	if extractorURL := os.Getenv("EXTRACTOR_BASE_URL"); extractorURL != "" {
		config.Extractor.BaseURL = extractorURL
	}
	if portalURL := os.Getenv("PORTAL_BASE_URL"); portalURL != "" {
		config.Portal.BaseURL = portalURL
	}
	if portalKey := os.Getenv("PORTAL_API_KEY"); portalKey != "" {
		config.Portal.APIKey = portalKey
	}

	if attempts := os.Getenv("GENERATION_MAX_POLL_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil && n > 0 {
			config.Generation.MaxPollAttempts = n
		}
	}

	if config.Generation.PollInterval <= 0 {
		config.Generation.PollInterval = 2 * time.Second
	}
	if config.Generation.MaxPollAttempts <= 0 {
		config.Generation.MaxPollAttempts = 30
	}
	if config.Generation.MaxWorkers <= 0 {
		config.Generation.MaxWorkers = 2
	}

	return config
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func UpdateConfig(newCfg *Config) {
	cfg = newCfg
}
