// Package config 负责加载和管理网关的配置
// 使用 viper 库支持 YAML 配置文件和环境变量覆盖，godotenv 负责读取 .env
package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 是网关的根配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`     // 服务器配置
	Database  DatabaseConfig  `mapstructure:"database"`   // 数据库配置
	Redis     RedisConfig     `mapstructure:"redis"`      // Redis 配置
	Auth      AuthConfig      `mapstructure:"auth"`       // 认证配置
	Log       LogConfig       `mapstructure:"log"`        // 日志配置
	LLM       LLMConfig       `mapstructure:"llm"`        // 大模型配置
	CSV       CSVConfig       `mapstructure:"csv"`        // CSV 分析配置
	Image     ImageConfig     `mapstructure:"image"`      // 图片预处理配置
	Storage   StorageConfig   `mapstructure:"storage"`    // 附件存储配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"` // 限流配置
}

// ServerConfig 服务器相关配置
type ServerConfig struct {
	Port            int           `mapstructure:"port"`             // 监听端口，默认 8000
	Mode            string        `mapstructure:"mode"`             // 运行模式: debug / release
	CORS            []string      `mapstructure:"cors"`             // CORS 允许的域名
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`     // 读超时
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`    // 写超时，流式响应需要为 0
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // 优雅关闭等待时间
}

// DatabaseConfig 数据库连接配置
// driver 可选 postgres / mysql / sqlite
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`        // 仅 mysql
	SSLMode      string `mapstructure:"sslmode"`        // 仅 postgres
	Path         string `mapstructure:"path"`           // 仅 sqlite
	MaxIdleConns int    `mapstructure:"max_idle_conns"` // 最大空闲连接数
	MaxOpenConns int    `mapstructure:"max_open_conns"` // 最大打开连接数
	MaxLifetime  int    `mapstructure:"max_lifetime"`   // 连接最大生命周期（秒）
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Host       string        `mapstructure:"host"`
	Port       int           `mapstructure:"port"`
	Username   string        `mapstructure:"username"`
	Password   string        `mapstructure:"password"`
	DB         int           `mapstructure:"db"`
	PoolSize   int           `mapstructure:"pool_size"`
	HistoryTTL time.Duration `mapstructure:"history_ttl"` // 消息列表缓存时间
	PlotsTTL   time.Duration `mapstructure:"plots_ttl"`   // 图表保留时间
}

// AuthConfig 认证配置
// 关闭时 /api/v1 不做鉴权，与原有前端行为一致
type AuthConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	JWTSecret     string        `mapstructure:"jwt_secret"`      // 至少 32 字符
	AccessExpire  time.Duration `mapstructure:"access_expire"`   // Token 有效期
	AccessKeyHash string        `mapstructure:"access_key_hash"` // 访问密钥的 bcrypt 哈希
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug/info/warn/error
	Format     string `mapstructure:"format"`      // json/console
	OutputPath string `mapstructure:"output_path"` // stdout 或文件路径
}

// LLMConfig 大模型服务配置
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"` // gemini / openai
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxOutputTokens   int           `mapstructure:"max_output_tokens"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

// CSVConfig CSV 分析配置
type CSVConfig struct {
	MaxIterations  int   `mapstructure:"max_iterations"`   // 工具调用最大轮数
	SampleRows     int   `mapstructure:"sample_rows"`      // 发送给模型的样例行数
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"` // 单个文件上限
	InlineMaxBytes int64 `mapstructure:"inline_max_bytes"` // 超过则只保存元数据
	InlineMaxRows  int   `mapstructure:"inline_max_rows"`
}

// ImageConfig 图片预处理配置
type ImageConfig struct {
	MaxBytes     int `mapstructure:"max_bytes"`
	MaxDimension int `mapstructure:"max_dimension"`
	JPEGQuality  int `mapstructure:"jpeg_quality"`
}

// StorageConfig 附件存储配置
type StorageConfig struct {
	Backend string   `mapstructure:"backend"` // database / s3
	S3      S3Config `mapstructure:"s3"`
}

// S3Config S3 兼容对象存储配置
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	Burst             int  `mapstructure:"burst"`
}

// Loader 持有 viper 实例，Watch 需要在加载后继续使用它
type Loader struct {
	v *viper.Viper
}

// Load 从指定路径加载配置文件
// 参数:
//   - configPath: 配置文件目录路径 (如 "./configs")
//
// 返回:
//   - *Config: 配置对象
//   - *Loader: 用于监听配置变更
//   - error: 如果加载失败则返回错误
func Load(configPath string) (*Config, *Loader, error) {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	// 例如: DATABASE_HOST -> database.host
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindEnvVariables(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, err
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, &Loader{v: v}, nil
}

// Watch 监听配置文件变化，变化后重新解析并回调
// 没有配置文件时不做任何事
func (l *Loader) Watch(onChange func(*Config)) {
	if l == nil || l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(l.v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	}
	return &cfg, nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return ""
}

// bindEnvVariables 绑定环境变量到配置项
func bindEnvVariables(v *viper.Viper) {
	// 服务器配置
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// 数据库配置
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.username", "DATABASE_USERNAME")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.database", "DATABASE_NAME")
	v.BindEnv("database.path", "DATABASE_PATH")

	// Redis 配置
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.username", "REDIS_USERNAME")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// 认证配置
	v.BindEnv("auth.enabled", "AUTH_ENABLED")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.access_key_hash", "ACCESS_KEY_HASH")

	// 大模型配置
	v.BindEnv("llm.provider", "LLM_PROVIDER")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")

	// 对象存储
	v.BindEnv("storage.backend", "STORAGE_BACKEND")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("storage.s3.region", "S3_REGION")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.access_key_id", "S3_ACCESS_KEY_ID")
	v.BindEnv("storage.s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
}

// setDefaults 设置配置项的默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors", []string{"http://localhost:8501"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.database", "chat")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "chat.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.max_lifetime", 3600)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 100)
	v.SetDefault("redis.history_ttl", "10m")
	v.SetDefault("redis.plots_ttl", "1h")

	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.access_expire", "24h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.system_prompt", "You are a helpful assistant.")
	v.SetDefault("llm.request_timeout", "120s")
	v.SetDefault("llm.stream_idle_timeout", "60s")

	v.SetDefault("csv.max_iterations", 3)
	v.SetDefault("csv.sample_rows", 5)
	v.SetDefault("csv.max_upload_bytes", 200*1024*1024)
	v.SetDefault("csv.inline_max_bytes", 10*1024*1024)
	v.SetDefault("csv.inline_max_rows", 1000)

	v.SetDefault("image.max_bytes", 2*1024*1024)
	v.SetDefault("image.max_dimension", 2048)
	v.SetDefault("image.jpeg_quality", 85)

	v.SetDefault("storage.backend", "database")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.prefix", "session-files")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5)
	v.SetDefault("rate_limit.burst", 10)
}
