// Package config 管理 CLI 客户端配置
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config CLI 配置结构
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	URL   string `mapstructure:"url"`    // HTTP API 地址
	WSURL string `mapstructure:"ws_url"` // WebSocket 地址
}

// AuthConfig 认证信息
type AuthConfig struct {
	Token string `mapstructure:"token"` // 网关签发的访问 Token
}

// SessionConfig 当前会话
type SessionConfig struct {
	Current string `mapstructure:"current"` // 当前使用的会话 ID
}

const defaultServerURL = "http://localhost:8000"

var (
	cfg        *Config
	v          *viper.Viper
	configPath string
)

// Init 初始化配置
// 配置文件位于 ~/.chat-gateway/config.yaml，不存在时自动创建
func Init() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("获取用户目录失败: %w", err)
	}
	return InitAt(filepath.Join(home, ".chat-gateway"))
}

// InitAt 使用指定目录初始化配置
func InitAt(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}
	configPath = filepath.Join(dir, "config.yaml")

	v = viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.url", defaultServerURL)
	v.SetDefault("server.ws_url", toWSURL(defaultServerURL))
	v.SetDefault("auth.token", "")
	v.SetDefault("session.current", "")

	// CHATCTL_SERVER_URL 之类的环境变量覆盖配置文件
	v.SetEnvPrefix("CHATCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !os.IsNotExist(err) {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("读取配置失败: %w", err)
			}
		}
		if err := v.WriteConfigAs(configPath); err != nil {
			return fmt.Errorf("写入默认配置失败: %w", err)
		}
	}

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("解析配置失败: %w", err)
	}
	return nil
}

// Get 获取配置
func Get() *Config {
	return cfg
}

// Path 配置文件路径
func Path() string {
	return configPath
}

// GetServerURL 获取服务器地址
func GetServerURL() string {
	if cfg == nil {
		return defaultServerURL
	}
	return cfg.Server.URL
}

// SetServerURL 设置服务器地址（仅本次运行生效）
func SetServerURL(url string) {
	url = strings.TrimRight(url, "/")
	if v != nil {
		v.Set("server.url", url)
		v.Set("server.ws_url", toWSURL(url))
	}
	if cfg != nil {
		cfg.Server.URL = url
		cfg.Server.WSURL = toWSURL(url)
	}
}

// GetToken 获取访问 Token
func GetToken() string {
	if cfg == nil {
		return ""
	}
	return cfg.Auth.Token
}

// SaveToken 保存访问 Token
func SaveToken(token string) error {
	if cfg != nil {
		cfg.Auth.Token = token
	}
	return set("auth.token", token)
}

// ClearToken 清除本地凭证
func ClearToken() error {
	return SaveToken("")
}

// IsLoggedIn 检查是否已登录
func IsLoggedIn() bool {
	return GetToken() != ""
}

// GetCurrentSession 获取当前会话 ID
func GetCurrentSession() string {
	if cfg == nil {
		return ""
	}
	return cfg.Session.Current
}

// SaveCurrentSession 保存当前会话 ID，传空字符串表示不使用会话
func SaveCurrentSession(sessionID string) error {
	if cfg != nil {
		cfg.Session.Current = sessionID
	}
	return set("session.current", sessionID)
}

func set(key string, value interface{}) error {
	if v == nil {
		return fmt.Errorf("配置未初始化")
	}
	v.Set(key, value)
	return v.WriteConfigAs(configPath)
}

// toWSURL http -> ws, https -> wss
func toWSURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}
