package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/zhouzirui/chatdesk/backend/internal/model/bot"
	"github.com/zhouzirui/chatdesk/backend/internal/service/formlog"
)

// BuildAPIKey can be injected at link time with
// -ldflags "-X github.com/zhouzirui/chatdesk/backend/internal/config.BuildAPIKey=...".
var BuildAPIKey string

const envPrefix = "CHATDESK_"

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig      `koanf:"server"`
	Logging LoggingConfig     `koanf:"logging"`
	Storage StorageConfig     `koanf:"storage"`
	AI      AIConfig          `koanf:"ai"`
	FormLog FormLogConfig     `koanf:"formlog"`
	Proxy   ProxyConfig       `koanf:"proxy"`
	Bot     bot.Configuration `koanf:"bot"`
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// LoggingConfig 控制 zerolog 输出。
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// StorageConfig 选择配置持久化后端。
type StorageConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	Path   string `koanf:"path"`
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	InjectedKey   string        `koanf:"api_key"`
	OpenAIBaseURL string        `koanf:"openai_base_url"`
	GeminiBaseURL string        `koanf:"gemini_base_url"`
	ArkBaseURL    string        `koanf:"ark_base_url"`
	ArkRegion     string        `koanf:"ark_region"`
	ArkAPIKey     string        `koanf:"ark_api_key"`
	Timeout       time.Duration `koanf:"timeout"`
}

// FormLogConfig 描述对话日志表单的投递方式。
type FormLogConfig struct {
	EndpointTemplate string        `koanf:"endpoint_template"`
	Timeout          time.Duration `koanf:"timeout"`
}

// ProxyConfig 描述服务端 Gemini 代理。
type ProxyConfig struct {
	Enabled bool   `koanf:"enabled"`
	APIKey  string `koanf:"api_key"`
	Model   string `koanf:"model"`
}

// Available 表示代理已开启且持有密钥。
func (c ProxyConfig) Available() bool {
	return c.Enabled && c.APIKey != ""
}

// Load 依次读取 config.yaml、CHATDESK_* 环境变量以及兼容的旧变量。
func Load() (*Config, error) {
	k := koanf.New(".")

	path := getEnvOrDefault("CHATDESK_CONFIG", "config.yaml")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := cfg.applyLegacyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.FormLog.EndpointTemplate != "" {
		if err := formlog.CheckEndpointTemplate(cfg.FormLog.EndpointTemplate); err != nil {
			return nil, fmt.Errorf("invalid formlog configuration: %w", err)
		}
	}

	if err := cfg.Bot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bot seed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyLegacyEnv() error {
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" || c.Server.Addr == "" {
		server, err := loadServerConfig(port)
		if err != nil {
			return err
		}
		c.Server = server
	}

	if c.AI.InjectedKey == "" {
		c.AI.InjectedKey = strings.TrimSpace(os.Getenv("API_KEY"))
	}
	if c.AI.InjectedKey == "" {
		c.AI.InjectedKey = strings.TrimSpace(BuildAPIKey)
	}
	if c.AI.ArkAPIKey == "" {
		c.AI.ArkAPIKey = strings.TrimSpace(os.Getenv("ARK_API_KEY"))
	}
	if c.Proxy.APIKey == "" {
		c.Proxy.APIKey = strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = "chatdesk.db"
	}
	if c.AI.ArkBaseURL == "" {
		c.AI.ArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}
	if c.AI.ArkRegion == "" {
		c.AI.ArkRegion = "cn-beijing"
	}
	if c.FormLog.Timeout <= 0 {
		c.FormLog.Timeout = 15 * time.Second
	}
	if c.Proxy.Model == "" {
		c.Proxy.Model = bot.DefaultModel(bot.ProviderGemini)
	}

	seed := bot.Seed()
	if c.Bot.Provider == "" {
		c.Bot.Provider = seed.Provider
		if c.Bot.ModelID == "" {
			c.Bot.ModelID = seed.ModelID
		}
	}
	if c.Bot.ModelID == "" {
		c.Bot.ModelID = bot.DefaultModel(c.Bot.Provider)
	}
	if c.Bot.DisplayName == "" {
		c.Bot.DisplayName = seed.DisplayName
	}
	if c.Bot.SystemPrompt == "" {
		c.Bot.SystemPrompt = seed.SystemPrompt
	}
	if c.Bot.ThemeID == "" {
		c.Bot.ThemeID = seed.ThemeID
	}
	if c.Bot.AvatarRef == "" {
		c.Bot.AvatarRef = seed.AvatarRef
	}
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(port string) (ServerConfig, error) {
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}
