package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Reply contracts understood by the agent query endpoint.
const (
	ReplyContractJSON = "json"
	ReplyContractText = "text"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Agent   AgentConfig
	Auth    AuthConfig
	Catalog CatalogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port      string `env:"PORT" envDefault:"8080"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	Addr      string `env:"-"`
	// SessionGrace 为事件流断开后会话保留的时长，便于浏览器重连。
	SessionGrace time.Duration `env:"CHAT_SESSION_GRACE" envDefault:"30s"`
}

// AgentConfig 描述远端分析代理（查询与转写）的访问方式。
type AgentConfig struct {
	QueryURL      string        `env:"AGENT_QUERY_URL" envDefault:"http://127.0.0.1:5000/agentsql"`
	TranscribeURL string        `env:"AGENT_TRANSCRIBE_URL" envDefault:"http://127.0.0.1:5000/transcribe"`
	AssetBaseURL  string        `env:"AGENT_ASSET_BASE_URL"`
	ReplyContract string        `env:"AGENT_REPLY_CONTRACT" envDefault:"json"`
	Timeout       time.Duration `env:"AGENT_TIMEOUT" envDefault:"120s"`
	MaxClipBytes  int64         `env:"AGENT_MAX_CLIP_BYTES" envDefault:"33554432"`
}

// ProviderConfig 描述一个 OAuth2 身份提供方的凭证。
type ProviderConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	TenantID     string `env:"TENANT_ID"`
}

// Enabled 表示是否提供了必需的凭证。
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// AuthConfig 描述登录相关配置。
type AuthConfig struct {
	Google       ProviderConfig `envPrefix:"GOOGLE_"`
	AzureAD      ProviderConfig `envPrefix:"AZURE_AD_"`
	SessionTTL   time.Duration  `env:"AUTH_SESSION_TTL" envDefault:"24h"`
	CookieSecure bool           `env:"AUTH_COOKIE_SECURE" envDefault:"false"`
	DevEmail     string         `env:"AUTH_DEV_EMAIL"`
	DevName      string         `env:"AUTH_DEV_NAME"`
}

// CatalogConfig 描述分析模型目录文件。
type CatalogConfig struct {
	Path  string `env:"MODEL_CATALOG_PATH"`
	Watch bool   `env:"MODEL_CATALOG_WATCH" envDefault:"true"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return parse(env.Options{Environment: environ()})
}

// LoadFrom 从给定的键值集合加载配置，主要用于测试。
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Agent.validate(); err != nil {
		return nil, err
	}
	if err := cfg.Auth.validate(); err != nil {
		return nil, err
	}

	if cfg.Server.SessionGrace < 0 {
		return nil, fmt.Errorf("invalid CHAT_SESSION_GRACE value %s", cfg.Server.SessionGrace)
	}

	cfg.Server.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.Server.PublicURL), "/")
	if _, err := url.ParseRequestURI(cfg.Server.PublicURL); err != nil {
		return nil, fmt.Errorf("invalid PUBLIC_URL value %q: %w", cfg.Server.PublicURL, err)
	}

	return &cfg, nil
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func (c *AgentConfig) validate() error {
	for key, raw := range map[string]string{
		"AGENT_QUERY_URL":      c.QueryURL,
		"AGENT_TRANSCRIBE_URL": c.TranscribeURL,
	} {
		if _, err := url.ParseRequestURI(strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
		}
	}

	if c.AssetBaseURL != "" {
		if _, err := url.ParseRequestURI(c.AssetBaseURL); err != nil {
			return fmt.Errorf("invalid AGENT_ASSET_BASE_URL value %q: %w", c.AssetBaseURL, err)
		}
	}

	c.ReplyContract = strings.ToLower(strings.TrimSpace(c.ReplyContract))
	switch c.ReplyContract {
	case ReplyContractJSON, ReplyContractText:
	default:
		return fmt.Errorf("invalid AGENT_REPLY_CONTRACT value %q: want %q or %q", c.ReplyContract, ReplyContractJSON, ReplyContractText)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("invalid AGENT_TIMEOUT value %s", c.Timeout)
	}
	if c.MaxClipBytes <= 0 {
		return fmt.Errorf("invalid AGENT_MAX_CLIP_BYTES value %d", c.MaxClipBytes)
	}
	return nil
}

func (c *AuthConfig) validate() error {
	if c.AzureAD.Enabled() && c.AzureAD.TenantID == "" {
		return fmt.Errorf("AZURE_AD_TENANT_ID is required when Azure AD sign-in is configured")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid AUTH_SESSION_TTL value %s", c.SessionTTL)
	}
	return nil
}

// AnyProvider 表示是否至少配置了一种登录方式。
func (c AuthConfig) AnyProvider() bool {
	return c.Google.Enabled() || c.AzureAD.Enabled() || c.DevEmail != ""
}

func environ() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			vars[key] = value
		}
	}
	return vars
}
