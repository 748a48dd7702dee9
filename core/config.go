package core

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"notebooker/models"
)

// DispatchConfig 调度配置
// 默认值可被 dispatch.toml 与环境变量逐级覆盖
type DispatchConfig struct {
	BaseURL          string   `toml:"base_url"`
	Models           []string `toml:"models"`
	TimeoutSeconds   int      `toml:"timeout_seconds"`
	AttemptDelayMs   int      `toml:"attempt_delay_ms"`
	MaxTokensCeiling int      `toml:"max_tokens_ceiling"`
	Temperature      float64  `toml:"temperature"`
}

// DefaultDispatchConfig 内置默认配置（免费模型优先级列表）
func DefaultDispatchConfig() DispatchConfig {
	return DispatchConfig{
		BaseURL: "https://openrouter.ai/api/v1",
		Models: []string{
			"deepseek/deepseek-chat-v3.1:free",
			"openai/gpt-oss-20b:free",
			"openrouter/sonoma-dusk-alpha",
			"moonshotai/kimi-k2:free",
			"google/gemma-3n-e2b-it:free",
			"mistralai/mistral-small-3.2-24b-instruct:free",
		},
		TimeoutSeconds:   30,
		AttemptDelayMs:   1000,
		MaxTokensCeiling: 4000,
		Temperature:      0.7,
	}
}

// LoadDispatchConfig 加载调度配置
// 优先级：环境变量 > dispatch.toml > 内置默认
func LoadDispatchConfig(path string, logger *logrus.Logger) (DispatchConfig, error) {
	cfg := DefaultDispatchConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
			logger.Infof("Loaded dispatch config from %s (%d models)", path, len(cfg.Models))
		case os.IsNotExist(err):
			// 没有配置文件时静默使用默认值
		default:
			return cfg, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if v := os.Getenv("NOTEBOOKER_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("NOTEBOOKER_MODELS"); v != "" {
		cfg.Models = splitAndTrim(v)
	}

	if cfg.TimeoutSeconds <= 0 {
		return cfg, fmt.Errorf("timeout_seconds must be positive, got %d", cfg.TimeoutSeconds)
	}
	if cfg.MaxTokensCeiling <= 0 {
		return cfg, fmt.Errorf("max_tokens_ceiling must be positive, got %d", cfg.MaxTokensCeiling)
	}

	return cfg, nil
}

// Timeout 单次上游调用超时
func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AttemptDelay 两次尝试之间的固定间隔（尊重上游限流的刻意节流）
func (c DispatchConfig) AttemptDelay() time.Duration {
	return time.Duration(c.AttemptDelayMs) * time.Millisecond
}

// LoadCredentials 加载上游凭证
// 优先读环境变量 NOTEBOOKER_API_KEYS（逗号分隔）；否则从数据库读取
// 密文凭证并逐条解密。凭证绝不写进代码
func LoadCredentials(db *gorm.DB, sp SecretProvider, logger *logrus.Logger) []string {
	if v := os.Getenv("NOTEBOOKER_API_KEYS"); v != "" {
		keys := splitAndTrim(v)
		logger.Infof("Loaded %d credentials from environment", len(keys))
		return keys
	}

	var rows []models.APICredential
	if err := db.Find(&rows).Error; err != nil {
		logger.Errorf("Failed to load credentials from database: %v", err)
		return nil
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		plain, err := sp.Decrypt(row.KeyValue)
		if err != nil {
			logger.Errorf("Failed to decrypt credential %q: %v", row.Name, err)
			continue
		}
		keys = append(keys, plain)
	}
	logger.Infof("Loaded %d credentials from database", len(keys))
	return keys
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
