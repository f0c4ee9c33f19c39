package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config quarters-data（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Letters LetterConfig `yaml:"letters"`
	Import  ImportConfig `yaml:"import"`
}

// LetterConfig 分配函下发配置：approval letters are pushed to an external
// dispatch endpoint when WebhookURL is set. Empty URL disables dispatch.
type LetterConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	AuthToken  string `yaml:"auth_token"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ImportConfig 批量导入配置
type ImportConfig struct {
	MaxRows    int `yaml:"max_rows"`    // 单次导入最大行数
	TimeoutSec int `yaml:"timeout_sec"` // 导入事务超时（秒）
}

// Load builds the config from environment variables, then applies the YAML
// overlay named by CONFIG_FILE (if any). Env sets the defaults; the file wins.
func Load() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "quarters")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Letters.WebhookURL = getEnv("LETTER_WEBHOOK_URL", "")
	cfg.Letters.AuthToken = getEnv("LETTER_AUTH_TOKEN", "")
	cfg.Letters.TimeoutSec = parseInt(getEnv("LETTER_TIMEOUT_SEC", "10"), 10)

	cfg.Import.MaxRows = parseInt(getEnv("IMPORT_MAX_ROWS", "2000"), 2000)
	cfg.Import.TimeoutSec = parseInt(getEnv("IMPORT_TIMEOUT_SEC", "300"), 300)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		// Overlay errors are non-fatal: a bad file falls back to env values.
		_ = cfg.applyFile(path)
	}
	return cfg
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
