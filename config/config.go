package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/riven-blade/pricedash/pkg/binance"
	"github.com/riven-blade/pricedash/pkg/logger"
)

const (
	// 应用配置
	DefaultAppName  = "pricedash"
	DefaultLogLevel = "info"

	// 服务器配置
	DefaultServerHost = "0.0.0.0"
	DefaultServerPort = 8080

	DefaultShutdownTimeout = 10 * time.Second

	// 存储配置
	StorageTypeRedis  = "redis"
	StorageTypeMemory = "memory"

	// 配置文件路径的环境变量
	EnvConfigPath     = "PRICEDASH_CONFIG"
	DefaultConfigPath = "config.yaml"
)

// Config 核心配置
type Config struct {
	Name string `yaml:"name" json:"name"` // 服务名称

	Log     *logger.Config  `yaml:"log" json:"log"`
	Stream  *binance.Config `yaml:"stream" json:"stream"`
	Storage *StorageConfig  `yaml:"storage" json:"storage"`
	Server  *ServerConfig   `yaml:"server" json:"server"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`                         // 监听地址
	Port            int           `yaml:"port" json:"port"`                         // 监听端口
	Mode            string        `yaml:"mode" json:"mode"`                         // gin模式: debug, release, test
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"` // 优雅关闭等待时间
}

// StorageConfig 交易对列表的存储配置
type StorageConfig struct {
	Type  string       `yaml:"type" json:"type"` // redis 或 memory
	Redis *RedisConfig `yaml:"redis" json:"redis"`
}

// NewStorageConfig 默认使用Redis
func NewStorageConfig() *StorageConfig {
	return &StorageConfig{
		Type:  StorageTypeRedis,
		Redis: NewRedisConfig(),
	}
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Name:    DefaultAppName,
		Log:     &logger.Config{Level: DefaultLogLevel, Format: "console"},
		Stream:  binance.DefaultConfig(),
		Storage: NewStorageConfig(),

		Server: &ServerConfig{
			Host:            DefaultServerHost,
			Port:            DefaultServerPort,
			Mode:            "release",
			ShutdownTimeout: DefaultShutdownTimeout,
		},
	}
}

// Load 读取YAML配置文件. 文件不存在时返回默认配置
func Load(path string) (*Config, bool, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return cfg, false, cfg.Validate()
		}
		return nil, false, errors.Wrapf(err, "read config file %s", path)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, true, errors.Wrapf(err, "parse config file %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, true, errors.Wrapf(err, "validate config file %s", path)
	}
	return cfg, true, nil
}

// LoadFromEnv 从 PRICEDASH_CONFIG 指定的路径读取配置
func LoadFromEnv() (*Config, string, bool, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, found, err := Load(path)
	return cfg, path, found, err
}

// GetAddress 返回监听地址
func (c *Config) GetAddress() string {
	if c.Server == nil {
		return fmt.Sprintf(":%d", DefaultServerPort)
	}
	if c.Server.Host == "" || c.Server.Host == "0.0.0.0" {
		return fmt.Sprintf(":%d", c.Server.Port)
	}
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate 补齐缺省值并校验
func (c *Config) Validate() error {
	if c.Name == "" {
		c.Name = DefaultAppName
	}

	if c.Log == nil {
		c.Log = &logger.Config{Level: DefaultLogLevel}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}

	if c.Stream == nil {
		c.Stream = binance.DefaultConfig()
	}
	if err := c.Stream.Validate(); err != nil {
		return errors.Wrap(err, "stream")
	}

	if c.Storage == nil {
		c.Storage = NewStorageConfig()
	}
	switch c.Storage.Type {
	case "":
		c.Storage.Type = StorageTypeRedis
	case StorageTypeRedis, StorageTypeMemory:
	default:
		return errors.Newf("storage: unsupported type %q", c.Storage.Type)
	}
	if c.Storage.Redis == nil {
		c.Storage.Redis = NewRedisConfig()
	}
	if err := c.Storage.Redis.Validate(); err != nil {
		return errors.Wrap(err, "storage")
	}

	if c.Server == nil {
		c.Server = &ServerConfig{Host: DefaultServerHost, Port: DefaultServerPort}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = DefaultServerPort
	}
	switch c.Server.Mode {
	case "":
		c.Server.Mode = "release"
	case "debug", "release", "test":
	default:
		return errors.Newf("server: unsupported mode %q", c.Server.Mode)
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	return nil
}
