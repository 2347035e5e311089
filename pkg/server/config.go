package server

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/riven-blade/pricedash/config"
)

// Config HTTP服务配置
type Config struct {
	Address string `json:"address"` // 监听地址
	Mode    string `json:"mode"`    // gin模式

	// 超时配置
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"` // 优雅关闭等待时间
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: config.DefaultShutdownTimeout,
	}
}

// FromAppConfig 由应用配置生成服务配置
func FromAppConfig(c *config.Config) *Config {
	cfg := DefaultConfig()
	cfg.Address = c.GetAddress()
	if c.Server != nil {
		if c.Server.Mode != "" {
			cfg.Mode = c.Server.Mode
		}
		if c.Server.ShutdownTimeout > 0 {
			cfg.ShutdownTimeout = c.Server.ShutdownTimeout
		}
	}
	return cfg
}

// SetDefaults 设置默认值
func (c *Config) SetDefaults() {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaults.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaults.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaults.IdleTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		return errors.Newf("invalid gin mode: %q", c.Mode)
	}
	return nil
}
