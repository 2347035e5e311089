package config

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// RedisConfig Redis连接配置
type RedisConfig struct {
	Host              string        `yaml:"host" json:"host"`                             // 主机地址
	Port              int           `yaml:"port" json:"port"`                             // 端口
	Password          string        `yaml:"password" json:"password"`                     // 密码 (可选)
	Database          int           `yaml:"database" json:"database"`                     // 数据库编号 (0-15)
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`               // 最大重试次数
	PoolSize          int           `yaml:"pool_size" json:"pool_size"`                   // 连接池大小
	ConnectionTimeout time.Duration `yaml:"connection_timeout" json:"connection_timeout"` // 连接超时
	QueryTimeout      time.Duration `yaml:"query_timeout" json:"query_timeout"`           // 单次命令超时
}

// NewRedisConfig 创建默认Redis配置
func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:              "localhost",
		Port:              6379,
		Database:          0,
		MaxRetries:        3,
		PoolSize:          10,
		ConnectionTimeout: 5 * time.Second,
		QueryTimeout:      3 * time.Second,
	}
}

// Addr host:port
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate 补齐缺省值并校验
func (c *RedisConfig) Validate() error {
	def := NewRedisConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Newf("redis port out of range: %d", c.Port)
	}
	if c.Database < 0 || c.Database > 15 {
		return errors.Newf("redis database must be within 0-15: %d", c.Database)
	}
	if c.PoolSize <= 0 {
		c.PoolSize = def.PoolSize
	}
	if c.ConnectionTimeout <= 0 {
		c.ConnectionTimeout = def.ConnectionTimeout
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = def.QueryTimeout
	}
	return nil
}
