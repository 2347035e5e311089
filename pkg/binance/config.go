package binance

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/riven-blade/pricedash/pkg/stream"
)

const (
	DefaultBaseURL              = "wss://stream.binance.com:9443/ws/"
	DefaultCombinedBaseURL      = "wss://stream.binance.com:9443/stream?streams="
	DefaultReconnectInterval    = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
)

// Config 行情流配置
type Config struct {
	BaseURL              string        `yaml:"base_url" json:"base_url"`                             // 单流endpoint前缀
	CombinedBaseURL      string        `yaml:"combined_base_url" json:"combined_base_url"`           // 组合流endpoint前缀
	ReconnectInterval    time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`         // 固定重连间隔
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"` // 连续重连上限
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`           // 0 表示不限
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		BaseURL:              DefaultBaseURL,
		CombinedBaseURL:      DefaultCombinedBaseURL,
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// Validate 补齐缺省值并校验
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.CombinedBaseURL == "" {
		c.CombinedBaseURL = DefaultCombinedBaseURL
	}
	if !strings.HasPrefix(c.BaseURL, "ws://") && !strings.HasPrefix(c.BaseURL, "wss://") {
		return errors.Newf("base_url must be a websocket url: %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.CombinedBaseURL, "ws://") && !strings.HasPrefix(c.CombinedBaseURL, "wss://") {
		return errors.Newf("combined_base_url must be a websocket url: %q", c.CombinedBaseURL)
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = DefaultReconnectInterval
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.Newf("max_reconnect_attempts cannot be negative: %d", c.MaxReconnectAttempts)
	}
	if c.HandshakeTimeout < 0 {
		return errors.Newf("handshake_timeout cannot be negative: %s", c.HandshakeTimeout)
	}
	return nil
}

// StreamConfig 转换为单连接的重连配置
func (c *Config) StreamConfig() stream.Config {
	return stream.Config{
		ReconnectInterval:    c.ReconnectInterval,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		HandshakeTimeout:     c.HandshakeTimeout,
	}
}
