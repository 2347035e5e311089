package stream

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrEmptyEndpoint      = errors.New("endpoint is empty")
	ErrInvalidEndpoint    = errors.New("endpoint must be a ws:// or wss:// url")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrReconnectExhausted = errors.New("max reconnect attempts reached")
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota // 初始状态, 也是关闭后的状态
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed // 终止状态, 不再重连
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event 生命周期事件, 总是携带endpoint
type Event struct {
	Endpoint string
	ConnID   string
	Code     int   // 关闭码, 仅close事件有效
	Err      error // 仅error事件有效
}

// MessageHandler 接收原始消息
type MessageHandler func(payload []byte)

// EventHandler 处理open/error/close/failed事件
type EventHandler func(Event)

// Dialer 建立底层WebSocket连接, *websocket.Dialer 满足该接口
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config 重连策略配置
type Config struct {
	ReconnectInterval    time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`         // 固定间隔, 不做退避
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"` // 0 表示不限
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`           // 0 表示不限
}

const DefaultReconnectInterval = 5 * time.Second

// DefaultConfig returns the default reconnect policy.
func DefaultConfig() Config {
	return Config{
		ReconnectInterval: DefaultReconnectInterval,
	}
}

// IsNormalClose 1000 和 1005 视为正常关闭, 不会触发重连
func IsNormalClose(code int) bool {
	return code == websocket.CloseNormalClosure || code == websocket.CloseNoStatusReceived
}

// closeCode 从读错误中提取关闭码, 非关闭帧错误按1006处理
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return websocket.CloseAbnormalClosure
}
