package logger

import (
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FieldNameModule   = "module"
	FieldNameEndpoint = "endpoint"
	FieldNameConnID   = "conn_id"
)

var (
	_globalL atomic.Value // *zap.Logger
	_globalP atomic.Value // *ZapProperties
	_globalR atomic.Value // *utils.ReconfigurableRateLimiter
	_globalS atomic.Value // *zap.Logger, 跳过一层调用栈, 供包级函数使用
)

// ZapProperties 记录全局logger的底层组件
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

// Config 日志配置
type Config struct {
	Level  string      `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string      `yaml:"format" json:"format"` // json 或 console
	File   *FileConfig `yaml:"file" json:"file"`     // 为空时只输出到stderr
}

// FileConfig 日志文件滚动配置
type FileConfig struct {
	Filename   string `yaml:"filename" json:"filename"`
	MaxSize    int    `yaml:"max_size" json:"max_size"` // MB
	MaxAge     int    `yaml:"max_age" json:"max_age"`   // 天
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
}

func init() {
	l, p := newStdLogger()
	replaceGlobals(l, p)
	_globalR.Store(utils.NewRateLimiter(1.0, 60.0))
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	syncer := zapcore.Lock(os.Stderr)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig()), syncer, level)
	return zap.New(core, zap.AddCaller()), &ZapProperties{Core: core, Syncer: syncer, Level: level}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// Init 按配置重建全局logger
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
		return errors.Wrapf(err, "invalid log level %q", cfg.Level)
	}
	level := zap.NewAtomicLevelAt(lvl)

	var encoder zapcore.Encoder
	switch cfg.Format {
	case "", "console", "text":
		encoder = zapcore.NewConsoleEncoder(encoderConfig())
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig())
	default:
		return errors.Newf("unsupported log format %q", cfg.Format)
	}

	syncer := zapcore.Lock(os.Stderr)
	if cfg.File != nil && cfg.File.Filename != "" {
		syncer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxAge,
			MaxBackups: cfg.File.MaxBackups,
			LocalTime:  true,
		})
	}

	core := zapcore.NewCore(encoder, syncer, level)
	replaceGlobals(zap.New(core, zap.AddCaller()), &ZapProperties{Core: core, Syncer: syncer, Level: level})
	return nil
}

// ReplaceGlobals 替换全局logger, 测试中用于接入zaptest/observer
func ReplaceGlobals(l *zap.Logger, p *ZapProperties) {
	replaceGlobals(l, p)
}

func replaceGlobals(l *zap.Logger, p *ZapProperties) {
	_globalL.Store(l)
	_globalP.Store(p)
	_globalS.Store(l.WithOptions(zap.AddCallerSkip(1)))
}

// L returns the global Logger.
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// R returns the global rate limiter used by the Rated* functions.
func R() *utils.ReconfigurableRateLimiter {
	return _globalR.Load().(*utils.ReconfigurableRateLimiter)
}

// Sync flushes any buffered log entries.
func Sync() error {
	return L().Sync()
}

// skipL 返回包级日志函数使用的logger
func skipL() *zap.Logger {
	return _globalS.Load().(*zap.Logger)
}
