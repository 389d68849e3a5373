package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger 全域日誌實例，應用中其他地方可以直接使用
var Logger = log.Logger

// Config 日誌配置
type Config struct {
	Level        string `json:"level" yaml:"level"`                 // debug, info, warn, error
	Format       string `json:"format" yaml:"format"`               // json 或 pretty
	TimeFormat   string `json:"time_format" yaml:"time_format"`     // 時間戳格式
	ReportCaller bool   `json:"report_caller" yaml:"report_caller"` // 是否記錄呼叫位置
}

// Init 依配置初始化日誌系統
func Init(config Config) {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if config.Format == "pretty" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: config.TimeFormat,
			NoColor:    false,
		}
	}

	if config.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	contextLogger := zerolog.New(output).
		Level(level).
		With().
		Timestamp()

	if config.ReportCaller {
		contextLogger = contextLogger.Caller()
	}

	Logger = contextLogger.Logger()
	log.Logger = Logger
}

// Debug 開始一條除錯級別的日誌事件
func Debug() *zerolog.Event {
	return Logger.Debug()
}

// Info 開始一條資訊級別的日誌事件
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn 開始一條警告級別的日誌事件
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error 開始一條錯誤級別的日誌事件
func Error() *zerolog.Event {
	return Logger.Error()
}

// Fatal 開始一條致命級別的日誌事件，記錄後程式將退出
func Fatal() *zerolog.Event {
	return Logger.Fatal()
}

// Ctx 從上下文取得日誌記錄器（如果存在）
func Ctx(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// WithContext 將全域日誌記錄器放入上下文並返回新的上下文
func WithContext(ctx context.Context) context.Context {
	return Logger.WithContext(ctx)
}
