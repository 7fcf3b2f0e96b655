// Package logger 提供进程全局的结构化日志入口，底层基于 zerolog。
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Sugared 包装 zerolog.Logger，提供 printf 风格的便捷方法，
// 供历史代码（如 bootstrap 包）在不直接依赖 zerolog API 的情况下记录日志。
type Sugared struct {
	zerolog.Logger
}

// Log 是进程范围内共享的日志入口，Init 之前使用控制台默认配置。
var Log = Sugared{Logger: newConsoleLogger(os.Stderr)}

func newConsoleLogger(w io.Writer) zerolog.Logger {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	return zerolog.New(cw).With().Timestamp().Logger()
}

// Init 根据配置的级别与格式重新配置全局日志入口。
// pretty=true 使用人类可读的控制台格式（开发环境），否则输出 JSON（生产环境）。
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if pretty {
		Log = Sugared{Logger: newConsoleLogger(os.Stderr)}
		return
	}
	Log = Sugared{Logger: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

// Warnf 以 printf 风格记录一条 warn 级别日志。
func (s Sugared) Warnf(format string, args ...interface{}) {
	s.Logger.Warn().Msgf(format, args...)
}

// Infof 以 printf 风格记录一条 info 级别日志。
func (s Sugared) Infof(format string, args ...interface{}) {
	s.Logger.Info().Msgf(format, args...)
}

// Errorf 以 printf 风格记录一条 error 级别日志。
func (s Sugared) Errorf(format string, args ...interface{}) {
	s.Logger.Error().Msgf(format, args...)
}

// Debugf 以 printf 风格记录一条 debug 级别日志。
func (s Sugared) Debugf(format string, args ...interface{}) {
	s.Logger.Debug().Msgf(format, args...)
}

// With 返回带有指定组件名标签的子日志入口。
func With(component string) zerolog.Logger {
	return Log.Logger.With().Str("component", component).Logger()
}
