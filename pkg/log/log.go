// Package log 提供全局 zerolog logger 与按组件划分的子 logger.
//
// 输出目标由 log 配置决定：stderr（console 或 json 格式），以及可选的 lumberjack 轮转文件.
// 第一次调用 Logger 时按当前配置初始化，之后不再变化.
package log

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/tagstore/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 按全局配置初始化 logger，可重复调用.
func Init() {
	initOnce.Do(func() {
		cfg := configs.GetConfig()
		logger = build(cfg.Log, cfg.Server.Debug)
		log.Logger = logger
	})
}

func build(cfg configs.LogConfig, debug bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stderr
	if cfg.Format != "json" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	}

	if cfg.File.Enabled {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}

	zc := zerolog.New(out).With().Timestamp()
	if debug {
		zc = zc.Caller()
	}

	return zc.Logger()
}

// Logger 返回全局 logger.
func Logger() *zerolog.Logger {
	Init()
	return &logger
}

// Component 返回带 component 字段的子 logger，例如 blob、collector、archive.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// GinWriter 把 gin 自身打印的文本行（路由表、调试警告）转成 zerolog 事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	for line := range strings.Lines(string(p)) {
		if line = strings.TrimSpace(line); line != "" {
			w.logger.WithLevel(w.level).Str("component", "gin").Msg(line)
		}
	}

	return len(p), nil
}
