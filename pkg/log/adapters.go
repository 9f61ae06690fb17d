package log

import (
	"github.com/rs/zerolog"
)

// GocronLogger 把 gocron 的日志转发到 zerolog，实现 gocron.Logger 接口.
type GocronLogger struct {
	l zerolog.Logger
}

// NewGocronLogger 创建调度器日志适配器.
func NewGocronLogger() *GocronLogger {
	return &GocronLogger{l: Component("scheduler")}
}

func (g *GocronLogger) Debug(msg string, args ...any) { withArgs(g.l.Debug(), args).Msg(msg) }
func (g *GocronLogger) Error(msg string, args ...any) { withArgs(g.l.Error(), args).Msg(msg) }
func (g *GocronLogger) Info(msg string, args ...any)  { withArgs(g.l.Info(), args).Msg(msg) }
func (g *GocronLogger) Warn(msg string, args ...any)  { withArgs(g.l.Warn(), args).Msg(msg) }

// withArgs 按 key, value 成对展开 slog 风格参数.
func withArgs(e *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		e = e.Interface(key, args[i+1])
	}

	return e
}
