// Package logger 上下文日志：请求级 logger 随 context 传递。
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

type ctxKey struct{}

// Setup 按环境选择 handler：local 文本/debug，dev json/debug，prod json/info
func Setup(env string) *slog.Logger {
	return New(env, os.Stdout)
}

func New(env string, w io.Writer) *slog.Logger {
	switch env {
	case envDev:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Into 把 logger 放进 context
func Into(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From 取出 context 里的 logger，没有时返回 slog.Default()
func From(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
