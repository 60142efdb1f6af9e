package dagflow

import (
	"context"
	"log/slog"

	"github.com/deepnoodle-ai/dagflow/script"
)

type ContextKey string

const (
	LoggerContextKey   ContextKey = "logger"
	CompilerContextKey ContextKey = "compiler"
)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

func WithCompiler(ctx context.Context, compiler script.Compiler) context.Context {
	return context.WithValue(ctx, CompilerContextKey, compiler)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger)
	return logger, ok
}

func GetCompilerFromContext(ctx context.Context) (script.Compiler, bool) {
	compiler, ok := ctx.Value(CompilerContextKey).(script.Compiler)
	return compiler, ok
}
