package logger

import (
	"context"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const loggerKey ctxKey = "requestLogger"

// Run builds the root sugared logger for the given level
// (debug|info|warn|error|fatal). Middleware derives per-request loggers
// from it and puts them into the request context.
func Run(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.Set(level); err != nil {
			log.Printf("logger: unknown level %q, falling back to info", level)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableCaller = true

	zapLogger, err := cfg.Build()
	if err != nil {
		log.Fatalln("logger: can't initialize zap:", err)
	}
	return zapLogger.Sugar()
}

func ToContext(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// Log returns the request-scoped logger, or a no-op one when the context
// never went through the logging middleware (tests, background code).
func Log(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(loggerKey).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return zap.NewNop().Sugar()
}
