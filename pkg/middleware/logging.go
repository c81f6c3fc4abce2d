package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tathya/pkg/logger"
)

type traceKey string

const traceIdKey traceKey = "traceId"

type Logging struct {
	log *zap.SugaredLogger
}

func NewLoggingMiddleware(l *zap.SugaredLogger) *Logging {
	return &Logging{log: l}
}

// SetupTracing assigns every request a trace id so all log lines of one
// request can be grepped together.
func (lm *Logging) SetupTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), traceIdKey, uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetupLogging derives the request-scoped logger and stores it in the
// context for logger.Log(ctx) callers down the stack.
func (lm *Logging) SetupLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceId, _ := r.Context().Value(traceIdKey).(string)
		reqLogger := lm.log.With(
			"traceId", traceId,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx := logger.ToContext(r.Context(), reqLogger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (lm *Logging) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Log(r.Context()).Infow("request handled",
			"remote", r.RemoteAddr,
			"took", time.Since(start),
		)
	})
}
