package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/orchard9/campaign-warehouse/internal/config"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys.
type contextKey string

const (
	APIKeyContextKey contextKey = "api_key"
	AuthHeaderName              = "X-API-Key"
	AuthQueryParam              = "api_key"
)

// NewLogger creates a new zap logger based on configuration.
func NewLogger(level, format string) (*zap.Logger, error) {
	var cfg zap.Config

	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

// RecoveryMiddleware recovers from panics.
type RecoveryMiddleware struct {
	logger *zap.Logger
}

func NewRecoveryMiddleware(logger *zap.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: logger}
}

func (rm *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				rm.logger.Error("panic recovered",
					zap.Any("error", err),
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("stack", string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs HTTP requests.
type LoggingMiddleware struct {
	logger *zap.Logger
}

type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func NewLoggingMiddleware(logger *zap.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: logger}
}

func (l *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Int("size", rw.size),
			zap.Duration("duration", duration),
			zap.String("remote_addr", r.RemoteAddr),
		}

		switch {
		case rw.status >= 500:
			l.logger.Error("request completed", fields...)
		case rw.status >= 400:
			l.logger.Warn("request completed", fields...)
		case r.URL.Path == "/health" || r.URL.Path == "/metrics":
			l.logger.Debug("request completed", fields...)
		default:
			l.logger.Info("request completed", fields...)
		}
	})
}

// AuthMiddleware validates API key authentication.
type AuthMiddleware struct {
	cfg    config.AuthConfig
	logger *zap.Logger
}

func NewAuthMiddleware(cfg config.AuthConfig, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{cfg: cfg, logger: logger}
}

func (a *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		if a.shouldSkip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(AuthHeaderName)
		if apiKey == "" {
			apiKey = r.URL.Query().Get(AuthQueryParam)
		}

		if apiKey == "" {
			a.unauthorized(w, "missing API key")
			return
		}

		if !a.validateKey(apiKey) {
			a.logger.Warn("invalid API key attempt",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			a.unauthorized(w, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), APIKeyContextKey, apiKey)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) shouldSkip(path string) bool {
	for _, skip := range a.cfg.SkipPaths {
		if strings.HasPrefix(path, skip) {
			return true
		}
	}
	return false
}

func (a *AuthMiddleware) validateKey(key string) bool {
	return subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.MasterKey)) == 1
}

func (a *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "ApiKey")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
