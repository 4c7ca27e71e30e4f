package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/duynhne/mc-profile-service/config"
)

const TraceIDHeader = "X-Trace-ID"
const TraceParentHeader = "traceparent"

// GetTraceID extracts trace-id from request headers or generates a new one
func GetTraceID(c *gin.Context) string {
	// W3C traceparent: version-trace_id-parent_id-flags
	if traceParent := c.GetHeader(TraceParentHeader); traceParent != "" {
		parts := strings.Split(traceParent, "-")
		if len(parts) >= 2 && parts[1] != "" {
			return parts[1]
		}
	}
	if traceID := c.GetHeader(TraceIDHeader); traceID != "" {
		return traceID
	}
	return generateTraceID()
}

func generateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// LoggingMiddleware stores a request-scoped logger carrying the trace-id in the
// gin context and logs one line per request. Probe and metrics paths are not logged.
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		traceID := GetTraceID(c)
		c.Set("trace_id", traceID)
		c.Set("logger", logger.With(zap.String("trace_id", traceID)))
		c.Header(TraceIDHeader, traceID)

		c.Next()

		if !shouldCollectMetrics(path) {
			return
		}

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("trace_id", traceID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if uid := c.GetString("user_id"); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}

		switch {
		case status >= 500:
			logger.Error("HTTP request", fields...)
		case status >= 400:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}

// GetLoggerFromGinContext retrieves logger from Gin context (set by LoggingMiddleware)
func GetLoggerFromGinContext(c *gin.Context) *zap.Logger {
	if v, ok := c.Get("logger"); ok {
		if l, ok := v.(*zap.Logger); ok {
			return l
		}
	}
	return zap.L()
}

// NewLogger creates a new zap logger with JSON encoder for production
func NewLogger() (*zap.Logger, error) {
	return NewLoggerFromConfig(config.LoggingConfig{Level: "info", Format: "json"})
}

// NewLoggerFromConfig builds the process logger from LOG_LEVEL and LOG_FORMAT.
// "console" selects the development encoder; anything else is JSON.
func NewLoggerFromConfig(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if strings.EqualFold(cfg.Format, "console") {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.EncoderConfig.TimeKey = "timestamp"
		zcfg.EncoderConfig.MessageKey = "message"
		zcfg.EncoderConfig.LevelKey = "level"
		zcfg.EncoderConfig.CallerKey = "caller"
	}
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zcfg.Build()
}
