package obs

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	loggerMu sync.RWMutex
	logger   *zap.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *zap.Logger {
	loggerMu.RLock()
	l := logger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if logger == nil {
		logger, _ = NewLogger("production", "info")
		if logger == nil {
			logger = zap.NewNop()
		}
	}
	return logger
}

// SetLogger replaces the shared logger and returns a function restoring the previous one.
func SetLogger(l *zap.Logger) func() {
	loggerMu.Lock()
	prev := logger
	logger = l
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// NewLogger builds a JSON logger. Non-production environments get the
// development encoder config (caller info, stack traces on warn).
func NewLogger(env, level string) (*zap.Logger, error) {
	var cfg zap.Config
	if strings.EqualFold(env, "production") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	return cfg.Build(zap.Fields(zap.String("service", "arteng-api")))
}

// RequestEntry carries the fields of one access log line.
type RequestEntry struct {
	RequestID  string
	Method     string
	Path       string
	Query      map[string][]string
	Status     int
	DurationMS float64
	RemoteIP   string
	UserAgent  string
	UserID     string
}

// LogRequest emits a structured access log line with common HTTP fields.
func LogRequest(entry RequestEntry) {
	fields := []zap.Field{
		zap.String("request_id", entry.RequestID),
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.Status),
		zap.Float64("duration_ms", entry.DurationMS),
		zap.String("remote_ip", entry.RemoteIP),
		zap.String("user_agent", entry.UserAgent),
	}
	if entry.UserID != "" {
		fields = append(fields, zap.String("user_id", entry.UserID))
	}
	if len(entry.Query) > 0 {
		fields = append(fields, zap.Any("query", RedactQuery(entry.Query)))
	}
	Logger().Info("request_complete", fields...)
}

var (
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	cardPattern  = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
)

var sensitiveKeys = []string{"password", "secret", "token"}

// RedactQuery masks values of sensitive keys and scrubs emails and card
// numbers from the rest.
func RedactQuery(q map[string][]string) map[string][]string {
	out := make(map[string][]string, len(q))
	for k, values := range q {
		if isSensitiveKey(k) {
			out[k] = []string{"[REDACTED]"}
			continue
		}
		cleaned := make([]string, len(values))
		for i, v := range values {
			cleaned[i] = RedactString(v)
		}
		out[k] = cleaned
	}
	return out
}

// RedactString replaces emails and card-like numbers in s.
func RedactString(s string) string {
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	return cardPattern.ReplaceAllString(s, "[CARD]")
}

func isSensitiveKey(k string) bool {
	k = strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}
