package security

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"camview/internal/constants"
)

// AuditLogger records security-relevant events. It caps its own output per
// minute so a flood of rejected requests cannot flood the log.
type AuditLogger struct {
	mu          sync.Mutex
	logger      *slog.Logger
	closer      io.Closer
	logCount    map[string]int
	windowStart time.Time
	maxPerMin   int
	now         func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:      logger.With("component", "audit"),
		logCount:    make(map[string]int),
		windowStart: time.Now(),
		maxPerMin:   constants.MaxAuditLogsPerMinute,
		now:         time.Now,
	}
}

// OpenAuditLog appends JSON audit lines to path. When path is empty or the
// disk is nearly full it falls back to fallback.
func OpenAuditLog(path string, fallback *slog.Logger) (*AuditLogger, error) {
	if path == "" {
		return NewAuditLogger(fallback), nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log dir: %w", err)
	}
	if !hasEnoughDiskSpace(dir) {
		slog.Warn("low disk space, audit events go to the main log", "dir", dir)
		return NewAuditLogger(fallback), nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	al := NewAuditLogger(slog.New(slog.NewJSONHandler(file, nil)))
	al.closer = file
	return al, nil
}

func (al *AuditLogger) log(eventType, severity, ip, details string, attrs ...any) {
	al.mu.Lock()
	now := al.now()
	if now.Sub(al.windowStart) > time.Minute {
		al.windowStart = now
		al.logCount = make(map[string]int)
	}

	total := 0
	for _, count := range al.logCount {
		total += count
	}
	if total >= al.maxPerMin {
		al.mu.Unlock()
		return
	}
	al.logCount[eventType]++
	al.mu.Unlock()

	level := slog.LevelInfo
	if severity == "warning" {
		level = slog.LevelWarn
	}
	args := append([]any{"event_type", eventType, "severity", severity, "ip", ip, "details", details}, attrs...)
	al.logger.Log(context.Background(), level, "audit", args...)
}

func (al *AuditLogger) LogAuthFailure(ip, reason string) {
	al.log("auth_failure", "warning", ip, reason)
}

func (al *AuditLogger) LogAuthSuccess(ip string) {
	al.log("auth_success", "info", ip, "Authentication successful")
}

func (al *AuditLogger) LogRateLimit(ip, bucket string) {
	al.log("rate_limit", "warning", ip, "Rate limit exceeded", "bucket", bucket)
}

func (al *AuditLogger) LogConnectionLimit(ip string) {
	al.log("connection_limit", "warning", ip, "Connection limit exceeded")
}

func (al *AuditLogger) LogInvalidUpload(ip, reason string) {
	al.log("invalid_upload", "warning", ip, reason)
}

func (al *AuditLogger) LogAlert(target string, score float64) {
	al.log("alert_fired", "info", "", fmt.Sprintf("%s detected", target), "score", score)
}

func (al *AuditLogger) Close() error {
	if al.closer != nil {
		return al.closer.Close()
	}
	return nil
}
