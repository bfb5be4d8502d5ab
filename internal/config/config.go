// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"camview/internal/constants"
)

type Config struct {
	Port     string `validate:"required,numeric"`
	Password string `validate:"required"`
	APIKey   string `validate:"required"`

	SessionDuration   time.Duration `validate:"gt=0"`
	LoginLimitWindow  time.Duration `validate:"gt=0"`
	LoginLimitMax     int           `validate:"gte=1"`
	UploadLimitWindow time.Duration `validate:"gt=0"`
	UploadLimitMax    int           `validate:"gte=1"`

	AlertTargets    []string
	AlertCooldown   time.Duration `validate:"gte=0"`
	GalleryCapacity int           `validate:"gte=1,lte=1000"`
	RotateDegrees   int           `validate:"oneof=0 90 180 270"`
	AIEnabled       bool
	ClassifyTimeout time.Duration `validate:"gt=0"`
	NotifyTimeout   time.Duration `validate:"gt=0"`
	MaxUploadBytes  int64         `validate:"gt=0"`

	GoogleCredentialsJSON string
	TelegramBotToken      string
	TelegramChatID        string `validate:"required_with=TelegramBotToken"`

	TrustedProxies []string `validate:"dive,cidr|ip"`
	AllowedOrigins []string `validate:"dive,url"`
	TLSCertFile    string   `validate:"required_with=TLSKeyFile"`
	TLSKeyFile     string   `validate:"required_with=TLSCertFile"`
	AuditLogPath   string

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=auto text json"`
	PublicURL string `validate:"omitempty,url"`
}

func (c *Config) Addr() string {
	return ":" + c.Port
}

func (c *Config) UseTLS() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Source resolves a single key. ok is false when the key is unset.
type Source func(key string) (value string, ok bool)

var validate = validator.New()

// Load reads .env (if present), then the YAML file at path (if non-empty),
// and resolves each key from the environment first, then the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file := map[string]string{}
	if path != "" {
		var err error
		file, err = readFile(path)
		if err != nil {
			return nil, err
		}
	}

	return Parse(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	})
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[strings.ToUpper(k)] = strings.Join(parts, ",")
		default:
			out[strings.ToUpper(k)] = fmt.Sprint(val)
		}
	}
	return out, nil
}

// Parse builds and validates a Config from src, filling built-in defaults.
func Parse(src Source) (*Config, error) {
	p := parser{src: src}

	cfg := &Config{
		Port:     p.str("PORT", constants.DefaultPort),
		Password: p.str("PASSWORD", ""),
		APIKey:   p.str("API_KEY", ""),

		SessionDuration:   p.duration("SESSION_DURATION", constants.SessionDuration),
		LoginLimitWindow:  p.duration("LOGIN_LIMIT_WINDOW", constants.LoginLimitWindow),
		LoginLimitMax:     p.int("LOGIN_LIMIT_MAX", constants.LoginLimitMax),
		UploadLimitWindow: p.duration("UPLOAD_LIMIT_WINDOW", constants.UploadLimitWindow),
		UploadLimitMax:    p.int("UPLOAD_LIMIT_MAX", constants.UploadLimitMax),

		AlertTargets:    p.list("ALERT_TARGETS", constants.DefaultAlertTargets),
		AlertCooldown:   p.duration("ALERT_COOLDOWN", constants.AlertCooldown),
		GalleryCapacity: p.int("GALLERY_CAPACITY", constants.GalleryCapacity),
		RotateDegrees:   normalizeRotation(p.int("ROTATE_DEGREES", 0)),
		AIEnabled:       p.bool("AI_ENABLED", true),
		ClassifyTimeout: p.duration("CLASSIFY_TIMEOUT", constants.ClassifyTimeout),
		NotifyTimeout:   p.duration("NOTIFY_TIMEOUT", constants.NotifyTimeout),
		MaxUploadBytes:  int64(p.int("MAX_UPLOAD_BYTES", constants.MaxUploadBytes)),

		GoogleCredentialsJSON: p.str("GOOGLE_CREDENTIALS_JSON", ""),
		TelegramBotToken:      p.str("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:        p.str("TELEGRAM_CHAT_ID", ""),

		TrustedProxies: p.list("TRUSTED_PROXIES", ""),
		AllowedOrigins: p.list("ALLOWED_ORIGINS", ""),
		TLSCertFile:    p.str("TLS_CERT_FILE", ""),
		TLSKeyFile:     p.str("TLS_KEY_FILE", ""),
		AuditLogPath:   p.str("AUDIT_LOG_PATH", ""),

		LogLevel:  strings.ToLower(p.str("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(p.str("LOG_FORMAT", "auto")),
		PublicURL: p.str("PUBLIC_URL", ""),
	}

	if err := errors.Join(p.errs...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func normalizeRotation(d int) int {
	return ((d % 360) + 360) % 360
}

type parser struct {
	src  Source
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.src(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) int(key string, def int) int {
	v, ok := p.src(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := p.src(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

// duration accepts a Go duration string or a bare integer of milliseconds.
func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.src(key)
	if !ok {
		return def
	}
	d, err := ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (p *parser) list(key, def string) []string {
	v, ok := p.src(key)
	if !ok {
		v = def
	}
	return SplitList(v)
}

func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// SplitList splits a comma-separated value, dropping empty items.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
