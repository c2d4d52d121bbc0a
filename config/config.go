// Package config provides configuration management for the postboard application.
// It loads configuration values from environment variables, applies defaults for
// optional settings and validates everything in one pass, so a misconfigured
// deployment reports every problem at once instead of failing on the first one.
package config

import (
	"fmt"
	"net/url"
	// `os` package provides operating system functionalities, like reading environment variables.
	"os"
	"strconv"
	"strings"
	"time"

	// `go-multierror` accumulates independent validation failures into a single error value.
	"github.com/hashicorp/go-multierror"
)

// DBConfig holds the settings for the PostgreSQL connection pool.
// Either URL (from DATABASE_URL) or the individual parts must be provided.
type DBConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	MaxSize  int
}

// DSN returns a connection string usable by both pgx and golang-migrate.
func (c *DBConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	JWTSecret           string        // Secret key for signing JWTs
	JWTExpiresIn        time.Duration // Lifetime of access tokens
	BcryptCost          int           // bcrypt work factor for password hashes
	OTPExpiresIn        time.Duration // Lifetime of emailed one-time codes
	ResetTokenExpiresIn time.Duration // Lifetime of password reset tokens
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string
	Port           string
	Env            string
	AllowedOrigins []string
}

// Addr returns the listen address, e.g. "0.0.0.0:5000".
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// EmailConfig holds SMTP settings. Mail is only delivered when Host is set;
// otherwise messages are written to the log.
type EmailConfig struct {
	From     string
	User     string
	Password string
	Host     string
	Port     int
}

// Enabled reports whether an SMTP server is configured.
func (c *EmailConfig) Enabled() bool {
	return c.Host != ""
}

// UploadConfig selects where uploaded files are stored.
type UploadConfig struct {
	Dir        string // local directory, also served under /uploads
	S3Bucket   string // when set, files go to S3 instead of Dir
	S3Region   string
	S3Endpoint string // optional, for S3-compatible stores
	S3Prefix   string
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// SuperAdminConfig is the account seeded at startup when both fields are set.
type SuperAdminConfig struct {
	Email    string
	Password string
}

// AppConfig is the top-level configuration structure for the application.
type AppConfig struct {
	DB             *DBConfig
	Auth           *AuthConfig
	Server         *ServerConfig
	Email          *EmailConfig
	Upload         *UploadConfig
	Log            *LogConfig
	SuperAdmin     *SuperAdminConfig
	NATSURL        string
	MigrationsPath string
}

// loader reads environment variables and records every problem it finds.
type loader struct {
	errs *multierror.Error
}

func (l *loader) fail(format string, args ...any) {
	l.errs = multierror.Append(l.errs, fmt.Errorf(format, args...))
}

// requiredEnv returns the value of key, recording an error when it is unset or empty.
func (l *loader) requiredEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		l.fail("missing required environment variable: %s", key)
		return ""
	}
	return value
}

func (l *loader) optionalEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

// optionalEnvInt parses key as an integer. A malformed value is recorded and
// the default is used.
func (l *loader) optionalEnvInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		l.fail("invalid value for %s: expected integer, got '%s': %v", key, valueStr, err)
		return defaultValue
	}
	return valueInt
}

// optionalEnvDuration parses key as a duration. Besides Go durations ("15m",
// "1h30m") a whole number of days such as "7d" is accepted.
func (l *loader) optionalEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists || valueStr == "" {
		return defaultValue
	}
	d, err := ParseDuration(valueStr)
	if err != nil {
		l.fail("invalid value for %s: expected duration string, got '%s': %v", key, valueStr, err)
		return defaultValue
	}
	return d
}

// ParseDuration extends time.ParseDuration with a "d" (days) unit.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// poolSize validates DB_POOL_SIZE and clamps it between 5 and 100.
func (l *loader) poolSize(key string, defaultValue int) int {
	size := l.optionalEnvInt(key, defaultValue)
	if size < 5 {
		l.fail("pool size for %s (%d) is less than minimum 5", key, size)
		return 5
	}
	if size > 100 {
		l.fail("pool size for %s (%d) is greater than maximum 100", key, size)
		return 100
	}
	return size
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadConfig creates and returns an AppConfig by reading and validating environment variables.
// All problems are collected and returned together as a *multierror.Error.
func LoadConfig() (*AppConfig, error) {
	l := &loader{}

	// Database Configuration
	db := &DBConfig{
		URL:     l.optionalEnv("DATABASE_URL", ""),
		Host:    l.optionalEnv("DB_HOST", "localhost"),
		Port:    l.optionalEnvInt("DB_PORT", 5432),
		MaxSize: l.poolSize("DB_POOL_SIZE", 10),
	}
	if db.URL == "" {
		db.User = l.requiredEnv("DB_USER")
		db.Password = l.requiredEnv("DB_PASSWORD")
		db.DBName = l.requiredEnv("DB_NAME")
	}

	// Auth Configuration
	authConfig := &AuthConfig{
		JWTSecret:           l.requiredEnv("JWT_SECRET"),
		JWTExpiresIn:        l.optionalEnvDuration("JWT_EXPIRE_IN", 24*time.Hour),
		BcryptCost:          l.optionalEnvInt("BCRYPT_SALT_ROUNDS", 12),
		OTPExpiresIn:        l.optionalEnvDuration("OTP_EXPIRE_IN", time.Minute),
		ResetTokenExpiresIn: l.optionalEnvDuration("RESET_TOKEN_EXPIRE_IN", 5*time.Minute),
	}
	// bcrypt rejects costs outside [4, 31].
	if authConfig.BcryptCost < 4 || authConfig.BcryptCost > 31 {
		l.fail("BCRYPT_SALT_ROUNDS must be between 4 and 31, got %d", authConfig.BcryptCost)
	}

	serverConfig := &ServerConfig{
		Host:           l.optionalEnv("IP_ADDRESS", "0.0.0.0"),
		Port:           l.optionalEnv("PORT", "5000"),
		Env:            l.optionalEnv("APP_ENV", "development"),
		AllowedOrigins: splitCSV(l.optionalEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	emailConfig := &EmailConfig{
		From:     l.optionalEnv("EMAIL_FROM", ""),
		User:     l.optionalEnv("EMAIL_USER", ""),
		Password: l.optionalEnv("EMAIL_PASS", ""),
		Host:     l.optionalEnv("EMAIL_HOST", ""),
		Port:     l.optionalEnvInt("EMAIL_PORT", 587),
	}
	if emailConfig.Enabled() && emailConfig.From == "" {
		emailConfig.From = emailConfig.User
	}

	uploadConfig := &UploadConfig{
		Dir:        l.optionalEnv("UPLOAD_DIR", "uploads"),
		S3Bucket:   l.optionalEnv("UPLOAD_S3_BUCKET", ""),
		S3Region:   l.optionalEnv("UPLOAD_S3_REGION", "us-east-1"),
		S3Endpoint: l.optionalEnv("UPLOAD_S3_ENDPOINT", ""),
		S3Prefix:   l.optionalEnv("UPLOAD_S3_PREFIX", ""),
	}

	logConfig := &LogConfig{
		Level:  l.optionalEnv("LOG_LEVEL", "info"),
		Format: l.optionalEnv("LOG_FORMAT", "text"),
	}
	if logConfig.Format != "text" && logConfig.Format != "json" {
		l.fail("LOG_FORMAT must be \"text\" or \"json\", got %q", logConfig.Format)
	}

	superAdmin := &SuperAdminConfig{
		Email:    l.optionalEnv("SUPER_ADMIN_EMAIL", ""),
		Password: l.optionalEnv("SUPER_ADMIN_PASSWORD", ""),
	}

	if err := l.errs.ErrorOrNil(); err != nil {
		return nil, err
	}

	return &AppConfig{
		DB:             db,
		Auth:           authConfig,
		Server:         serverConfig,
		Email:          emailConfig,
		Upload:         uploadConfig,
		Log:            logConfig,
		SuperAdmin:     superAdmin,
		NATSURL:        l.optionalEnv("NATS_URL", ""),
		MigrationsPath: l.optionalEnv("MIGRATIONS_PATH", "./migrations"),
	}, nil
}
