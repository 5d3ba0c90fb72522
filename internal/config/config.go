// ==============================================
// Configuration for the Venty negotiation service
// Loaded from the environment, no config files
// ==============================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"venty/internal/moderation"
	"venty/internal/violation"
)

const (
	defaultJWTSecret      = "your-secret-key"
	defaultAdminJWTSecret = "admin-secret-key"
)

// ==============================================
// Main Configuration Structure
// ==============================================

type Config struct {
	App         AppConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Negotiation NegotiationConfig
	Moderation  ModerationConfig
	Violations  ViolationConfig
	Security    SecurityConfig
	Admin       AdminConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Debug       bool
}

// ==============================================
// Server Configuration
// ==============================================

type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	MaxHeaderBytes int
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     bool
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// ==============================================
// Database Configuration
// ==============================================

type DatabaseConfig struct {
	// Driver is "mongo" or "memory".
	Driver  string
	MongoDB MongoConfig
	Redis   RedisConfig
}

type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	MaxConnIdleTime        time.Duration
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	HeartbeatInterval      time.Duration
}

type RedisConfig struct {
	// URL is empty when Redis is not used.
	URL string
}

// ==============================================
// Negotiation, Moderation and Violations
// ==============================================

type NegotiationConfig struct {
	MaxMessageLength int
	DisplayTimezone  string
	PageSize         int
	MaxPageSize      int
}

type ModerationConfig struct {
	BadWords         []string
	ExternalKeywords []string
	MaskToken        string
	RedactionToken   string
	PhonePattern     string
	EmailPattern     string
	URLPattern       string
}

type ViolationConfig struct {
	// Store is "redis", "mongo", "memory" or empty to follow the database setup.
	Store        string
	Scope        string
	SuspendAfter int
	Decay        time.Duration
}

// ==============================================
// Security and Admin
// ==============================================

type SecurityConfig struct {
	JWT       JWTConfig
	RateLimit RateLimitConfig
}

type JWTConfig struct {
	Secret          string
	ExpiryHour      int
	AdminSecret     string
	AdminExpiryHour int
}

type RateLimitConfig struct {
	Enabled      bool
	Requests     int
	Window       time.Duration
	ChatRequests int
	ChatWindow   time.Duration
}

type AdminConfig struct {
	Username string
	// PasswordHash is a bcrypt hash.
	PasswordHash string
}

// ==============================================
// Configuration Loading Functions
// ==============================================

func Load() *Config {
	return &Config{
		App:         loadAppConfig(),
		Server:      loadServerConfig(),
		Database:    loadDatabaseConfig(),
		Negotiation: loadNegotiationConfig(),
		Moderation:  loadModerationConfig(),
		Violations:  loadViolationConfig(),
		Security:    loadSecurityConfig(),
		Admin:       loadAdminConfig(),
	}
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Name:        getEnv("APP_NAME", "Venty Negotiation"),
		Version:     getEnv("APP_VERSION", "1.0.0"),
		Environment: getEnv("APP_ENV", "development"),
		Debug:       getEnvAsBool("DEBUG", false),
	}
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		HTTP: HTTPConfig{
			Port:           getEnv("PORT", getEnv("HTTP_PORT", "8080")),
			Host:           getEnv("HTTP_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsDuration("HTTP_READ_TIMEOUT", "30s"),
			WriteTimeout:   getEnvAsDuration("HTTP_WRITE_TIMEOUT", "30s"),
			IdleTimeout:    getEnvAsDuration("HTTP_IDLE_TIMEOUT", "60s"),
			RequestTimeout: getEnvAsDuration("HTTP_REQUEST_TIMEOUT", "10s"),
			MaxHeaderBytes: getEnvAsInt("HTTP_MAX_HEADER_BYTES", 1048576),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER", 1024),
			WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER", 1024),
			CheckOrigin:     getEnvAsBool("WS_CHECK_ORIGIN", true),
			PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", "54s"),
			PongWait:        getEnvAsDuration("WS_PONG_WAIT", "60s"),
			WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", "10s"),
			MaxMessageSize:  getEnvAsInt64("WS_MAX_MESSAGE_SIZE", 4096),
		},
		CORS: CORSConfig{
			AllowedOrigins:   getEnvAsSlice("CORS_ORIGINS", "http://localhost:3000"),
			AllowedMethods:   getEnvAsSlice("CORS_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders:   getEnvAsSlice("CORS_HEADERS", "Origin,Content-Type,Accept,Authorization,X-Requested-With"),
			AllowCredentials: getEnvAsBool("CORS_CREDENTIALS", true),
			MaxAge:           getEnvAsDuration("CORS_MAX_AGE", "12h"),
		},
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver: strings.ToLower(getEnv("STORE_DRIVER", "mongo")),
		MongoDB: MongoConfig{
			URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:               getEnv("MONGODB_DATABASE", "venty"),
			MaxPoolSize:            getEnvAsUint64("MONGODB_MAX_POOL_SIZE", 100),
			MinPoolSize:            getEnvAsUint64("MONGODB_MIN_POOL_SIZE", 5),
			MaxConnIdleTime:        getEnvAsDuration("MONGODB_MAX_IDLE_TIME", "30m"),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", "10s"),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", "5s"),
			HeartbeatInterval:      getEnvAsDuration("MONGODB_HEARTBEAT_INTERVAL", "10s"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
	}
}

func loadNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		MaxMessageLength: getEnvAsInt("MAX_MESSAGE_LENGTH", 2000),
		DisplayTimezone:  getEnv("DISPLAY_TIMEZONE", "Africa/Cairo"),
		PageSize:         getEnvAsInt("MESSAGES_PAGE_SIZE", 50),
		MaxPageSize:      getEnvAsInt("MESSAGES_MAX_PAGE_SIZE", 200),
	}
}

func loadModerationConfig() ModerationConfig {
	defaults := moderation.DefaultRules()
	return ModerationConfig{
		BadWords:         getEnvAsSliceOr("MODERATION_BAD_WORDS", defaults.BadWords),
		ExternalKeywords: getEnvAsSliceOr("MODERATION_EXTERNAL_KEYWORDS", defaults.ExternalKeywords),
		MaskToken:        getEnv("MODERATION_MASK_TOKEN", defaults.MaskToken),
		RedactionToken:   getEnv("MODERATION_REDACTION_TOKEN", defaults.RedactionToken),
		PhonePattern:     getEnv("MODERATION_PHONE_PATTERN", defaults.PhonePattern),
		EmailPattern:     getEnv("MODERATION_EMAIL_PATTERN", defaults.EmailPattern),
		URLPattern:       getEnv("MODERATION_URL_PATTERN", defaults.URLPattern),
	}
}

func loadViolationConfig() ViolationConfig {
	return ViolationConfig{
		Store:        strings.ToLower(getEnv("VIOLATION_STORE", "")),
		Scope:        strings.ToLower(getEnv("VIOLATION_SCOPE", string(violation.ScopeGlobal))),
		SuspendAfter: getEnvAsInt("VIOLATION_SUSPEND_AFTER", violation.DefaultSuspendAfter),
		Decay:        getEnvAsDuration("VIOLATION_DECAY", "0s"),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", defaultJWTSecret),
			ExpiryHour:      getEnvAsInt("JWT_EXPIRY_HOUR", 24),
			AdminSecret:     getEnv("ADMIN_JWT_SECRET", defaultAdminJWTSecret),
			AdminExpiryHour: getEnvAsInt("ADMIN_JWT_EXPIRY_HOUR", 8),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvAsBool("RATE_LIMIT_ENABLED", true),
			Requests:     getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:       getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),
			ChatRequests: getEnvAsInt("CHAT_RATE_LIMIT_REQUESTS", 30),
			ChatWindow:   getEnvAsDuration("CHAT_RATE_LIMIT_WINDOW", "1m"),
		},
	}
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Username:     getEnv("ADMIN_USERNAME", "admin"),
		PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}
}

// Rules converts the moderation settings into filter rules.
func (m ModerationConfig) Rules() moderation.Rules {
	return moderation.Rules{
		BadWords:         m.BadWords,
		ExternalKeywords: m.ExternalKeywords,
		MaskToken:        m.MaskToken,
		RedactionToken:   m.RedactionToken,
		PhonePattern:     m.PhonePattern,
		EmailPattern:     m.EmailPattern,
		URLPattern:       m.URLPattern,
	}
}

// CounterOptions converts the violation settings into counter options.
func (v ViolationConfig) CounterOptions() violation.Options {
	return violation.Options{
		Scope:        violation.Scope(v.Scope),
		SuspendAfter: int64(v.SuspendAfter),
		Decay:        v.Decay,
	}
}

// Location returns the display time zone, falling back to UTC.
func (n NegotiationConfig) Location() *time.Location {
	loc, err := time.LoadLocation(n.DisplayTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ==============================================
// Helper Functions
// ==============================================

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsSlice(key string, defaultValue string) []string {
	return splitList(getEnv(key, defaultValue))
}

// getEnvAsSliceOr is getEnvAsSlice with a list default.
func getEnvAsSliceOr(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return splitList(value)
	}
	return append([]string(nil), defaultValue...)
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ==============================================
// Configuration Validation
// ==============================================

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be mongo or memory, got %q", c.Database.Driver))
	}

	switch c.Violations.Store {
	case "", "memory", "mongo":
	case "redis":
		if c.Database.Redis.URL == "" {
			errs = append(errs, errors.New("VIOLATION_STORE=redis needs REDIS_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("VIOLATION_STORE must be redis, mongo or memory, got %q", c.Violations.Store))
	}
	if c.Violations.Store == "mongo" && c.Database.Driver != "mongo" {
		errs = append(errs, errors.New("VIOLATION_STORE=mongo needs STORE_DRIVER=mongo"))
	}

	if !violation.Scope(c.Violations.Scope).IsValid() {
		errs = append(errs, fmt.Errorf("VIOLATION_SCOPE must be global or channel, got %q", c.Violations.Scope))
	}
	if c.Violations.SuspendAfter < 1 {
		errs = append(errs, errors.New("VIOLATION_SUSPEND_AFTER must be at least 1"))
	}
	if c.Violations.Decay < 0 {
		errs = append(errs, errors.New("VIOLATION_DECAY must not be negative"))
	}

	if c.Negotiation.MaxMessageLength < 1 {
		errs = append(errs, errors.New("MAX_MESSAGE_LENGTH must be positive"))
	}
	if _, err := time.LoadLocation(c.Negotiation.DisplayTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE: %w", err))
	}
	if _, err := moderation.NewFilter(c.Moderation.Rules()); err != nil {
		errs = append(errs, fmt.Errorf("moderation rules: %w", err))
	}

	if c.App.Environment == "production" {
		if c.Security.JWT.Secret == defaultJWTSecret || c.Security.JWT.AdminSecret == defaultAdminJWTSecret {
			errs = append(errs, errors.New("JWT_SECRET and ADMIN_JWT_SECRET must be set in production"))
		}
		if c.Admin.PasswordHash == "" {
			errs = append(errs, errors.New("ADMIN_PASSWORD_HASH must be set in production"))
		}
	}

	return errors.Join(errs...)
}

// ==============================================
// Environment-specific Configuration
// ==============================================

func (c *Config) ApplyEnvironmentOverrides() {
	switch c.App.Environment {
	case "development":
		c.applyDevelopmentOverrides()
	case "staging":
		c.applyStagingOverrides()
	case "production":
		c.applyProductionOverrides()
	}
}

func (c *Config) applyDevelopmentOverrides() {
	c.App.Debug = true
	c.Server.CORS.AllowedOrigins = append(c.Server.CORS.AllowedOrigins, "http://localhost:3001")
}

func (c *Config) applyStagingOverrides() {
	c.Database.MongoDB.Database = c.Database.MongoDB.Database + "_staging"
}

func (c *Config) applyProductionOverrides() {
	c.App.Debug = false
	c.Server.WebSocket.CheckOrigin = true
}
