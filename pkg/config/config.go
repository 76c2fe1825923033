package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	SiteName  string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Archive   ArchiveConfig
	Notary    NotaryConfig
	Snapshot  SnapshotConfig
	Schedule  ScheduleConfig
	Worker    WorkerConfig
	Policy    PolicyConfig
	Metadata  MetadataConfig
	LMS       LMSConfig
	Downloads DownloadConfig
	CORS      CORSConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// ArchiveConfig controls where bundles are published and how stale leftovers are swept.
type ArchiveConfig struct {
	Directory       string
	JanitorInterval time.Duration
	JanitorMaxAge   time.Duration
}

// NotaryConfig configures the RFC 3161 time stamping authority. An empty URL disables signing.
type NotaryConfig struct {
	URL         string
	Timeout     time.Duration
	Requester   string
	OpenSSLPath string
}

// SnapshotConfig configures the external backup command.
type SnapshotConfig struct {
	Command string
	WorkDir string
	Timeout time.Duration
}

// ScheduleConfig holds debounce delays per trigger reason.
type ScheduleConfig struct {
	WaitAfterAttempt time.Duration
	WaitAfterGrading time.Duration
	DedupGrace       time.Duration
}

// WorkerConfig sizes the archive worker pool and its dispatcher.
type WorkerConfig struct {
	Concurrency      int
	BufferSize       int
	DispatchInterval time.Duration
	DispatchBatch    int
	StaleAfter       time.Duration
}

// PolicyConfig lists assessment methods forcing archiving on or off.
type PolicyConfig struct {
	MethodsEnabled      bool
	MethodsArchive      []string
	MethodsDoNotArchive []string
}

// MetadataConfig configures the metadata document.
type MetadataConfig struct {
	ProfileFields []string
}

// LMSConfig describes how to read the learning platform tables.
type LMSConfig struct {
	TablePrefix string
}

// DownloadConfig signs bundle download links.
type DownloadConfig struct {
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// CORSConfig lists origins allowed to call the API from a browser. Empty allows all.
type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.SiteName = v.GetString("SITE_SHORT_NAME")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Archive = ArchiveConfig{
		Directory:       strings.TrimSpace(v.GetString("ARCHIVE_DIRECTORY")),
		JanitorInterval: parseDuration(v.GetString("ARCHIVE_JANITOR_INTERVAL"), time.Hour),
		JanitorMaxAge:   parseDuration(v.GetString("ARCHIVE_JANITOR_MAX_AGE"), 6*time.Hour),
	}

	cfg.Notary = NotaryConfig{
		URL:         strings.TrimSpace(v.GetString("NOTARY_URL")),
		Timeout:     parseDuration(v.GetString("NOTARY_TIMEOUT"), 20*time.Second),
		Requester:   strings.ToLower(v.GetString("NOTARY_REQUESTER")),
		OpenSSLPath: v.GetString("NOTARY_OPENSSL_PATH"),
	}

	cfg.Snapshot = SnapshotConfig{
		Command: v.GetString("SNAPSHOT_COMMAND"),
		WorkDir: v.GetString("SNAPSHOT_WORK_DIR"),
		Timeout: parseDuration(v.GetString("SNAPSHOT_TIMEOUT"), 2*time.Hour),
	}

	cfg.Schedule = ScheduleConfig{
		WaitAfterAttempt: parseDuration(v.GetString("WAIT_AFTER_ATTEMPT"), 12*time.Hour),
		WaitAfterGrading: parseDuration(v.GetString("WAIT_AFTER_GRADING"), 7*24*time.Hour),
		DedupGrace:       parseDuration(v.GetString("DEDUP_GRACE"), time.Hour),
	}

	cfg.Worker = WorkerConfig{
		Concurrency:      v.GetInt("ARCHIVE_WORKER_CONCURRENCY"),
		BufferSize:       v.GetInt("ARCHIVE_WORKER_BUFFER"),
		DispatchInterval: parseDuration(v.GetString("DISPATCH_INTERVAL"), 30*time.Second),
		DispatchBatch:    v.GetInt("DISPATCH_BATCH"),
		StaleAfter:       parseDuration(v.GetString("ARCHIVE_STALE_AFTER"), 3*time.Hour),
	}

	cfg.Policy = PolicyConfig{
		MethodsEnabled:      v.GetBool("ASSESSMENT_METHODS_ENABLED"),
		MethodsArchive:      splitAndTrim(v.GetString("METHODS_ARCHIVE")),
		MethodsDoNotArchive: splitAndTrim(v.GetString("METHODS_DONT_ARCHIVE")),
	}

	cfg.Metadata = MetadataConfig{
		ProfileFields: splitAndTrim(v.GetString("METADATA_PROFILE_FIELDS")),
	}

	cfg.LMS = LMSConfig{
		TablePrefix: v.GetString("LMS_TABLE_PREFIX"),
	}

	cfg.Downloads = DownloadConfig{
		SignedURLSecret: v.GetString("DOWNLOAD_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("DOWNLOAD_SIGNED_URL_TTL"), 30*time.Minute),
	}

	cfg.CORS = CORSConfig{
		AllowedOrigins: splitAndTrim(v.GetString("CORS_ALLOWED_ORIGINS")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("SITE_SHORT_NAME", "moodle")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "moodle")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ARCHIVE_DIRECTORY", "")
	v.SetDefault("ARCHIVE_JANITOR_INTERVAL", "1h")
	v.SetDefault("ARCHIVE_JANITOR_MAX_AGE", "6h")

	v.SetDefault("NOTARY_URL", "")
	v.SetDefault("NOTARY_TIMEOUT", "20s")
	v.SetDefault("NOTARY_REQUESTER", "native")
	v.SetDefault("NOTARY_OPENSSL_PATH", "openssl")

	v.SetDefault("SNAPSHOT_COMMAND", "")
	v.SetDefault("SNAPSHOT_WORK_DIR", "")
	v.SetDefault("SNAPSHOT_TIMEOUT", "2h")

	v.SetDefault("WAIT_AFTER_ATTEMPT", "12h")
	v.SetDefault("WAIT_AFTER_GRADING", "168h")
	v.SetDefault("DEDUP_GRACE", "1h")

	v.SetDefault("ARCHIVE_WORKER_CONCURRENCY", 4)
	v.SetDefault("ARCHIVE_WORKER_BUFFER", 16)
	v.SetDefault("DISPATCH_INTERVAL", "30s")
	v.SetDefault("DISPATCH_BATCH", 20)
	v.SetDefault("ARCHIVE_STALE_AFTER", "3h")

	v.SetDefault("ASSESSMENT_METHODS_ENABLED", false)
	v.SetDefault("METHODS_ARCHIVE", "")
	v.SetDefault("METHODS_DONT_ARCHIVE", "")
	v.SetDefault("METADATA_PROFILE_FIELDS", "")
	v.SetDefault("LMS_TABLE_PREFIX", "mdl_")

	v.SetDefault("DOWNLOAD_SIGNED_URL_SECRET", "dev_download_secret")
	v.SetDefault("DOWNLOAD_SIGNED_URL_TTL", "30m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
