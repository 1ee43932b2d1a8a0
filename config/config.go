package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"adveri/models"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

const (
	defaultSecretKey    = "your_secret_key"
	defaultJWTSecretKey = "your_jwt_secret_key"
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	From     string `json:"from"`
	FromName string `json:"from_name"`
}

type AdminConfig struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"-"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBDriver       string `json:"db_driver"` // postgres, sqlite
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBPath         string `json:"db_path"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	SecretKey    string        `json:"-"`
	JWTSecretKey string        `json:"-"`
	JWTExpiry    time.Duration `json:"jwt_expiry"`

	CacheType      string      `json:"cache_type"` // simple, redis
	Redis          RedisConfig `json:"redis"`
	LoginRateLimit int         `json:"login_rate_limit"`

	SMTP       SMTPConfig `json:"smtp"`
	NotifyHour int        `json:"notify_hour"`

	SentryDSN   string      `json:"-"`
	Admin       AdminConfig `json:"admin"`
	CORSOrigins []string    `json:"cors_origins"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", "postgres"),
		DBName:         getEnv("DB_NAME", "adveri"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBPath:         getEnv("DB_PATH", "adveri.db"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SecretKey:    getEnv("SECRET_KEY", defaultSecretKey),
		JWTSecretKey: getEnv("JWT_SECRET_KEY", defaultJWTSecretKey),
		JWTExpiry:    time.Duration(getEnvAsInt("JWT_EXPIRY_HOURS", 24)) * time.Hour,

		CacheType: strings.ToLower(getEnv("CACHE_TYPE", "simple")),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		LoginRateLimit: getEnvAsInt("LOGIN_RATE_LIMIT", 10),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvAsInt("SMTP_PORT", 1025),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("FROM_EMAIL", "no-reply@adveri.com"),
			FromName: getEnv("FROM_NAME", "AdVeri"),
		},
		NotifyHour: getEnvAsInt("NOTIFY_HOUR", 9),

		SentryDSN: getEnv("SENTRY_DSN", ""),
		Admin: AdminConfig{
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Email:    getEnv("ADMIN_EMAIL", "admin@adveri.com"),
			Password: getEnv("ADMIN_PASSWORD", "root"),
		},
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080")),
	}

	if err := AppConfig.validate(); err != nil {
		return err
	}

	logConfig()
	return nil
}

func (c Config) validate() error {
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.CacheType == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("CACHE_TYPE=redis requires REDIS_ENABLED=true")
	}
	if c.NotifyHour < 0 || c.NotifyHour > 23 {
		return fmt.Errorf("NOTIFY_HOUR must be between 0 and 23")
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY_HOURS must be positive")
	}
	if c.IsProduction() {
		if c.JWTSecretKey == defaultJWTSecretKey || c.SecretKey == defaultSecretKey {
			return fmt.Errorf("SECRET_KEY and JWT_SECRET_KEY must be set in production")
		}
		if c.Admin.Password == "root" {
			return fmt.Errorf("ADMIN_PASSWORD must be set in production")
		}
	}
	return nil
}

// Dialector picks the gorm driver for the configured database.
func (c Config) Dialector() gorm.Dialector {
	if c.DBDriver == "sqlite" {
		return sqlite.Open(c.DBPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	}
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost,
		c.DBPort,
		c.DBUser,
		c.DBPassword,
		c.DBName,
		c.DBSSLMode,
	)
	logrus.WithField("dsn", maskPassword(dsn)).Info("Using postgres connection string")
	return postgres.Open(dsn)
}

func ConnectDB() error {
	logrus.WithField("driver", AppConfig.DBDriver).Info("Attempting to connect to database...")

	gormLogLevel := logger.Warn
	if AppConfig.IsProduction() {
		gormLogLevel = logger.Error
	}

	var err error
	DB, err = gorm.Open(AppConfig.Dialector(), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("✅ Successfully connected to the database")
	logrus.Info("🔄 Starting database migration...")
	if err := MigrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("✅ Database migration completed")
	return nil
}

// MigrateDB creates or updates every table.
func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
	if err != nil {
		return fallback
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment": AppConfig.Environment,
		"server_port": AppConfig.ServerPort,
		"db_driver":   AppConfig.DBDriver,
		"database":    fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"cache_type":  AppConfig.CacheType,
		"redis":       AppConfig.Redis.Enabled,
		"smtp":        fmt.Sprintf("%s:%d", AppConfig.SMTP.Host, AppConfig.SMTP.Port),
		"sentry":      AppConfig.SentryDSN != "",
	}).Info("🔧 Loaded configuration")
}
