package config

import (
	"os"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTAccessExpiry  time.Duration
	JWTRefreshExpiry time.Duration

	// Google Play
	PlayPackageName  string
	PlayAPIBaseURL   string
	PlayAPIToken     string
	PlayAPITimeout   time.Duration
	PlayWebhookToken string

	// Quota
	ProductCatalogPath  string
	ReservationTTL      time.Duration
	StrictVerifyTimeout time.Duration

	// Admin
	AdminEmails  string
	AdminUserIDs string
	AdminToken   string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "kotonoiro"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTAccessExpiry:  parseDuration(getEnv("JWT_ACCESS_EXPIRY", "15m"), 15*time.Minute),
		JWTRefreshExpiry: parseDuration(getEnv("JWT_REFRESH_EXPIRY", "168h"), 168*time.Hour),

		PlayPackageName:  getEnv("PLAY_PACKAGE_NAME", "com.hourglass.Kotonoiro"),
		PlayAPIBaseURL:   getEnv("PLAY_API_BASE_URL", "https://androidpublisher.googleapis.com"),
		PlayAPIToken:     getEnv("PLAY_API_TOKEN", ""),
		PlayAPITimeout:   parseDuration(getEnv("PLAY_API_TIMEOUT", "10s"), 10*time.Second),
		PlayWebhookToken: getEnv("PLAY_WEBHOOK_TOKEN", ""),

		ProductCatalogPath:  getEnv("PRODUCT_CATALOG_PATH", ""),
		ReservationTTL:      parseDuration(getEnv("RESERVATION_TTL", "1h"), time.Hour),
		StrictVerifyTimeout: parseDuration(getEnv("STRICT_VERIFY_TIMEOUT", "10s"), 10*time.Second),

		AdminEmails:  getEnv("ADMIN_EMAILS", ""),
		AdminUserIDs: getEnv("ADMIN_USER_IDS", ""),
		AdminToken:   getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
