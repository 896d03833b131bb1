package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// Wallet pass identity.
	PassTypeIdentifier string
	TeamIdentifier     string
	OrganizationName   string

	// APNs auth key (ES256). Either inline PEM or a file path.
	APNSKeyID      string
	APNSKeyPEM     string
	APNSKeyPath    string
	APNSProduction bool

	// Loyalty policy.
	RewardTarget  int
	StampCooldown time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "kawhe"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: environment,
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "kawhe"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 600),

		PassTypeIdentifier: getenv("PASS_TYPE_IDENTIFIER", "pass.nz.kawhe.loyalty"),
		TeamIdentifier:     strings.TrimSpace(getenv("APPLE_TEAM_ID", "")),
		OrganizationName:   getenv("PASS_ORGANIZATION_NAME", "Kawhe"),

		APNSKeyID:      strings.TrimSpace(getenv("APNS_KEY_ID", "")),
		APNSKeyPEM:     getenv("APNS_KEY_PEM", ""),
		APNSKeyPath:    strings.TrimSpace(getenv("APNS_KEY_PATH", "")),
		APNSProduction: getenvBool("APNS_PRODUCTION", environment == "production"),

		RewardTarget:  getenvInt("LOYALTY_REWARD_TARGET", 10),
		StampCooldown: time.Duration(getenvInt("LOYALTY_STAMP_COOLDOWN_SECONDS", 30)) * time.Second,
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}
