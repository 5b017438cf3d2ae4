package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken    string
	BotUsername string

	// Payments
	DepositAddress    string
	RequiredPayment   float64
	CommissionPercent float64

	// HTTP
	Port       int
	PublicURL  string
	WebsiteURL string

	// Auth
	JWTSecret     string
	AuthTokenTTL  time.Duration
	SweepInterval time.Duration

	// Database
	DBPath string

	// Admin
	AdminIDs map[int64]bool
}

func Load() *Config {
	cfg := &Config{
		// Telegram
		BotToken:    getEnv("BOT_TOKEN", ""),
		BotUsername: getEnv("BOT_USERNAME", "sol_gate_bot"),

		// Payments
		DepositAddress:    getEnv("DEPOSIT_ADDRESS", ""),
		RequiredPayment:   getEnvFloat("REQUIRED_PAYMENT", 0.5),
		CommissionPercent: getEnvFloat("COMMISSION_PERCENTAGE", 10.0),

		// HTTP
		Port:       getEnvInt("PORT", 8080),
		PublicURL:  strings.TrimSuffix(getEnv("PUBLIC_URL", ""), "/"),
		WebsiteURL: strings.TrimSuffix(getEnv("WEBSITE_URL", ""), "/"),

		// Auth
		JWTSecret:     getEnv("JWT_SECRET", ""),
		AuthTokenTTL:  time.Duration(getEnvInt("AUTH_TOKEN_EXPIRY_MINUTES", 15)) * time.Minute,
		SweepInterval: time.Duration(getEnvInt("TOKEN_SWEEP_MINUTES", 30)) * time.Minute,

		// Database
		DBPath: getEnv("DB_PATH", "./solgate.db"),
	}

	// Parse admin user IDs
	cfg.AdminIDs = make(map[int64]bool)
	for _, idStr := range strings.Split(getEnv("ADMIN_IDS", ""), ",") {
		idStr = strings.TrimSpace(idStr)
		if id, err := strconv.ParseInt(idStr, 10, 64); err == nil {
			cfg.AdminIDs[id] = true
		}
	}

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
