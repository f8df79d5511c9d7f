package config

import (
	"log"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Mpesa     MpesaConfig
	Admin     AdminConfig
	SMTP      SMTPConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig selects the transaction store. Driver is "mysql" or "mongo".
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// MpesaConfig holds the Daraja credentials. Env is "production", "sandbox" or "stub".
type MpesaConfig struct {
	Env            string
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	PartyB         string
	CallbackURL    string
	Timeout        time.Duration
}

type AdminConfig struct {
	Password     string
	PasswordHash string // bcrypt; takes precedence over Password
	Secret       string
	TokenExpiry  time.Duration
	CookieName   string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	NotifyTo string
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// Load reads configuration from the environment once at start-up. A .env file
// in the working directory is loaded first when present; real environment
// variables win over it.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[CONFIG] .env: %v", err)
	}
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 40*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DATABASE_DRIVER", "mysql"),
			DSN:             getEnv("DATABASE_DSN", "dovepay:dovepay@tcp(localhost:3306)/dovepay?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
		},
		Mongo: MongoConfig{
			URI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database:   getEnv("MONGO_DATABASE", "dovepay"),
			Collection: getEnv("MONGO_COLLECTION", "payments"),
		},
		Mpesa: MpesaConfig{
			Env:            getEnv("MPESA_ENV", "production"),
			BaseURL:        os.Getenv("MPESA_BASE_URL"),
			ConsumerKey:    os.Getenv("MPESA_CONSUMER_KEY"),
			ConsumerSecret: os.Getenv("MPESA_CONSUMER_SECRET"),
			Shortcode:      os.Getenv("MPESA_SHORTCODE"),
			Passkey:        os.Getenv("MPESA_PASSKEY"),
			PartyB:         os.Getenv("MPESA_PARTY_B"),
			CallbackURL:    os.Getenv("MPESA_CALLBACK_URL"),
			Timeout:        getDuration("MPESA_TIMEOUT", 30*time.Second),
		},
		Admin: AdminConfig{
			Password:     os.Getenv("ADMIN_PASSWORD"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			Secret:       os.Getenv("ADMIN_SECRET"),
			TokenExpiry:  getDuration("ADMIN_TOKEN_EXPIRY", 24*time.Hour),
			CookieName:   "admin_token",
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
			NotifyTo: os.Getenv("NOTIFY_EMAIL"),
		},
		RateLimit: RateLimitConfig{
			Limit:  getInt("RATE_LIMIT", 30),
			Window: getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

// IsProduction reports whether cookies should be marked Secure and gin run in release mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Missing lists the Daraja settings that are not set. The stub gateway needs none.
func (m *MpesaConfig) Missing() []string {
	if m.Env == "stub" {
		return nil
	}
	var missing []string
	for name, v := range map[string]string{
		"MPESA_CONSUMER_KEY":    m.ConsumerKey,
		"MPESA_CONSUMER_SECRET": m.ConsumerSecret,
		"MPESA_SHORTCODE":       m.Shortcode,
		"MPESA_PASSKEY":         m.Passkey,
		"MPESA_CALLBACK_URL":    m.CallbackURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG] %s=%q is not an integer, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG] %s=%q is not a duration, using %s", key, v, fallback)
		return fallback
	}
	return d
}
