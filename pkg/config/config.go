package config

import (
	"log"
	"os"
)

type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	FromNumber        string
	StatusCallbackURL string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

type APIConfig struct {
	Port          string
	DBDSN         string
	RMQURL        string
	EmailQueue    string
	MigrationsDir string
	Twilio        TwilioConfig
}

type WorkerConfig struct {
	RMQURL     string
	EmailQueue string
	SMTP       SMTPConfig
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("required env %s is not set", k)
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			log.Fatalf("env %s must be an integer, got %q", k, v)
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// MustLoadAPI reads the api configuration from the environment and exits
// on missing required values. The returned value is not shared or mutated
// afterwards; components receive it (or sub-structs) at construction.
func MustLoadAPI() APIConfig {
	return APIConfig{
		Port:          getenv("PORT", "8080"),
		DBDSN:         mustEnv("DB_DSN"),
		RMQURL:        mustEnv("RMQ_URL"),
		EmailQueue:    getenv("EMAIL_QUEUE", "email_jobs"),
		MigrationsDir: getenv("MIGRATIONS_DIR", "migrations"),
		Twilio: TwilioConfig{
			AccountSID:        mustEnv("TWILIO_ACCOUNT_SID"),
			AuthToken:         mustEnv("TWILIO_AUTH_TOKEN"),
			FromNumber:        mustEnv("TWILIO_PHONE_NUMBER"),
			StatusCallbackURL: getenv("TWILIO_STATUS_CALLBACK_URL", ""),
		},
	}
}

func MustLoadWorker() WorkerConfig {
	return WorkerConfig{
		RMQURL:     mustEnv("RMQ_URL"),
		EmailQueue: getenv("EMAIL_QUEUE", "email_jobs"),
		SMTP: SMTPConfig{
			Host:     mustEnv("SMTP_HOST"),
			Port:     getenvInt("SMTP_PORT", 587),
			User:     getenv("SMTP_USER", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     mustEnv("EMAIL_FROM"),
		},
	}
}
