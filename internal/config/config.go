// Package config loads process settings from the environment (optionally
// seeded from a .env file).
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Addr     string
	AppEnv   string
	LogLevel string

	DatabaseDSN   string
	MigrateOnBoot bool

	JWTSecret     string
	JWTTTL        time.Duration
	ResetTokenTTL time.Duration
	OTPTTL        time.Duration

	RedisAddr         string
	WorkerConcurrency int

	FrontendURL string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	CloudinaryURL  string
	UploadTimeout  time.Duration
	MaxUploadBytes int64

	EnvFileLoaded bool
}

func (c *Config) IsDevelopment() bool { return c.AppEnv == "development" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("db_dsn", "")
	v.SetDefault("migrate_on_boot", false)
	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_ttl", 7*24*time.Hour)
	v.SetDefault("reset_token_ttl", time.Hour)
	v.SetDefault("otp_ttl", 10*time.Minute)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("worker_concurrency", 10)
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("smtp_host", "")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("smtp_username", "")
	v.SetDefault("smtp_password", "")
	v.SetDefault("mail_from", "DesignGuard <no-reply@designguard.local>")
	v.SetDefault("cloudinary_url", "")
	v.SetDefault("upload_timeout", 15*time.Second)
	v.SetDefault("max_upload_bytes", int64(5<<20))
}

// Load reads .env (if present) and the environment. It fails only when a
// required key is missing; EnvFileLoaded reports whether .env was read.
func Load() (*Config, error) {
	envLoaded := godotenv.Load() == nil

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	cfg.EnvFileLoaded = envLoaded
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Addr:              v.GetString("addr"),
		AppEnv:            v.GetString("app_env"),
		LogLevel:          v.GetString("log_level"),
		DatabaseDSN:       v.GetString("db_dsn"),
		MigrateOnBoot:     v.GetBool("migrate_on_boot"),
		JWTSecret:         v.GetString("jwt_secret"),
		JWTTTL:            v.GetDuration("jwt_ttl"),
		ResetTokenTTL:     v.GetDuration("reset_token_ttl"),
		OTPTTL:            v.GetDuration("otp_ttl"),
		RedisAddr:         v.GetString("redis_addr"),
		WorkerConcurrency: v.GetInt("worker_concurrency"),
		FrontendURL:       strings.TrimRight(v.GetString("frontend_url"), "/"),
		SMTPHost:          v.GetString("smtp_host"),
		SMTPPort:          v.GetInt("smtp_port"),
		SMTPUsername:      v.GetString("smtp_username"),
		SMTPPassword:      v.GetString("smtp_password"),
		MailFrom:          v.GetString("mail_from"),
		CloudinaryURL:     v.GetString("cloudinary_url"),
		UploadTimeout:     v.GetDuration("upload_timeout"),
		MaxUploadBytes:    v.GetInt64("max_upload_bytes"),
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("config: DB_DSN is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is not set"))
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = 10
	}
	return errors.Join(errs...)
}
