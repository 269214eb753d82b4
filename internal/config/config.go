// Package config loads application configuration from a YAML file with
// environment variable overrides. A .env file is honored when present so
// secrets can live outside the config file.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/meridian-crm/mailer/internal/mail"
)

// Config holds all configuration for the mailer service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Email    EmailConfig    `yaml:"email"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the job queue broker settings. URL takes precedence
// over the individual fields when both are set.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Configured reports whether any broker endpoint was provided.
func (c RedisConfig) Configured() bool {
	return c.URL != "" || c.Host != ""
}

// Options builds redis client options from the config. The URL form
// (redis://[:password@]host:port/db) wins when present.
func (c RedisConfig) Options() (*redis.Options, error) {
	if c.URL != "" {
		opts, err := redis.ParseURL(c.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opts, nil
	}
	if c.Host == "" {
		return nil, fmt.Errorf("no redis endpoint configured")
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", c.Host, port),
		Password: c.Password,
		DB:       c.DB,
	}, nil
}

// EmailConfig holds the active provider selection plus credentials for
// every supported provider. Only the active provider's fields need to be
// filled in.
type EmailConfig struct {
	Provider string `yaml:"provider"`

	GmailUser         string `yaml:"gmail_user"`
	GmailAppPassword  string `yaml:"gmail_app_password"`
	GmailAuthMethod   string `yaml:"gmail_auth_method"`
	GmailClientID     string `yaml:"gmail_client_id"`
	GmailClientSecret string `yaml:"gmail_client_secret"`
	GmailRefreshToken string `yaml:"gmail_refresh_token"`

	SMTPHost   string `yaml:"smtp_host"`
	SMTPPort   int    `yaml:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass"`
	SMTPSecure bool   `yaml:"smtp_secure"`

	SendGridAPIKey string `yaml:"sendgrid_api_key"`

	AWSAccessKeyID     string `yaml:"aws_access_key_id"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key"`
	AWSRegion          string `yaml:"aws_region"`

	MailgunUsername string `yaml:"mailgun_username"`
	MailgunPassword string `yaml:"mailgun_password"`

	FromName  string `yaml:"from_name"`
	FromEmail string `yaml:"from_email"`
	AppURL    string `yaml:"app_url"`
}

// Credentials converts the email section into the transport credential set.
func (c EmailConfig) Credentials() mail.Credentials {
	return mail.Credentials{
		GmailUser:         c.GmailUser,
		GmailAppPassword:  c.GmailAppPassword,
		GmailAuthMethod:   c.GmailAuthMethod,
		GmailClientID:     c.GmailClientID,
		GmailClientSecret: c.GmailClientSecret,
		GmailRefreshToken: c.GmailRefreshToken,

		SMTPHost:   c.SMTPHost,
		SMTPPort:   c.SMTPPort,
		SMTPUser:   c.SMTPUser,
		SMTPPass:   c.SMTPPass,
		SMTPSecure: c.SMTPSecure,

		SendGridAPIKey: c.SendGridAPIKey,

		AWSAccessKeyID:     c.AWSAccessKeyID,
		AWSSecretAccessKey: c.AWSSecretAccessKey,
		AWSRegion:          c.AWSRegion,

		MailgunUsername: c.MailgunUsername,
		MailgunPassword: c.MailgunPassword,

		FromName:  c.FromName,
		FromEmail: c.FromEmail,
		AppURL:    c.AppURL,
	}
}

// Load reads and parses the configuration file. A missing file is not an
// error; everything can come from the environment.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Email.Provider == "" {
		cfg.Email.Provider = "gmail"
	}
	if cfg.Email.GmailAuthMethod == "" {
		cfg.Email.GmailAuthMethod = mail.GmailAuthAppPassword
	}
	if cfg.Email.AppURL == "" {
		cfg.Email.AppURL = "http://localhost:" + strconv.Itoa(cfg.Server.Port)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}

	// Queue broker
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	// Provider selection and credentials
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Email.Provider = v
	}
	if v := os.Getenv("GMAIL_USER"); v != "" {
		cfg.Email.GmailUser = v
	}
	if v := os.Getenv("GMAIL_APP_PASSWORD"); v != "" {
		cfg.Email.GmailAppPassword = v
	}
	if v := os.Getenv("GMAIL_AUTH_METHOD"); v != "" {
		cfg.Email.GmailAuthMethod = v
	}
	if v := os.Getenv("GMAIL_CLIENT_ID"); v != "" {
		cfg.Email.GmailClientID = v
	}
	if v := os.Getenv("GMAIL_CLIENT_SECRET"); v != "" {
		cfg.Email.GmailClientSecret = v
	}
	if v := os.Getenv("GMAIL_REFRESH_TOKEN"); v != "" {
		cfg.Email.GmailRefreshToken = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Email.SMTPHost = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Email.SMTPPort = port
		}
	}
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.Email.SMTPUser = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.Email.SMTPPass = v
	}
	if v := os.Getenv("SMTP_SECURE"); v != "" {
		cfg.Email.SMTPSecure = parseBool(v)
	}
	if v := os.Getenv("SENDGRID_API_KEY"); v != "" {
		cfg.Email.SendGridAPIKey = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Email.AWSAccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Email.AWSSecretAccessKey = v
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.Email.AWSRegion = v
	}
	if v := os.Getenv("MAILGUN_USERNAME"); v != "" {
		cfg.Email.MailgunUsername = v
	}
	if v := os.Getenv("MAILGUN_PASSWORD"); v != "" {
		cfg.Email.MailgunPassword = v
	}
	if v := os.Getenv("FROM_NAME"); v != "" {
		cfg.Email.FromName = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Email.FromEmail = v
	}
	if v := os.Getenv("APP_URL"); v != "" {
		cfg.Email.AppURL = v
	}

	if cfg.Email.AWSRegion == "" {
		cfg.Email.AWSRegion = "us-east-1"
	}
	if err := validateAppURL(cfg.Email.AppURL); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateAppURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid APP_URL %q", raw)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
