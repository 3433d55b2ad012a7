package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Generation GenerationConfig `yaml:"generation"`
	Email      EmailConfig      `yaml:"email"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	DocuSign   DocuSignConfig   `yaml:"docusign"`
	HeyGen     HeyGenConfig     `yaml:"heygen"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Auth       AuthConfig       `yaml:"auth"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Events     EventsConfig     `yaml:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// StorageConfig holds client-record store configuration.
// Type selects the backend: "dynamodb", "postgres" or "local".
type StorageConfig struct {
	Type           string `yaml:"type"`
	LocalPath      string `yaml:"local_path"`
	DynamoDBTable  string `yaml:"dynamodb_table"`
	DocumentBucket string `yaml:"document_bucket"` // S3 bucket for uploaded contracts
	AWSRegion      string `yaml:"aws_region"`
	AWSProfile     string `yaml:"aws_profile"` // Empty string uses default credential chain (IAM role on ECS)
	DatabaseURL    string `yaml:"database_url"`
}

// GetAWSProfile returns the AWS profile, with environment variable override
func (c StorageConfig) GetAWSProfile() string {
	if envProfile := os.Getenv("AWS_PROFILE_OVERRIDE"); envProfile != "" {
		if envProfile == "none" || envProfile == "iam" {
			return "" // Use default credential chain (IAM role)
		}
		return envProfile
	}
	// On ECS/Lambda, don't use a profile - use IAM role
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return ""
	}
	return c.AWSProfile
}

// RedisConfig holds the optional Redis connection used for the
// scheduler's cross-replica run lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GenerationConfig holds generative-text service configuration.
// Provider selects the backend: "gemini" or "bedrock".
type GenerationConfig struct {
	Provider       string  `yaml:"provider"`
	MaxRetries     int     `yaml:"max_retries"`
	BackoffSeconds float64 `yaml:"backoff_seconds"`

	GeminiAPIKey  string `yaml:"gemini_api_key"`
	GeminiModel   string `yaml:"gemini_model"`
	GeminiBaseURL string `yaml:"gemini_base_url"`

	BedrockModelID string `yaml:"bedrock_model_id"`
	BedrockRegion  string `yaml:"bedrock_region"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c GenerationConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Backoff returns the base retry backoff as a duration.
func (c GenerationConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffSeconds * float64(time.Second))
}

// EmailConfig holds the reminder email channel (AWS SES) configuration
type EmailConfig struct {
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TwilioConfig holds Twilio voice API configuration
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	BaseURL    string `yaml:"base_url"`
	Enabled    bool   `yaml:"enabled"`
}

// DocuSignConfig holds DocuSign e-signature API configuration
type DocuSignConfig struct {
	BasePath         string `yaml:"base_path"`
	AuthServer       string `yaml:"auth_server"`
	IntegrationKey   string `yaml:"integration_key"`
	SecretKey        string `yaml:"secret_key"`
	RefreshToken     string `yaml:"refresh_token"`
	AccountID        string `yaml:"account_id"`
	RefreshThreshold int    `yaml:"refresh_threshold_minutes"`
	Enabled          bool   `yaml:"enabled"`
}

// HeyGenConfig holds HeyGen avatar-video API configuration
type HeyGenConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	PollHour       int    `yaml:"poll_hour"` // hour of day for the completed-video check
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Enabled        bool   `yaml:"enabled"`
}

// StripeConfig holds Stripe payments configuration
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
	Enabled       bool   `yaml:"enabled"`
}

// CalendarConfig holds Google Calendar scheduling configuration
type CalendarConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	CalendarID   string `yaml:"calendar_id"`
	Enabled      bool   `yaml:"enabled"`
}

// AuthConfig holds Google OAuth authentication configuration
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	SessionSecret      string `yaml:"session_secret"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
}

// ReminderConfig holds the due-date reminder pipeline configuration
type ReminderConfig struct {
	LookaheadHours      int    `yaml:"lookahead_hours"`
	EmailRunAt          string `yaml:"email_run_at"` // "HH:MM" wall-clock time
	CallContentRunAt    string `yaml:"call_content_run_at"`
	Timezone            string `yaml:"timezone"`
	Concurrency         int    `yaml:"concurrency"` // parallel clients per batch
	BatchTimeoutMinutes int    `yaml:"batch_timeout_minutes"`
	LockTTLMinutes      int    `yaml:"lock_ttl_minutes"`
}

// Lookahead returns the due-date lookahead window as a duration.
func (c ReminderConfig) Lookahead() time.Duration {
	return time.Duration(c.LookaheadHours) * time.Hour
}

// BatchTimeout returns the per-batch deadline as a duration.
func (c ReminderConfig) BatchTimeout() time.Duration {
	return time.Duration(c.BatchTimeoutMinutes) * time.Minute
}

// LockTTL returns the run-lock TTL as a duration.
func (c ReminderConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// Location resolves the configured timezone, falling back to UTC.
func (c ReminderConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RunAtTime parses an "HH:MM" wall-clock time.
func RunAtTime(s string) (hour, minute int, err error) {
	if _, err = fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid run_at time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("run_at time %q out of range", s)
	}
	return hour, minute, nil
}

// EventsConfig holds the optional AMQP outcome-event publisher configuration
type EventsConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.LocalPath == "" {
		cfg.Storage.LocalPath = "./data"
	}
	if cfg.Storage.AWSRegion == "" {
		cfg.Storage.AWSRegion = "us-east-1"
	}
	if cfg.Generation.Provider == "" {
		cfg.Generation.Provider = "gemini"
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}
	if cfg.Generation.BackoffSeconds == 0 {
		cfg.Generation.BackoffSeconds = 1
	}
	if cfg.Generation.GeminiModel == "" {
		cfg.Generation.GeminiModel = "gemini-1.5-flash"
	}
	if cfg.Generation.GeminiBaseURL == "" {
		cfg.Generation.GeminiBaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Generation.BedrockModelID == "" {
		cfg.Generation.BedrockModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.Generation.BedrockRegion == "" {
		cfg.Generation.BedrockRegion = "us-east-1"
	}
	if cfg.Generation.TimeoutSeconds == 0 {
		cfg.Generation.TimeoutSeconds = 60
	}
	if cfg.Email.Region == "" {
		cfg.Email.Region = "us-east-1"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.Twilio.BaseURL == "" {
		cfg.Twilio.BaseURL = "https://api.twilio.com"
	}
	if cfg.DocuSign.BasePath == "" {
		cfg.DocuSign.BasePath = "https://demo.docusign.net/restapi"
	}
	if cfg.DocuSign.AuthServer == "" {
		cfg.DocuSign.AuthServer = "account-d.docusign.com"
	}
	if cfg.DocuSign.RefreshThreshold == 0 {
		cfg.DocuSign.RefreshThreshold = 30
	}
	if cfg.HeyGen.BaseURL == "" {
		cfg.HeyGen.BaseURL = "https://api.heygen.com"
	}
	if cfg.HeyGen.PollHour == 0 {
		cfg.HeyGen.PollHour = 7
	}
	if cfg.HeyGen.TimeoutSeconds == 0 {
		cfg.HeyGen.TimeoutSeconds = 30
	}
	if cfg.Stripe.BaseURL == "" {
		cfg.Stripe.BaseURL = "https://api.stripe.com"
	}
	if cfg.Calendar.CalendarID == "" {
		cfg.Calendar.CalendarID = "primary"
	}
	if cfg.Reminder.LookaheadHours == 0 {
		cfg.Reminder.LookaheadHours = 24
	}
	if cfg.Reminder.EmailRunAt == "" {
		cfg.Reminder.EmailRunAt = "07:00"
	}
	if cfg.Reminder.CallContentRunAt == "" {
		cfg.Reminder.CallContentRunAt = "00:00"
	}
	if cfg.Reminder.Timezone == "" {
		cfg.Reminder.Timezone = "UTC"
	}
	if cfg.Reminder.Concurrency == 0 {
		cfg.Reminder.Concurrency = 4
	}
	if cfg.Reminder.BatchTimeoutMinutes == 0 {
		cfg.Reminder.BatchTimeoutMinutes = 30
	}
	if cfg.Reminder.LockTTLMinutes == 0 {
		cfg.Reminder.LockTTLMinutes = 45
	}
	if cfg.Events.Exchange == "" {
		cfg.Events.Exchange = "backoffice.events"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Generation.GeminiAPIKey = v
	}
	if v := os.Getenv("GEMINI_BASE_URL"); v != "" {
		cfg.Generation.GeminiBaseURL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Email.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Email.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Email.Region = v
	}
	if v := os.Getenv("TWILIO_ACCOUNT_SID"); v != "" {
		cfg.Twilio.AccountSID = v
	}
	if v := os.Getenv("TWILIO_AUTH_TOKEN"); v != "" {
		cfg.Twilio.AuthToken = v
	}
	if v := os.Getenv("TWILIO_PHONE_NUMBER"); v != "" {
		cfg.Twilio.FromNumber = v
	}
	if v := os.Getenv("DOCUSIGN_INTEGRATION_KEY"); v != "" {
		cfg.DocuSign.IntegrationKey = v
	}
	if v := os.Getenv("DOCUSIGN_SECRET_KEY"); v != "" {
		cfg.DocuSign.SecretKey = v
	}
	if v := os.Getenv("DOCUSIGN_REFRESH_TOKEN"); v != "" {
		cfg.DocuSign.RefreshToken = v
	}
	if v := os.Getenv("DOCUSIGN_ACCOUNT_ID"); v != "" {
		cfg.DocuSign.AccountID = v
	}
	if v := os.Getenv("HEYGEN_API_KEY"); v != "" {
		cfg.HeyGen.APIKey = v
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Stripe.WebhookSecret = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
		cfg.Calendar.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
		cfg.Calendar.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REFRESH_TOKEN"); v != "" {
		cfg.Calendar.RefreshToken = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Events.URL = v
		cfg.Events.Enabled = true
	}

	// Database override (critical for ECS deployment where config.yaml has local defaults)
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Storage.DatabaseURL = dbURL
		if cfg.Storage.Type == "" || cfg.Storage.Type == "local" {
			cfg.Storage.Type = "postgres"
		}
	}

	return cfg, nil
}
