// Package config defines the process configuration for greetbot. It is loaded
// once at startup (or Lambda cold start) and is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format makes LoadConfig fail and the
// binary exit before any table is read.
package config

import (
	"fmt"
	"time"

	"greetbot/internal/types"
)

// SecretString is an alias for types.SecretString so secrets never reach logs.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"greetbot"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Sheets    SheetsConfig
	Mail      MailConfig
	Dispatch  DispatchConfig
	Lock      LockConfig
	AWS       AWSConfig
	Festivals FestivalsConfig
	Server    ServerConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// SheetsConfig locates the four tables. Either a Google service account with
// spreadsheet IDs, or a local .xlsx workbook (WORKBOOK_PATH) for development.
type SheetsConfig struct {
	CredentialsJSON SecretString `envconfig:"GOOGLE_CREDENTIALS" validate:"required_without=WorkbookPath"`
	WorkbookPath    string       `envconfig:"WORKBOOK_PATH"`

	RosterSpreadsheetID   string `envconfig:"ROSTER_SHEET_ID" validate:"required_without=WorkbookPath"`
	RosterRange           string `envconfig:"ROSTER_RANGE" default:"Sheet1"`
	FestivalSpreadsheetID string `envconfig:"FESTIVAL_SHEET_ID" validate:"required_without=WorkbookPath"`
	FestivalRange         string `envconfig:"FESTIVAL_RANGE" default:"Sheet1"`
	CustomSpreadsheetID   string `envconfig:"CUSTOM_SHEET_ID" validate:"required_without=WorkbookPath"`
	CustomRange           string `envconfig:"CUSTOM_RANGE" default:"Sheet1"`
	LogSpreadsheetID      string `envconfig:"MAIL_LOG_SHEET_ID" validate:"required_without=WorkbookPath"`
	LogRange              string `envconfig:"MAIL_LOG_RANGE" default:"Sheet1!A:F"`
}

// UseWorkbook reports whether tables come from a local workbook.
func (c SheetsConfig) UseWorkbook() bool {
	return c.WorkbookPath != ""
}

// MailConfig selects and configures the outbound mail transport.
type MailConfig struct {
	Provider string `envconfig:"MAIL_PROVIDER" default:"smtp" validate:"oneof=smtp ses"`

	SMTPHost string       `envconfig:"SMTP_HOST" validate:"required_if=Provider smtp"`
	SMTPPort int          `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	Username string       `envconfig:"EMAIL_USERNAME"`
	Password SecretString `envconfig:"EMAIL_PASSWORD"`

	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" validate:"omitempty,email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"The Team"`

	SESConfigurationSet string `envconfig:"SES_CONFIGURATION_SET"`

	// Optional file attached to every outgoing message.
	AttachmentName string `envconfig:"MAIL_ATTACHMENT_NAME"`
	AttachmentPath string `envconfig:"MAIL_ATTACHMENT_PATH" validate:"required_with=AttachmentName"`

	BreakerFailures uint32        `envconfig:"MAIL_BREAKER_FAILURES" default:"5" validate:"min=1"`
	BreakerTimeout  time.Duration `envconfig:"MAIL_BREAKER_TIMEOUT" default:"30s"`
}

// SenderAddress is the envelope sender. It falls back to the SMTP username,
// which is what most shared-hosting SMTP servers require.
func (c MailConfig) SenderAddress() string {
	if c.FromAddress != "" {
		return c.FromAddress
	}
	return c.Username
}

// DispatchConfig tunes batching, retries and the send-log clock.
type DispatchConfig struct {
	ChunkSize    int           `envconfig:"DISPATCH_CHUNK_SIZE" default:"5" validate:"min=1"`
	ChunkPause   time.Duration `envconfig:"DISPATCH_CHUNK_PAUSE" default:"2s"`
	MaxAttempts  int           `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryBackoff time.Duration `envconfig:"DISPATCH_RETRY_BACKOFF" default:"2s"`
	Timezone     string        `envconfig:"DISPATCH_TIMEZONE" default:"Asia/Kolkata" validate:"required"`
	Signature    string        `envconfig:"DISPATCH_SIGNATURE" default:"The Team"`
}

// Location resolves Timezone.
func (c DispatchConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Lock backends.
const (
	LockBackendNone     = "none"
	LockBackendPostgres = "postgres"
	LockBackendRedis    = "redis"
)

// LockConfig configures the cross-run lock and run history.
type LockConfig struct {
	Backend     string        `envconfig:"LOCK_BACKEND" default:"none" validate:"oneof=none postgres redis"`
	DatabaseURL SecretString  `envconfig:"DATABASE_URL" validate:"required_if=Backend postgres"`
	RedisURL    SecretString  `envconfig:"REDIS_URL" validate:"required_if=Backend redis"`
	TTL         time.Duration `envconfig:"LOCK_TTL" default:"15m"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	FailureQueueURL string `envconfig:"SQS_FAILED_SENDS" validate:"omitempty,url"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Greetbot"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"false"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// FestivalsConfig adds an optional iCalendar source merged with the festival
// sheet.
type FestivalsConfig struct {
	ICSPath string `envconfig:"FESTIVAL_ICS_PATH"`
}

// ServerConfig holds the HTTP trigger settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8000"`
	TriggerToken   SecretString  `envconfig:"TRIGGER_TOKEN"`
	RequestTimeout time.Duration `envconfig:"TRIGGER_REQUEST_TIMEOUT" default:"10m"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
