package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"pgbackup/internal/compress"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort            = 5432
	DefaultDumpBinary      = "pg_dump"
	DefaultDumpTimeout     = 14 * time.Minute
	DefaultMinSize         = int64(1000)
	DefaultPrefix          = "pg_backups"
	DefaultSSE             = "aws:kms"
	DefaultBackupType      = "scheduled"
	DefaultTimestampLayout = "2006-01-02_15.04"
	DefaultMetricsJob      = "pgbackup"
)

type Database struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Name      string `yaml:"name"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	SecretARN string `yaml:"secret_arn"`
	SSLMode   string `yaml:"sslmode"`
}

type Dump struct {
	Binary           string        `yaml:"binary"`
	Verbose          bool          `yaml:"verbose"`
	ExtraArgs        []string      `yaml:"extra_args"`
	Timeout          time.Duration `yaml:"timeout"`
	MinSize          *int64        `yaml:"min_size"`
	MinTables        int           `yaml:"min_tables"`
	Compression      string        `yaml:"compression"`
	CompressionLevel int           `yaml:"compression_level"`
	ScratchDir       string        `yaml:"scratch_dir"`
	AgePublicKey     string        `yaml:"age_public_key"`
}

type S3Config struct {
	Bucket          string             `yaml:"bucket"`
	Prefix          *string            `yaml:"prefix"`
	Region          string             `yaml:"region"`
	Endpoint        string             `yaml:"endpoint"`
	StorageClass    types.StorageClass `yaml:"storage_class"`
	SSE             string             `yaml:"sse"`
	KMSKeyID        string             `yaml:"kms_key_id"`
	BackupType      string             `yaml:"backup_type"`
	TimestampLayout string             `yaml:"timestamp_layout"`
	Manifest        *bool              `yaml:"manifest"`
	Retry           struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"retry,omitempty"`
}

type Notify struct {
	TopicARN  string `yaml:"topic_arn"`
	OnSuccess *bool  `yaml:"on_success"`
	OnFailure *bool  `yaml:"on_failure"`
}

type Metrics struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	Job            string `yaml:"job"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

type Config struct {
	Database Database `yaml:"database"`
	Dump     Dump     `yaml:"dump"`
	S3       S3Config `yaml:"s3"`
	Notify   Notify   `yaml:"notify"`
	Metrics  Metrics  `yaml:"metrics"`
	Log      Log      `yaml:"log"`
}

// Load reads the optional YAML file, overlays the environment, fills in
// defaults and validates.
func Load(filename string) (*Config, error) {
	var cfg Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.overlayEnv(); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadEnv is Load without a file, the way the Lambda runtime is configured.
func LoadEnv() (*Config, error) {
	return Load("")
}

func (c *Config) ApplyDefaults() {
	if c.Database.Port == 0 {
		c.Database.Port = DefaultPort
	}
	if c.Dump.Binary == "" {
		c.Dump.Binary = DefaultDumpBinary
	}
	if c.Dump.Timeout == 0 {
		c.Dump.Timeout = DefaultDumpTimeout
	}
	if c.Dump.Compression == "" {
		c.Dump.Compression = compress.Gzip
	}
	if c.Dump.ScratchDir == "" {
		c.Dump.ScratchDir = os.TempDir()
	}
	if c.S3.StorageClass == "" {
		c.S3.StorageClass = types.StorageClassStandard
	}
	if c.S3.SSE == "" {
		c.S3.SSE = DefaultSSE
	}
	if c.S3.BackupType == "" {
		c.S3.BackupType = DefaultBackupType
	}
	if c.S3.TimestampLayout == "" {
		c.S3.TimestampLayout = DefaultTimestampLayout
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = DefaultMetricsJob
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.SecretARN == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database.user is required when database.secret_arn is not set")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required when database.secret_arn is not set")
		}
	}
	if c.Dump.Timeout < 0 {
		return fmt.Errorf("dump.timeout must not be negative")
	}
	if c.Dump.MinTables < 0 {
		return fmt.Errorf("dump.min_tables must not be negative")
	}
	if !compress.Supported(c.Dump.Compression) {
		return fmt.Errorf("dump.compression must be one of none, gzip, zstd, got %q", c.Dump.Compression)
	}
	if c.Dump.AgePublicKey != "" && !strings.HasPrefix(c.Dump.AgePublicKey, "age1") {
		return fmt.Errorf("dump.age_public_key must start with 'age1'")
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required")
	}
	switch c.S3.SSE {
	case "none", "AES256", "aws:kms", "aws:kms:dsse":
	default:
		return fmt.Errorf("s3.sse must be one of none, AES256, aws:kms, aws:kms:dsse, got %q", c.S3.SSE)
	}
	if c.S3.KMSKeyID != "" && !strings.HasPrefix(c.S3.SSE, "aws:kms") {
		return fmt.Errorf("s3.kms_key_id requires s3.sse aws:kms or aws:kms:dsse")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) MinSize() int64 {
	if c.Dump.MinSize != nil {
		return *c.Dump.MinSize
	}
	return DefaultMinSize
}

func (c *Config) KeyPrefix() string {
	if c.S3.Prefix != nil {
		return strings.Trim(*c.S3.Prefix, "/")
	}
	return DefaultPrefix
}

func (c *Config) UploadManifest() bool {
	return c.S3.Manifest == nil || *c.S3.Manifest
}

func (c *Config) NotifyOnSuccess() bool {
	return c.Notify.TopicARN != "" && (c.Notify.OnSuccess == nil || *c.Notify.OnSuccess)
}

func (c *Config) NotifyOnFailure() bool {
	return c.Notify.TopicARN != "" && (c.Notify.OnFailure == nil || *c.Notify.OnFailure)
}

// Encrypted reports whether artifacts are age-encrypted before upload.
func (c *Config) Encrypted() bool {
	return c.Dump.AgePublicKey != ""
}

// S3RetryAttempts returns 0 when the SDK default should be kept.
func (c *Config) S3RetryAttempts() int {
	if c.S3.Retry.MaxAttempts > 0 {
		return c.S3.Retry.MaxAttempts
	}
	return 0
}
