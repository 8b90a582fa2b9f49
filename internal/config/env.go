package config

import (
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/kelseyhightower/envconfig"
)

// environment mirrors Config as flat environment variables. Pointer fields
// stay nil when the variable is unset so the YAML value survives.
type environment struct {
	PGHost     string `envconfig:"PGHOST"`
	DBHost     string `envconfig:"DB_HOST"`
	PGPort     *int   `envconfig:"PGPORT"`
	DBPort     *int   `envconfig:"DB_PORT"`
	PGDatabase string `envconfig:"PGDATABASE"`
	DBName     string `envconfig:"DB_NAME"`
	PGUser     string `envconfig:"PGUSER"`
	DBUser     string `envconfig:"DB_USER"`
	PGPassword string `envconfig:"PGPASSWORD"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	SecretARN  string `envconfig:"DB_SECRET_ARN"`
	PGSSLMode  string `envconfig:"PGSSLMODE"`
	DBSSLMode  string `envconfig:"DB_SSLMODE"`

	DumpBinary       string         `envconfig:"PG_DUMP_PATH"`
	DumpVerbose      *bool          `envconfig:"DUMP_VERBOSE"`
	DumpExtraArgs    []string       `envconfig:"DUMP_EXTRA_ARGS"`
	DumpTimeout      *time.Duration `envconfig:"DUMP_TIMEOUT"`
	DumpMinSize      *int64         `envconfig:"DUMP_MIN_SIZE"`
	DumpMinTables    *int           `envconfig:"DUMP_MIN_TABLES"`
	Compression      string         `envconfig:"DUMP_COMPRESSION"`
	CompressionLevel *int           `envconfig:"DUMP_COMPRESSION_LEVEL"`
	ScratchDir       string         `envconfig:"SCRATCH_DIR"`
	AgePublicKey     string         `envconfig:"AGE_PUBLIC_KEY"`

	Bucket          string  `envconfig:"S3_BUCKET"`
	Prefix          *string `envconfig:"S3_PREFIX"`
	AWSRegion       string  `envconfig:"AWS_REGION"`
	S3Region        string  `envconfig:"S3_REGION"`
	Endpoint        string  `envconfig:"S3_ENDPOINT"`
	StorageClass    string  `envconfig:"S3_STORAGE_CLASS"`
	SSE             string  `envconfig:"S3_SSE"`
	KMSKeyID        string  `envconfig:"S3_KMS_KEY_ID"`
	BackupType      string  `envconfig:"BACKUP_TYPE"`
	TimestampLayout string  `envconfig:"BACKUP_TIMESTAMP_LAYOUT"`
	UploadManifest  *bool   `envconfig:"S3_UPLOAD_MANIFEST"`
	MaxAttempts     *int    `envconfig:"S3_MAX_ATTEMPTS"`

	NotifyTopicARN  string `envconfig:"NOTIFY_TOPIC_ARN"`
	SNSTopicARN     string `envconfig:"SNS_TOPIC_ARN"`
	NotifyOnSuccess *bool  `envconfig:"NOTIFY_ON_SUCCESS"`
	NotifyOnFailure *bool  `envconfig:"NOTIFY_ON_FAILURE"`

	PushgatewayURL string `envconfig:"METRICS_PUSHGATEWAY_URL"`
	MetricsJob     string `envconfig:"METRICS_JOB"`

	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogFormat string `envconfig:"LOG_FORMAT"`
}

func (c *Config) overlayEnv() error {
	var env environment
	if err := envconfig.Process("", &env); err != nil {
		return err
	}
	env.apply(c)
	return nil
}

// first returns the first non-empty value; DB_* names win over the libpq
// PG* names.
func first(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func setString(dst *string, values ...string) {
	if v := first(values...); v != "" {
		*dst = v
	}
}

func (e *environment) apply(c *Config) {
	setString(&c.Database.Host, e.DBHost, e.PGHost)
	if e.DBPort != nil {
		c.Database.Port = *e.DBPort
	} else if e.PGPort != nil {
		c.Database.Port = *e.PGPort
	}
	setString(&c.Database.Name, e.DBName, e.PGDatabase)
	setString(&c.Database.User, e.DBUser, e.PGUser)
	setString(&c.Database.Password, e.DBPassword, e.PGPassword)
	setString(&c.Database.SecretARN, e.SecretARN)
	setString(&c.Database.SSLMode, e.DBSSLMode, e.PGSSLMode)

	setString(&c.Dump.Binary, e.DumpBinary)
	if e.DumpVerbose != nil {
		c.Dump.Verbose = *e.DumpVerbose
	}
	if len(e.DumpExtraArgs) > 0 {
		c.Dump.ExtraArgs = e.DumpExtraArgs
	}
	if e.DumpTimeout != nil {
		c.Dump.Timeout = *e.DumpTimeout
	}
	if e.DumpMinSize != nil {
		c.Dump.MinSize = e.DumpMinSize
	}
	if e.DumpMinTables != nil {
		c.Dump.MinTables = *e.DumpMinTables
	}
	setString(&c.Dump.Compression, e.Compression)
	if e.CompressionLevel != nil {
		c.Dump.CompressionLevel = *e.CompressionLevel
	}
	setString(&c.Dump.ScratchDir, e.ScratchDir)
	setString(&c.Dump.AgePublicKey, e.AgePublicKey)

	setString(&c.S3.Bucket, e.Bucket)
	if e.Prefix != nil {
		c.S3.Prefix = e.Prefix
	}
	setString(&c.S3.Region, e.S3Region, e.AWSRegion)
	setString(&c.S3.Endpoint, e.Endpoint)
	if e.StorageClass != "" {
		c.S3.StorageClass = types.StorageClass(e.StorageClass)
	}
	setString(&c.S3.SSE, e.SSE)
	setString(&c.S3.KMSKeyID, e.KMSKeyID)
	setString(&c.S3.BackupType, e.BackupType)
	setString(&c.S3.TimestampLayout, e.TimestampLayout)
	if e.UploadManifest != nil {
		c.S3.Manifest = e.UploadManifest
	}
	if e.MaxAttempts != nil {
		c.S3.Retry.MaxAttempts = *e.MaxAttempts
	}

	setString(&c.Notify.TopicARN, e.NotifyTopicARN, e.SNSTopicARN)
	if e.NotifyOnSuccess != nil {
		c.Notify.OnSuccess = e.NotifyOnSuccess
	}
	if e.NotifyOnFailure != nil {
		c.Notify.OnFailure = e.NotifyOnFailure
	}

	setString(&c.Metrics.PushgatewayURL, e.PushgatewayURL)
	setString(&c.Metrics.Job, e.MetricsJob)

	setString(&c.Log.Level, e.LogLevel)
	setString(&c.Log.Format, e.LogFormat)
}
