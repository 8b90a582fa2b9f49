package manifest

type SystemInfo struct {
	Hostname      string `yaml:"hostname"`
	OS            string `yaml:"os"`
	PgDumpVersion string `yaml:"pg_dump_version"`
	ServerVersion string `yaml:"server_version,omitempty"`
}

type Database struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type Artifact struct {
	Bucket           string  `yaml:"bucket"`
	Key              string  `yaml:"key"`
	FileName         string  `yaml:"file_name"`
	Compression      string  `yaml:"compression"`
	Encrypted        bool    `yaml:"encrypted"`
	AgePublicKey     string  `yaml:"age_public_key,omitempty"`
	Blake3Hash       string  `yaml:"blake3_hash"`
	StoredBytes      int64   `yaml:"stored_bytes"`
	OriginalBytes    int64   `yaml:"original_bytes"`
	CompressionRatio float64 `yaml:"compression_ratio"`
	Tables           int     `yaml:"tables"`
	Sequences        int     `yaml:"sequences"`
	Complete         bool    `yaml:"complete"`
}

// Backup is the sidecar uploaded next to every artifact.
type Backup struct {
	RunID      string     `yaml:"run_id"`
	Datetime   int64      `yaml:"datetime"`
	Timestamp  string     `yaml:"timestamp"`
	BackupType string     `yaml:"backup_type"`
	DurationMS int64      `yaml:"duration_ms"`
	System     SystemInfo `yaml:"system"`
	Database   Database   `yaml:"database"`
	Artifact   Artifact   `yaml:"artifact"`
}
