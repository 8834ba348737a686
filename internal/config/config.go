package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Directory DirectoryConfig `yaml:"directory"`
	Database  DatabaseConfig  `yaml:"database"`
	DynamoDB  DynamoDBConfig  `yaml:"dynamodb"`
	Archive   ArchiveConfig   `yaml:"archive"`
	MinIO     MinIOConfig     `yaml:"minio"`
	S3        S3Config        `yaml:"s3"`
	AWS       AWSConfig       `yaml:"aws"`
	NATS      NATSConfig      `yaml:"nats"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	// MaxUploadBytes bounds the multipart body accepted by /upload and /add_employee.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

type GatewayConfig struct {
	StagingDir string `yaml:"staging_dir"`
	// DegradeOnDirectoryError renders "Unknown" instead of failing the
	// request when the directory cannot be reached.
	DegradeOnDirectoryError bool `yaml:"degrade_on_directory_error"`
}

type MatcherConfig struct {
	Backend      string        `yaml:"backend"`
	CollectionID string        `yaml:"collection_id"`
	Threshold    float64       `yaml:"threshold"`
	Timeout      time.Duration `yaml:"timeout"`
}

type DirectoryConfig struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type DynamoDBConfig struct {
	Table    string `yaml:"table"`
	Endpoint string `yaml:"endpoint"`
}

type ArchiveConfig struct {
	Backend          string        `yaml:"backend"`
	VisitorBucket    string        `yaml:"visitor_bucket"`
	EnrollmentBucket string        `yaml:"enrollment_bucket"`
	Timeout          time.Duration `yaml:"timeout"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// AWSConfig is shared by every AWS-backed client (Rekognition, DynamoDB, S3).
// Empty keys fall back to the default credential chain.
type AWSConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Profile         string `yaml:"profile"`
}

type NATSConfig struct {
	URL string `yaml:"url"`
}

type IndexerConfig struct {
	Consumer    string `yaml:"consumer"`
	WorkerCount int    `yaml:"worker_count"`
	MaxDeliver  int    `yaml:"max_deliver"`
	MetricsPort int    `yaml:"metrics_port"`
	// Notifications enables consuming raw S3/MinIO bucket notifications
	// in addition to the gateway's enrollment events.
	Notifications bool `yaml:"notifications"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects backend names no factory can build. The in-process
// memory backends are not accepted: the gateway and the indexer run as
// separate processes and would each see only their own copy.
func (c *Config) Validate() error {
	switch c.Matcher.Backend {
	case "rekognition":
	default:
		return fmt.Errorf("unknown matcher backend: %q", c.Matcher.Backend)
	}
	switch c.Directory.Backend {
	case "postgres", "dynamodb":
	case "memory":
		return errSharedBackend("directory")
	default:
		return fmt.Errorf("unknown directory backend: %q", c.Directory.Backend)
	}
	switch c.Archive.Backend {
	case "minio", "s3":
	case "memory":
		return errSharedBackend("archive")
	default:
		return fmt.Errorf("unknown archive backend: %q", c.Archive.Backend)
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 100 {
		return fmt.Errorf("matcher threshold must be a percentage, got %v", c.Matcher.Threshold)
	}
	if c.Archive.VisitorBucket == c.Archive.EnrollmentBucket {
		return fmt.Errorf("visitor and enrollment archives must be distinct buckets")
	}
	return nil
}

func errSharedBackend(component string) error {
	return fmt.Errorf("%s backend \"memory\" cannot be shared between the gateway and indexer processes", component)
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 10 << 20
	}
	if cfg.Gateway.StagingDir == "" {
		cfg.Gateway.StagingDir = filepath.Join(os.TempDir(), "facegate")
	}
	if cfg.Matcher.Backend == "" {
		cfg.Matcher.Backend = "rekognition"
	}
	if cfg.Matcher.CollectionID == "" {
		cfg.Matcher.CollectionID = "employee"
	}
	if cfg.Matcher.Threshold == 0 {
		cfg.Matcher.Threshold = 80
	}
	if cfg.Matcher.Timeout == 0 {
		cfg.Matcher.Timeout = 10 * time.Second
	}
	if cfg.Directory.Backend == "" {
		cfg.Directory.Backend = "postgres"
	}
	if cfg.Directory.Timeout == 0 {
		cfg.Directory.Timeout = 5 * time.Second
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.DynamoDB.Table == "" {
		cfg.DynamoDB.Table = "employee-table"
	}
	if cfg.Archive.Backend == "" {
		cfg.Archive.Backend = "minio"
	}
	if cfg.Archive.VisitorBucket == "" {
		cfg.Archive.VisitorBucket = "visitor-archive"
	}
	if cfg.Archive.EnrollmentBucket == "" {
		cfg.Archive.EnrollmentBucket = "enrollment-archive"
	}
	if cfg.Archive.Timeout == 0 {
		cfg.Archive.Timeout = 10 * time.Second
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.Indexer.Consumer == "" {
		cfg.Indexer.Consumer = "enrollment-indexer"
	}
	if cfg.Indexer.WorkerCount == 0 {
		cfg.Indexer.WorkerCount = 2
	}
	if cfg.Indexer.MaxDeliver == 0 {
		cfg.Indexer.MaxDeliver = 5
	}
	if cfg.Indexer.MetricsPort == 0 {
		cfg.Indexer.MetricsPort = 8082
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACEGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("FACEGATE_STAGING_DIR"); v != "" {
		cfg.Gateway.StagingDir = v
	}
	if v := os.Getenv("FACEGATE_MATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Matcher.Threshold = f
		}
	}
	if v := os.Getenv("FACEGATE_COLLECTION_ID"); v != "" {
		cfg.Matcher.CollectionID = v
	}
	if v := os.Getenv("FACEGATE_DIRECTORY_BACKEND"); v != "" {
		cfg.Directory.Backend = v
	}
	if v := os.Getenv("FACEGATE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("FACEGATE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("FACEGATE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("FACEGATE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("FACEGATE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("FACEGATE_DYNAMODB_TABLE"); v != "" {
		cfg.DynamoDB.Table = v
	}
	if v := os.Getenv("FACEGATE_ARCHIVE_BACKEND"); v != "" {
		cfg.Archive.Backend = v
	}
	if v := os.Getenv("FACEGATE_VISITOR_BUCKET"); v != "" {
		cfg.Archive.VisitorBucket = v
	}
	if v := os.Getenv("FACEGATE_ENROLLMENT_BUCKET"); v != "" {
		cfg.Archive.EnrollmentBucket = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("FACEGATE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACEGATE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACEGATE_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("FACEGATE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("FACEGATE_INDEXER_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.WorkerCount = n
		}
	}
	if v := os.Getenv("FACEGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
