package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Consent     ConsentConfig     `yaml:"consent"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
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

type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RecognitionConfig struct {
	// AcceptThreshold is the single canonical match-acceptance threshold.
	// Every call site (enrollment preview, check-in, recognize endpoint)
	// uses this value.
	AcceptThreshold        float64 `yaml:"accept_threshold"`
	LowConfidence          float64 `yaml:"low_confidence"`
	VeryLowConfidence      float64 `yaml:"very_low_confidence"`
	MaxTemplatesPerSubject int     `yaml:"max_templates_per_subject"`
	CandidateLimit         int     `yaml:"candidate_limit"`
	ModelPath              string  `yaml:"model_path"`
}

type AttendanceConfig struct {
	RapidSuccessionWindow time.Duration `yaml:"rapid_succession_window"`
	RecentHistoryWindow   time.Duration `yaml:"recent_history_window"`
}

type ConsentConfig struct {
	PolicyVersion string `yaml:"policy_version"`
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

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.Recognition.AcceptThreshold == 0 {
		cfg.Recognition.AcceptThreshold = 0.6
	}
	if cfg.Recognition.LowConfidence == 0 {
		cfg.Recognition.LowConfidence = 0.7
	}
	if cfg.Recognition.VeryLowConfidence == 0 {
		cfg.Recognition.VeryLowConfidence = 0.5
	}
	if cfg.Recognition.MaxTemplatesPerSubject == 0 {
		cfg.Recognition.MaxTemplatesPerSubject = 10
	}
	if cfg.Recognition.CandidateLimit == 0 {
		cfg.Recognition.CandidateLimit = 50
	}
	if cfg.Attendance.RapidSuccessionWindow == 0 {
		cfg.Attendance.RapidSuccessionWindow = 30 * time.Second
	}
	if cfg.Attendance.RecentHistoryWindow == 0 {
		cfg.Attendance.RecentHistoryWindow = 24 * time.Hour
	}
	if cfg.Consent.PolicyVersion == "" {
		cfg.Consent.PolicyVersion = "1.0"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATTEND_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATTEND_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATTEND_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATTEND_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATTEND_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATTEND_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATTEND_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATTEND_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATTEND_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATTEND_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATTEND_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATTEND_MODEL_PATH"); v != "" {
		cfg.Recognition.ModelPath = v
	}
	if v := os.Getenv("ATTEND_POLICY_VERSION"); v != "" {
		cfg.Consent.PolicyVersion = v
	}
	if v := os.Getenv("ATTEND_ACCEPT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Recognition.AcceptThreshold = f
		}
	}
}
