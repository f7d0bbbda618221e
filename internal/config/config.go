package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/hdfsclient/internal/metrics"
	"github.com/objectfs/hdfsclient/pkg/hdfs"
	"github.com/objectfs/hdfsclient/pkg/native"
	"github.com/objectfs/hdfsclient/pkg/utils"
)

// Configuration represents the complete client configuration
type Configuration struct {
	Global     GlobalConfig     `yaml:"global"`
	Connection ConnectionConfig `yaml:"connection"`
	IO         IOConfig         `yaml:"io"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// GlobalConfig represents logging settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`
}

// ConnectionConfig selects the filesystem to connect to
type ConnectionConfig struct {
	Local bool   `yaml:"local"`
	Host  string `yaml:"host" validate:"omitempty,hostname_rfc1123|ip"`
	Port  int    `yaml:"port" validate:"gte=0,lte=65535"`
	User  string `yaml:"user" validate:"omitempty,max=1024"`
}

// IOConfig holds the defaults applied to every Open. Sizes accept the
// suffixes understood by utils.ParseBytes; empty means "let the cluster
// decide".
type IOConfig struct {
	BufferSize  string `yaml:"buffer_size"`
	Replication int    `yaml:"replication" validate:"gte=0,lte=512"`
	BlockSize   string `yaml:"block_size"`
}

// MetricsConfig represents Prometheus collector settings
type MetricsConfig struct {
	Enabled   bool              `yaml:"enabled"`
	Namespace string            `yaml:"namespace" validate:"required_if=Enabled true"`
	Subsystem string            `yaml:"subsystem"`
	Path      string            `yaml:"path" validate:"omitempty,startswith=/"`
	Labels    map[string]string `yaml:"labels"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// NewDefault returns a configuration with default values
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Connection: ConnectionConfig{
			Host: hdfs.DefaultHost,
			Port: hdfs.DefaultPort,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "hdfs",
			Subsystem: "client",
			Path:      "/metrics",
			Labels:    make(map[string]string),
		},
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename) // #nosec G304 -- path comes from the caller's own configuration
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv overrides values from HDFS_* environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("HDFS_LOCAL"); val != "" {
		c.Connection.Local = parseBool(val)
	}
	if val := os.Getenv("HDFS_HOST"); val != "" {
		c.Connection.Host = val
	}
	if val := os.Getenv("HDFS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid HDFS_PORT: %w", err)
		}
		c.Connection.Port = port
	}
	if val := os.Getenv("HDFS_USER"); val != "" {
		c.Connection.User = val
	}

	if val := os.Getenv("HDFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("HDFS_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("HDFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}

	if val := os.Getenv("HDFS_BUFFER_SIZE"); val != "" {
		c.IO.BufferSize = val
	}
	if val := os.Getenv("HDFS_REPLICATION"); val != "" {
		replication, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid HDFS_REPLICATION: %w", err)
		}
		c.IO.Replication = replication
	}
	if val := os.Getenv("HDFS_BLOCK_SIZE"); val != "" {
		c.IO.BlockSize = val
	}

	if val := os.Getenv("HDFS_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = parseBool(val)
	}

	return nil
}

func parseBool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// SaveToFile saves configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if _, err := utils.ParseLogLevel(c.Global.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if _, err := utils.ParseLogFormat(c.Global.LogFormat); err != nil {
		return fmt.Errorf("invalid log_format: %w", err)
	}

	if _, err := parseSize("buffer_size", c.IO.BufferSize, math.MaxInt32); err != nil {
		return err
	}
	if _, err := parseSize("block_size", c.IO.BlockSize, math.MaxInt64); err != nil {
		return err
	}

	return nil
}

// formatValidationError converts validator errors into a readable error.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func parseSize(field, value string, limit int64) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	n, err := utils.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", field, err)
	}
	if n < 0 || n > limit {
		return 0, fmt.Errorf("invalid %s: %s is out of range", field, value)
	}
	return n, nil
}

// ConnectOptions returns the connection settings. Logger and Metrics are
// left for the caller to attach.
func (c *Configuration) ConnectOptions() hdfs.ConnectOptions {
	return hdfs.ConnectOptions{
		Local: c.Connection.Local,
		Host:  c.Connection.Host,
		Port:  c.Connection.Port,
		User:  c.Connection.User,
	}
}

// OpenOptions returns the per-file defaults from the io section.
func (c *Configuration) OpenOptions() (hdfs.OpenOptions, error) {
	bufferSize, err := parseSize("buffer_size", c.IO.BufferSize, math.MaxInt32)
	if err != nil {
		return hdfs.OpenOptions{}, err
	}
	blockSize, err := parseSize("block_size", c.IO.BlockSize, math.MaxInt64)
	if err != nil {
		return hdfs.OpenOptions{}, err
	}
	if c.IO.Replication < 0 || c.IO.Replication > math.MaxInt16 {
		return hdfs.OpenOptions{}, fmt.Errorf("invalid replication: %d", c.IO.Replication)
	}

	return hdfs.OpenOptions{
		BufferSize:  int(bufferSize),
		Replication: int16(c.IO.Replication),
		BlockSize:   blockSize,
	}, nil
}

// NewLogger builds the structured logger described by the global section.
func (c *Configuration) NewLogger() (*utils.StructuredLogger, error) {
	level, err := utils.ParseLogLevel(c.Global.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := utils.ParseLogFormat(c.Global.LogFormat)
	if err != nil {
		return nil, err
	}

	loggerConfig := utils.DefaultStructuredLoggerConfig()
	loggerConfig.Level = level
	loggerConfig.Format = format
	loggerConfig.File = c.Global.LogFile

	return utils.NewStructuredLogger(loggerConfig)
}

// NewCollector builds the metrics collector. A disabled collector is
// returned when metrics are off so callers never need a nil check.
func (c *Configuration) NewCollector() (*metrics.Collector, error) {
	labels := make(map[string]string, len(c.Metrics.Labels))
	for k, v := range c.Metrics.Labels {
		labels[k] = v
	}
	return metrics.NewCollector(&metrics.Config{
		Enabled:   c.Metrics.Enabled,
		Path:      c.Metrics.Path,
		Namespace: c.Metrics.Namespace,
		Subsystem: c.Metrics.Subsystem,
		Labels:    labels,
	})
}

// Connect validates the configuration and opens a connection carrying the
// configured logger and collector. A nil driver uses the one registered
// with native.Init.
func (c *Configuration) Connect(driver native.Driver) (*hdfs.Connection, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, err := c.NewLogger()
	if err != nil {
		return nil, err
	}
	collector, err := c.NewCollector()
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	opts := c.ConnectOptions()
	opts.Logger = logger
	opts.Metrics = collector
	opts.Driver = driver
	conn, err := hdfs.Connect(opts)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return conn, nil
}
