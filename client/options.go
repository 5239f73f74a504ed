package client

import (
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/configor"

	"github.com/dan-strohschein/arangodb-drivers/transport"
)

// ConnectionOptions configures a Connection.
//
// Durations are plain milliseconds so they can be set from YAML, TOML, JSON
// and ARANGO_* environment variables alike.
type ConnectionOptions struct {
	// Endpoint is the server base URL.
	// Default: "http://localhost:8529"
	Endpoint string `default:"http://localhost:8529" yaml:"endpoint" json:"endpoint" toml:"endpoint"`

	// Database is the database every request is scoped to.
	// Default: "_system"
	Database string `default:"_system" yaml:"database" json:"database" toml:"database"`

	// TimeoutMs bounds each physical request in milliseconds.
	// Default: 30000
	TimeoutMs int `default:"30000" yaml:"timeout_ms" json:"timeout_ms" toml:"timeout_ms"`

	// DebugMode enables verbose error formatting and raw request logging.
	// Default: false
	DebugMode bool `yaml:"debug_mode" json:"debug_mode" toml:"debug_mode"`

	// LogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	LogLevel string `default:"INFO" yaml:"log_level" json:"log_level" toml:"log_level"`

	// DefaultBatchSize is the cursor page size used when a statement or
	// export sets none.
	// Default: 1000
	DefaultBatchSize int `default:"1000" yaml:"default_batch_size" json:"default_batch_size" toml:"default_batch_size"`

	// BatchPath is the database-relative path of the batch endpoint.
	// Default: "/_api/batch"
	BatchPath string `default:"/_api/batch" yaml:"batch_path" json:"batch_path" toml:"batch_path"`

	// ParseCacheSize is the number of query parse results Statement.Validate
	// keeps. Zero disables the cache.
	// Default: 0
	ParseCacheSize int `yaml:"parse_cache_size" json:"parse_cache_size" toml:"parse_cache_size"`

	// Headers are sent with every physical request.
	Headers map[string]string `yaml:"headers" json:"headers" toml:"headers"`

	// Logger is the logger implementation to use.
	// If nil, a JSON lines logger at LogLevel is used.
	Logger Logger `yaml:"-" json:"-" toml:"-"`

	// Transport replaces the REST transport built from Endpoint.
	Transport transport.Transport `yaml:"-" json:"-" toml:"-"`
}

// DefaultOptions returns ConnectionOptions with default values.
func DefaultOptions() ConnectionOptions {
	return ConnectionOptions{
		Endpoint:         "http://localhost:8529",
		Database:         "_system",
		TimeoutMs:        30000,
		LogLevel:         "INFO",
		DefaultBatchSize: 1000,
		BatchPath:        "/_api/batch",
	}
}

// LoadOptions reads options from the given YAML/JSON/TOML files, then from
// ARANGO_* environment variables (ARANGO_ENDPOINT, ARANGO_DATABASE, ...).
// Unset fields take their defaults.
func LoadOptions(files ...string) (ConnectionOptions, error) {
	var opts ConnectionOptions
	loader := configor.New(&configor.Config{ENVPrefix: "ARANGO"})
	if err := loader.Load(&opts, files...); err != nil {
		return opts, ErrInvalidOption("config", strings.Join(files, ","), err.Error())
	}
	return opts, opts.Validate()
}

// Validate checks option values.
func (o *ConnectionOptions) Validate() error {
	if o.Endpoint == "" {
		return ErrInvalidOption("Endpoint", o.Endpoint, "must not be empty")
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidOption("Endpoint", o.Endpoint, "must be an http:// or https:// URL")
	}
	if o.Database == "" {
		return ErrInvalidOption("Database", o.Database, "must not be empty")
	}
	if o.TimeoutMs < 0 {
		return ErrInvalidOption("TimeoutMs", o.TimeoutMs, "must not be negative")
	}
	if o.DefaultBatchSize < 0 {
		return ErrInvalidOption("DefaultBatchSize", o.DefaultBatchSize, "must not be negative")
	}
	if o.ParseCacheSize < 0 {
		return ErrInvalidOption("ParseCacheSize", o.ParseCacheSize, "must not be negative")
	}
	if o.BatchPath != "" && !strings.HasPrefix(o.BatchPath, "/") {
		return ErrInvalidOption("BatchPath", o.BatchPath, "must start with /")
	}
	return nil
}

// Timeout returns TimeoutMs as a duration.
func (o *ConnectionOptions) Timeout() time.Duration {
	return time.Duration(o.TimeoutMs) * time.Millisecond
}

// withDefaults fills zero values that have a default.
func (o ConnectionOptions) withDefaults() ConnectionOptions {
	def := DefaultOptions()
	if o.Endpoint == "" {
		o.Endpoint = def.Endpoint
	}
	if o.Database == "" {
		o.Database = def.Database
	}
	if o.TimeoutMs == 0 {
		o.TimeoutMs = def.TimeoutMs
	}
	if o.LogLevel == "" {
		o.LogLevel = def.LogLevel
	}
	if o.DefaultBatchSize == 0 {
		o.DefaultBatchSize = def.DefaultBatchSize
	}
	if o.BatchPath == "" {
		o.BatchPath = def.BatchPath
	}
	return o
}
