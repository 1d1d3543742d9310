// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/modisfetch/internal/domain"
)

// Source types.
const (
	SourceFTP   = "ftp"
	SourceHTTP  = "http"
	SourceS3    = "s3"
	SourceAzure = "azure"
	SourceLocal = "local"
)

// Config holds all application configuration.
type Config struct {
	Source     SourceConfig     `mapstructure:"source"`
	Download   DownloadConfig   `mapstructure:"download"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Validation ValidationConfig `mapstructure:"validation"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Server     ServerConfig     `mapstructure:"server"`
	Sync       SyncConfig       `mapstructure:"sync"`
	TLS        TLSConfig        `mapstructure:"tls"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SourceConfig describes the remote archive.
type SourceConfig struct {
	Type      string        `mapstructure:"type"`    // ftp, http, s3, azure, local; empty derives it from url
	URL       string        `mapstructure:"url"`     // e.g. https://e4ftl01.cr.usgs.gov
	Folder    string        `mapstructure:"folder"`  // e.g. MOLT, MOLA, MOTA
	Product   string        `mapstructure:"product"` // e.g. MOD11A1.061
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	LocalPath string        `mapstructure:"local_path"` // Mirror root for the local source
	S3        S3Config      `mapstructure:"s3"`
	Azure     AzureConfig   `mapstructure:"azure"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// DownloadConfig describes what to download and where to.
type DownloadConfig struct {
	Destination string   `mapstructure:"destination"`
	Tiles       string   `mapstructure:"tiles"`  // Comma separated, empty for all
	Points      []string `mapstructure:"points"` // "lat,lon" pairs added to the tiles
	FirstDay    string   `mapstructure:"first_day"`
	EndDay      string   `mapstructure:"end_day"`
	Delta       int      `mapstructure:"delta"`
	AllDays     bool     `mapstructure:"all_days"`
	Previews    bool     `mapstructure:"previews"`
	Clean       bool     `mapstructure:"clean"`
	XMLOnly     bool     `mapstructure:"xml_only"`
	DryRun      bool     `mapstructure:"dry_run"`
	Manifest    string   `mapstructure:"manifest"` // Defaults to listfile{product}.txt in the destination
}

// RetryConfig bounds transfer and connection retries.
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

// ValidationConfig selects the structural checks run on downloaded payloads.
type ValidationConfig struct {
	HDF        bool   `mapstructure:"hdf"`
	GDAL       bool   `mapstructure:"gdal"`
	GDALBinary string `mapstructure:"gdal_binary"`
}

// ArchiveConfig holds the archive index configuration.
type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"` // Defaults to .modisfetch.db in the destination
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"` // e.g., ["https://example.com", "*.sub.domain.tld"]
}

// Enabled returns true if CORS is configured with at least one allowed origin.
func (c *CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// SyncConfig holds the scheduler configuration of serve mode.
type SyncConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	RunOnStart bool          `mapstructure:"run_on_start"`
	Watch      bool          `mapstructure:"watch"` // Resync when granule files are deleted locally
}

// TLSConfig holds TLS/CertMagic configuration.
type TLSConfig struct {
	Enabled  bool         `mapstructure:"enabled"`
	Domains  []string     `mapstructure:"domains"`
	Email    string       `mapstructure:"email"`
	CacheDir string       `mapstructure:"cache_dir"`
	Staging  bool         `mapstructure:"staging"` // Use Let's Encrypt staging
	DNS      TLSDNSConfig `mapstructure:"dns"`
}

// TLSDNSConfig holds the Azure DNS settings for DNS-01 challenges.
type TLSDNSConfig struct {
	SubscriptionID    string `mapstructure:"subscription_id"`
	ResourceGroupName string `mapstructure:"resource_group_name"`
	ClientID          string `mapstructure:"client_id"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Path     string `mapstructure:"path"`
	Textfile string `mapstructure:"textfile"` // node_exporter textfile written after CLI runs
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	File   string `mapstructure:"file"`   // Optional copy of the log output
}

// Defaults sets the default configuration values.
func Defaults() {
	// Source defaults
	viper.SetDefault("source.url", "https://e4ftl01.cr.usgs.gov")
	viper.SetDefault("source.folder", "MOLT")
	viper.SetDefault("source.product", "MOD11A1.061")
	viper.SetDefault("source.timeout", 5*time.Minute)
	viper.SetDefault("source.user_agent", "modisfetch")
	// Empty defaults make the keys visible to environment overrides
	for _, key := range []string{
		"source.type", "source.username", "source.password", "source.local_path",
		"source.s3.bucket", "source.s3.region", "source.s3.prefix", "source.s3.endpoint",
		"source.s3.access_key_id", "source.s3.secret_access_key",
		"source.azure.container", "source.azure.account_name", "source.azure.account_key",
		"source.azure.connection_string", "source.azure.prefix",
		"download.destination", "download.tiles", "download.first_day", "download.end_day",
		"download.manifest", "archive.path", "metrics.textfile", "logging.file",
	} {
		viper.SetDefault(key, "")
	}

	// Download defaults
	viper.SetDefault("download.delta", 10)

	// Retry defaults
	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("retry.connect_attempts", 20)
	viper.SetDefault("retry.initial_interval", time.Second)
	viper.SetDefault("retry.max_interval", 30*time.Second)

	// Validation defaults
	viper.SetDefault("validation.hdf", true)
	viper.SetDefault("validation.gdal", false)
	viper.SetDefault("validation.gdal_binary", "gdalinfo")

	// Archive defaults
	viper.SetDefault("archive.enabled", true)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.cors.allowed_origins", []string{})

	// Sync defaults
	viper.SetDefault("sync.interval", 6*time.Hour)
	viper.SetDefault("sync.run_on_start", true)
	viper.SetDefault("sync.watch", true)

	// TLS defaults
	viper.SetDefault("tls.enabled", false)
	viper.SetDefault("tls.cache_dir", "./.certmagic")
	viper.SetDefault("tls.staging", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	Defaults()

	// Environment variable binding
	viper.SetEnvPrefix("MODISFETCH")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Config file
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/modisfetch")
	}

	// Try to read config file (not required)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate validates the settings shared by every command.
func (c *Config) Validate() error {
	switch c.SourceType() {
	case SourceFTP, SourceHTTP:
		if _, err := url.Parse(c.ProductURL()); err != nil || c.Source.URL == "" {
			return &domain.ConfigError{Field: "source.url", Message: "a valid archive URL is required"}
		}
		if c.Source.Username == "" || c.Source.Password == "" {
			return &domain.ConfigError{Field: "source.username", Message: "FTP and HTTP archives require username and password"}
		}
	case SourceS3:
		if c.Source.S3.Bucket == "" {
			return &domain.ConfigError{Field: "source.s3.bucket", Message: "S3 bucket is required"}
		}
		if c.Source.S3.Region == "" {
			return &domain.ConfigError{Field: "source.s3.region", Message: "S3 region is required"}
		}
	case SourceAzure:
		if c.Source.Azure.Container == "" {
			return &domain.ConfigError{Field: "source.azure.container", Message: "azure container is required"}
		}
		if c.Source.Azure.AccountName == "" && c.Source.Azure.ConnectionString == "" {
			return &domain.ConfigError{Field: "source.azure", Message: "azure account name or connection string is required"}
		}
	case SourceLocal:
		if c.Source.LocalPath == "" {
			return &domain.ConfigError{Field: "source.local_path", Message: "local mirror path is required"}
		}
	default:
		return &domain.ConfigError{Field: "source.type", Message: fmt.Sprintf("unknown source type %q", c.SourceType())}
	}

	if c.Source.Product == "" {
		return &domain.ConfigError{Field: "source.product", Message: "product is required"}
	}

	if c.Download.Destination == "" {
		return &domain.ConfigError{Field: "download.destination", Message: "destination directory is required"}
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.ConnectAttempts < 1 {
		return &domain.ConfigError{Field: "retry", Message: "attempts must be at least 1"}
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return &domain.ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	return c.validateWindow()
}

// ValidateServer validates the settings used by serve mode.
func (c *Config) ValidateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Message: fmt.Sprintf("invalid server port: %d", c.Server.Port)}
	}

	if c.Sync.Interval <= 0 {
		return &domain.ConfigError{Field: "sync.interval", Message: "interval must be positive"}
	}

	if c.TLS.Enabled {
		if len(c.TLS.Domains) == 0 {
			return &domain.ConfigError{Field: "tls.domains", Message: "TLS enabled but no domains specified"}
		}
		if c.TLS.Email == "" {
			return &domain.ConfigError{Field: "tls.email", Message: "TLS enabled but no email specified"}
		}
	}

	return nil
}

func (c *Config) validateWindow() error {
	first, end, err := c.Download.Window()
	if err != nil {
		return err
	}
	if end != nil && !first.IsZero() && domain.DaysBetween(*end, first) < 0 {
		return fmt.Errorf("%w: %s is after %s", domain.ErrEndAfterToday, c.Download.EndDay, c.Download.FirstDay)
	}
	if end == nil && !c.Download.AllDays && c.Download.Delta < 1 {
		return fmt.Errorf("%w: must be at least 1, got %d", domain.ErrInvalidDelta, c.Download.Delta)
	}
	return nil
}

// SourceType returns the configured source type, derived from the URL
// scheme when not set.
func (c *Config) SourceType() string {
	if c.Source.Type != "" {
		return strings.ToLower(c.Source.Type)
	}
	u, err := url.Parse(c.Source.URL)
	if err != nil {
		return ""
	}
	switch strings.ToLower(u.Scheme) {
	case "ftp":
		return SourceFTP
	case "http", "https":
		return SourceHTTP
	default:
		return ""
	}
}

// ProductPath returns folder/product, the relative location of the product.
func (c *Config) ProductPath() string {
	return path.Join(c.Source.Folder, c.Source.Product)
}

// ProductURL returns the URL of the product directory.
func (c *Config) ProductURL() string {
	return strings.TrimSuffix(c.Source.URL, "/") + "/" + c.ProductPath()
}

// ProductName returns the product short name, e.g. MOD11A1 for MOD11A1.061.
func (c *Config) ProductName() string {
	name, _, _ := strings.Cut(c.Source.Product, ".")
	return name
}

// ProductVersion returns the collection, e.g. 061 for MOD11A1.061.
func (c *Config) ProductVersion() string {
	_, version, _ := strings.Cut(c.Source.Product, ".")
	return version
}

// ArchivePath returns the archive index location.
func (c *Config) ArchivePath() string {
	if c.Archive.Path != "" {
		return c.Archive.Path
	}
	return filepath.Join(c.Download.Destination, ".modisfetch.db")
}

// Window parses the first and end day. A zero first day means today.
func (d *DownloadConfig) Window() (first time.Time, end *time.Time, err error) {
	if d.FirstDay != "" {
		first, err = domain.ParseDate(d.FirstDay)
		if err != nil {
			return time.Time{}, nil, err
		}
	}
	if d.EndDay != "" {
		e, err := domain.ParseDate(d.EndDay)
		if err != nil {
			return time.Time{}, nil, err
		}
		end = &e
	}
	return first, end, nil
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
