package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/modisfetch/internal/domain"
)

func validConfig() *Config {
	return &Config{
		Source: SourceConfig{
			URL:      "https://e4ftl01.cr.usgs.gov",
			Folder:   "MOLT",
			Product:  "MOD11A1.061",
			Username: "user",
			Password: "secret",
		},
		Download: DownloadConfig{Destination: "/data/modis", Delta: 10},
		Retry:    RetryConfig{MaxAttempts: 5, ConnectAttempts: 20},
		Server:   ServerConfig{Port: 8080},
		Sync:     SyncConfig{Interval: time.Hour},
		Logging:  LoggingConfig{Format: "json"},
	}
}

func TestLoadDefaultsAndEnvironment(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("MODISFETCH_DOWNLOAD_DESTINATION", "/srv/modis")
	t.Setenv("MODISFETCH_SOURCE_USERNAME", "earthdata")
	t.Setenv("MODISFETCH_RETRY_MAX_ATTEMPTS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Download.Destination != "/srv/modis" || cfg.Source.Username != "earthdata" {
		t.Errorf("environment not applied: %+v", cfg.Download)
	}
	if cfg.Retry.MaxAttempts != 7 || cfg.Retry.ConnectAttempts != 20 {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Download.Delta != 10 || cfg.Source.Product != "MOD11A1.061" {
		t.Errorf("defaults not applied: %+v", cfg.Download)
	}
	if cfg.Sync.Interval != 6*time.Hour || !cfg.Validation.HDF {
		t.Errorf("defaults not applied: sync=%+v validation=%+v", cfg.Sync, cfg.Validation)
	}
}

func TestLoadConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), "modisfetch.yaml")
	content := `
source:
  url: ftp://ladsweb.example.org
  folder: allData/61
  product: MOD11A1
  username: user
  password: secret
download:
  destination: /tmp/modis
  tiles: h17v04,h18v04
  points: ["46.07,11.12"]
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SourceType() != SourceFTP {
		t.Errorf("SourceType() = %q, want ftp", cfg.SourceType())
	}
	if cfg.ProductURL() != "ftp://ladsweb.example.org/allData/61/MOD11A1" {
		t.Errorf("ProductURL() = %q", cfg.ProductURL())
	}
	if cfg.Download.Tiles != "h17v04,h18v04" || len(cfg.Download.Points) != 1 {
		t.Errorf("download = %+v", cfg.Download)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "valid", modify: func(*Config) {}},
		{
			name:    "missing destination",
			modify:  func(c *Config) { c.Download.Destination = "" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "http without credentials",
			modify:  func(c *Config) { c.Source.Password = "" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:   "ftp with credentials",
			modify: func(c *Config) { c.Source.URL = "ftp://example.org/MOLT" },
		},
		{
			name:    "ftp without credentials",
			modify:  func(c *Config) { c.Source.URL = "ftp://example.org/MOLT"; c.Source.Username = ""; c.Source.Password = "" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "ftp without password",
			modify:  func(c *Config) { c.Source.URL = "ftp://example.org/MOLT"; c.Source.Password = "" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "unknown scheme",
			modify:  func(c *Config) { c.Source.URL = "gopher://example.org" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "s3 without region",
			modify:  func(c *Config) { c.Source.Type = "s3"; c.Source.S3.Bucket = "modis" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "azure without account",
			modify:  func(c *Config) { c.Source.Type = "azure"; c.Source.Azure.Container = "modis" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:   "local mirror",
			modify: func(c *Config) { c.Source.Type = "local"; c.Source.LocalPath = "/mirror" },
		},
		{
			name:    "end day after first day",
			modify:  func(c *Config) { c.Download.FirstDay = "2020-01-10"; c.Download.EndDay = "2020-01-11" },
			wantErr: domain.ErrEndAfterToday,
		},
		{
			name:   "end day equals first day",
			modify: func(c *Config) { c.Download.FirstDay = "2020.01.10"; c.Download.EndDay = "2020-01-10" },
		},
		{
			name:    "bad date",
			modify:  func(c *Config) { c.Download.FirstDay = "10/01/2020" },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "zero delta",
			modify:  func(c *Config) { c.Download.Delta = 0 },
			wantErr: domain.ErrInvalidDelta,
		},
		{
			name:   "zero delta with all days",
			modify: func(c *Config) { c.Download.Delta = 0; c.Download.AllDays = true },
		},
		{
			name:    "zero attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: domain.ErrInvalidInput,
		},
		{
			name:    "unknown log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: domain.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServer(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateServer(); err != nil {
		t.Fatalf("ValidateServer() error = %v", err)
	}

	cfg.Server.Port = 70000
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected error for invalid port")
	}

	cfg = validConfig()
	cfg.TLS.Enabled = true
	var configErr *domain.ConfigError
	if err := cfg.ValidateServer(); !errors.As(err, &configErr) || configErr.Field != "tls.domains" {
		t.Errorf("ValidateServer() error = %v, want tls.domains", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := validConfig()

	if cfg.ProductName() != "MOD11A1" {
		t.Errorf("ProductName() = %q", cfg.ProductName())
	}
	if cfg.ProductVersion() != "061" {
		t.Errorf("ProductVersion() = %q", cfg.ProductVersion())
	}
	if cfg.ProductURL() != "https://e4ftl01.cr.usgs.gov/MOLT/MOD11A1.061" {
		t.Errorf("ProductURL() = %q", cfg.ProductURL())
	}
	if cfg.ArchivePath() != filepath.Join("/data/modis", ".modisfetch.db") {
		t.Errorf("ArchivePath() = %q", cfg.ArchivePath())
	}
	if cfg.Server.Address() != ":8080" {
		t.Errorf("Address() = %q", cfg.Server.Address())
	}

	first, end, err := cfg.Download.Window()
	if err != nil || !first.IsZero() || end != nil {
		t.Errorf("Window() = %v, %v, %v", first, end, err)
	}
}
