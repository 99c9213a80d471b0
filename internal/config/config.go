package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the full application configuration
type Config struct {
	Env     string        `yaml:"env" env:"APP_ENV" env-default:"production"`
	Log     LogConfig     `yaml:"log"`
	Tracker TrackerConfig `yaml:"tracker"`
	Report  ReportConfig  `yaml:"report"`
	Photo   PhotoConfig   `yaml:"photo"`
	Storage StorageConfig `yaml:"storage"`
	Resend  ResendConfig  `yaml:"resend"`
	Tray    TrayConfig    `yaml:"tray"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

// TrackerConfig holds settings for the local ActivityWatch service
type TrackerConfig struct {
	BaseURL    string `yaml:"base_url" env:"AW_BASE_URL" env-default:"http://localhost:5600/api/0"`
	TimeoutSec int    `yaml:"timeout_sec" env:"AW_TIMEOUT_SEC" env-default:"20"`
	EventLimit int    `yaml:"event_limit" env:"AW_EVENT_LIMIT" env-default:"200000"`
}

// ReportConfig holds settings for the report ingestion API
type ReportConfig struct {
	ServerURL      string `yaml:"server_url" env:"REPORT_SERVER_URL" env-default:"https://aw.appfastway.com"`
	IngestPath     string `yaml:"ingest_path" env:"REPORT_INGEST_PATH" env-default:"/reports"`
	TimeoutSec     int    `yaml:"timeout_sec" env:"REPORT_TIMEOUT_SEC" env-default:"20"`
	TopTitlesLimit int    `yaml:"top_titles_limit" env:"REPORT_TOP_TITLES" env-default:"5"`
	TopURLsLimit   int    `yaml:"top_urls_limit" env:"REPORT_TOP_URLS" env-default:"5"`
}

// PhotoConfig holds settings for the attendance photo API
type PhotoConfig struct {
	APIURL        string   `yaml:"api_url" env:"PHOTO_API_URL" env-default:"https://app.appfastway.com"`
	IngestPath    string   `yaml:"ingest_path" env:"PHOTO_INGEST_PATH" env-default:"/app/marcacion/auto"`
	FileField     string   `yaml:"file_field" env:"PHOTO_FILE_FIELD" env-default:"file"`
	AllowedExt    []string `yaml:"allowed_ext" env:"PHOTO_ALLOWED_EXT" env-default:"jpg,jpeg,png,webp"`
	MaxMB         float64  `yaml:"max_mb" env:"PHOTO_MAX_MB" env-default:"8"`
	DefaultUmbral float64  `yaml:"default_umbral" env:"PHOTO_DEFAULT_UMBRAL" env-default:"0.55"`
	AuthToken     string   `yaml:"auth_token" env:"PHOTO_AUTH_TOKEN" env-default:""`
	TimeoutSec    int      `yaml:"timeout_sec" env:"PHOTO_TIMEOUT_SEC" env-default:"20"`
}

// StorageConfig holds local storage locations. Empty values are resolved
// to per-user defaults at load time.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir" env:"DATA_DIR" env-default:""`
	DesktopDir string `yaml:"desktop_dir" env:"DESKTOP_DIR" env-default:""`
}

// ResendConfig controls the scheduled pending-queue sweep
type ResendConfig struct {
	IntervalSec int `yaml:"interval_sec" env:"RESEND_INTERVAL_SEC" env-default:"0"`
}

// TrayConfig controls the system tray menu
type TrayConfig struct {
	Enabled bool `yaml:"enabled" env:"TRAY_ENABLED" env-default:"false"`
}

// LoadConfig loads configuration from the given YAML file, falling back to
// defaults and environment variables when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize cleans up URLs and resolves default storage locations
func (c *Config) normalize() error {
	c.Tracker.BaseURL = strings.TrimRight(c.Tracker.BaseURL, "/")
	c.Report.ServerURL = strings.TrimRight(c.Report.ServerURL, "/")
	c.Report.IngestPath = "/" + strings.TrimLeft(c.Report.IngestPath, "/")
	c.Photo.APIURL = strings.TrimRight(c.Photo.APIURL, "/")
	c.Photo.IngestPath = "/" + strings.TrimLeft(c.Photo.IngestPath, "/")

	if c.Storage.DataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			home, herr := os.UserHomeDir()
			if herr != nil {
				return fmt.Errorf("failed to resolve data directory: %w", err)
			}
			base = home
		}
		c.Storage.DataDir = filepath.Join(base, "ColectorAW")
	}

	if c.Storage.DesktopDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to resolve desktop directory: %w", err)
		}
		c.Storage.DesktopDir = filepath.Join(home, "Desktop")
	}

	return nil
}

// ReportEndpoint returns the full URL for report submissions
func (c *Config) ReportEndpoint() string {
	return c.Report.ServerURL + c.Report.IngestPath
}

// PhotoEndpoint returns the full URL for photo submissions
func (c *Config) PhotoEndpoint() string {
	return c.Photo.APIURL + c.Photo.IngestPath
}

// PendingDir is where failed report submissions are kept
func (s StorageConfig) PendingDir() string {
	return filepath.Join(s.DataDir, "pending")
}

// PendingPhotosDir is where failed photo submission metadata is kept
func (s StorageConfig) PendingPhotosDir() string {
	return filepath.Join(s.DataDir, "pending", "photos")
}

// PendingPhotoFilesDir is where retained copies of photo files are kept
func (s StorageConfig) PendingPhotoFilesDir() string {
	return filepath.Join(s.DataDir, "pending", "photos", "files")
}

// HistoryPath is the sqlite database holding the submission history
func (s StorageConfig) HistoryPath() string {
	return filepath.Join(s.DataDir, "history.db")
}

// EnsureDirs creates all storage directories
func (s StorageConfig) EnsureDirs() error {
	for _, dir := range []string{
		s.PendingDir(),
		s.PendingPhotosDir(),
		s.PendingPhotoFilesDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
