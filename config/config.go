package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// Config is the full runtime configuration of the bot. Every field can be
// set from the environment; a YAML file named by YTSAGE_CONFIG_FILE is
// loaded first and acts as a baseline the environment overrides.
type Config struct {
	BotToken    string `env:"YTSAGE_BOT_TOKEN" yaml:"bot_token"`
	DownloadDir string `env:"YTSAGE_DOWNLOAD_DIR" yaml:"download_dir"`
	MaxUploadMB int64  `env:"YTSAGE_MAX_UPLOAD_MB" yaml:"max_upload_mb"`

	AllowedChatIDs []int64 `env:"YTSAGE_ALLOWED_CHAT_IDS" yaml:"allowed_chat_ids"`
	WhitelistFile  string  `env:"YTSAGE_WHITELIST_FILE" yaml:"whitelist_file"`
	AttemptsFile   string  `env:"YTSAGE_ATTEMPTS_FILE" yaml:"attempts_file"`
	BetaEnabled    bool    `env:"YTSAGE_BETA_ENABLED" yaml:"beta_enabled"`
	AdminChatID    int64   `env:"YTSAGE_ADMIN_CHAT_ID" yaml:"admin_chat_id"`

	CleanupAfterSend bool `env:"YTSAGE_CLEANUP_AFTER_SEND" yaml:"cleanup_after_send"`

	DefaultResolution     string `env:"YTSAGE_DEFAULT_RESOLUTION" yaml:"default_resolution"`
	ForceAudioFormat      bool   `env:"YTSAGE_FORCE_AUDIO_FORMAT" yaml:"force_audio_format"`
	PreferredAudioFormat  string `env:"YTSAGE_PREFERRED_AUDIO_FORMAT" yaml:"preferred_audio_format"`
	ForceOutputFormat     bool   `env:"YTSAGE_FORCE_OUTPUT_FORMAT" yaml:"force_output_format"`
	PreferredOutputFormat string `env:"YTSAGE_PREFERRED_OUTPUT_FORMAT" yaml:"preferred_output_format"`

	CookieFile           string `env:"YTSAGE_COOKIE_FILE" yaml:"cookie_file"`
	BrowserCookies       string `env:"YTSAGE_COOKIES_FROM_BROWSER" yaml:"browser_cookies"`
	CookieAutoRefresh    bool   `env:"YTSAGE_COOKIE_AUTO_REFRESH" yaml:"cookie_auto_refresh"`
	CookieMaxAgeHours    int    `env:"YTSAGE_COOKIE_MAX_AGE_HOURS" yaml:"cookie_max_age_hours"`
	CookieRefreshCommand string `env:"YTSAGE_COOKIE_REFRESH_COMMAND" yaml:"cookie_refresh_command"`

	JSRuntime     string `env:"YTSAGE_JS_RUNTIME" yaml:"js_runtime"`
	AutoSetupDeno bool   `env:"YTSAGE_AUTO_SETUP_DENO" yaml:"auto_setup_deno"`

	MediaWriteTimeout      time.Duration `env:"YTSAGE_MEDIA_WRITE_TIMEOUT" yaml:"media_write_timeout"`
	MaxConcurrentDownloads int           `env:"YTSAGE_MAX_CONCURRENT_DOWNLOADS" yaml:"max_concurrent_downloads"`
	StatusAPIAddr          string        `env:"YTSAGE_STATUS_API_ADDR" yaml:"status_api_addr"`
}

var AppConfig *Config

// Load builds the configuration: defaults first, then the optional YAML
// file, then the environment on top.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("YTSAGE_CONFIG_FILE"); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("bot token is required (YTSAGE_BOT_TOKEN)")
	}
	if cfg.DownloadDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DownloadDir = filepath.Join(home, "Downloads")
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir: %w", err)
	}
	if cfg.WhitelistFile == "" {
		cfg.WhitelistFile = filepath.Join(cfg.DownloadDir, "whitelist.txt")
	}
	if cfg.AttemptsFile == "" {
		cfg.AttemptsFile = filepath.Join(cfg.DownloadDir, "beta_attempts.log")
	}

	AppConfig = cfg
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	dec := yaml.NewDecoder(file)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		MaxUploadMB:            49,
		CleanupAfterSend:       true,
		DefaultResolution:      "720",
		PreferredAudioFormat:   "best",
		PreferredOutputFormat:  "mp4",
		AutoSetupDeno:          true,
		MediaWriteTimeout:      5 * time.Minute,
		MaxConcurrentDownloads: 2,
		StatusAPIAddr:          ":50999",
	}
}

// CookieMaxAge returns the configured credential max age, or zero when the
// age check is disabled.
func (c *Config) CookieMaxAge() time.Duration {
	if c.CookieMaxAgeHours <= 0 {
		return 0
	}
	return time.Duration(c.CookieMaxAgeHours) * time.Hour
}

// MaxUploadBytes is the upload size ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB * 1024 * 1024
}
