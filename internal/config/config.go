// Package config loads and validates the Stellar Pixel configuration.
//
// Values come from three layers, later layers winning:
//  1. Default()
//  2. a YAML file (optional)
//  3. environment variables, including a .env file when present (credentials only)
//
// Normalize clamps every ranged value once, at load time, so the rest of the
// program can use the fields without re-checking them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MinCacheSize and MaxCacheSize bound the number of cached artifacts.
	MinCacheSize = 1
	MaxCacheSize = 500
	// DefaultCacheSize is used when the config does not set a size.
	DefaultCacheSize = 25

	// MinPaletteColors and MaxPaletteColors bound limit_colors when enabled.
	MinPaletteColors = 5
	MaxPaletteColors = 256
	// DefaultPaletteColors is used when limit_colors is set to true.
	DefaultPaletteColors = 32

	// MaxFont is the highest font index the display supports.
	MaxFont = 7

	ClockAlignLeft  = "left"
	ClockAlignRight = "right"

	AIModelFlux  = "flux"
	AIModelTurbo = "turbo"
	// DefaultAIModel is used when ai.model is missing or unsupported.
	DefaultAIModel = AIModelFlux

	// DefaultJobTimeout bounds one track-change job end to end.
	DefaultJobTimeout = 45 * time.Second
	// DefaultProviderTimeout bounds a single catalog provider attempt.
	DefaultProviderTimeout = 10 * time.Second
)

// Environment variables read on top of the file.
const (
	EnvSpotifyClientID     = "SPOTIFY_CLIENT_ID"
	EnvSpotifyClientSecret = "SPOTIFY_CLIENT_SECRET"
	EnvDiscogsToken        = "DISCOGS_TOKEN"
	EnvLastFMAPIKey        = "LASTFM_API_KEY"
	EnvMPDPassword         = "MPD_PASSWORD"
	EnvHostBaseURL         = "STELLAR_PIXEL_HOST_URL"
	EnvLogLevel            = "STELLAR_PIXEL_LOG_LEVEL"
	EnvCacheSize           = "STELLAR_PIXEL_CACHE_SIZE"
)

// Config holds all configuration values.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	Image     ImageConfig     `yaml:"image"`
	Providers ProvidersConfig `yaml:"providers"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Host      HostConfig      `yaml:"host"`
	MPD       MPDConfig       `yaml:"mpd"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// ServerConfig configures the HTTP / Socket.IO listener.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // empty = console only
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// CacheConfig configures the in-memory artwork cache.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// ImageConfig holds the image pipeline toggles.
type ImageConfig struct {
	Contrast    bool         `yaml:"contrast"`
	CropBorders bool         `yaml:"crop_borders"`
	CropExtra   bool         `yaml:"crop_extra"`
	LimitColors PaletteLimit `yaml:"limit_colors"`
	Clock       bool         `yaml:"clock"`
	ClockAlign  string       `yaml:"clock_align"`
	ShowText    bool         `yaml:"show_text"`
	Lyrics      bool         `yaml:"lyrics"`
	Font        int          `yaml:"font"`
	// FontPalette replaces the candidate text colors ("#rrggbb"). Empty = built in.
	FontPalette []string `yaml:"font_palette"`
}

// ProvidersConfig enables the optional art providers.
type ProvidersConfig struct {
	Spotify     SpotifyConfig     `yaml:"spotify"`
	Discogs     DiscogsConfig     `yaml:"discogs"`
	LastFM      LastFMConfig      `yaml:"lastfm"`
	MusicBrainz MusicBrainzConfig `yaml:"musicbrainz"`
	AI          AIConfig          `yaml:"ai"`
}

// SpotifyConfig holds client-credentials for the Spotify catalog.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether both credentials are present.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// DiscogsConfig holds the Discogs personal access token.
type DiscogsConfig struct {
	Token string `yaml:"token"`
}

// Enabled reports whether a token is present.
func (c DiscogsConfig) Enabled() bool { return c.Token != "" }

// LastFMConfig holds the Last.fm API key.
type LastFMConfig struct {
	APIKey string `yaml:"api_key"`
}

// Enabled reports whether an API key is present.
func (c LastFMConfig) Enabled() bool { return c.APIKey != "" }

// MusicBrainzConfig toggles the MusicBrainz / Cover Art Archive lookup.
type MusicBrainzConfig struct {
	Enabled bool `yaml:"enabled"`
}

// AIConfig configures AI image generation.
type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Force   bool   `yaml:"force"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// TimeoutConfig holds per-event and per-provider deadlines.
type TimeoutConfig struct {
	Job      time.Duration `yaml:"job"`
	Provider time.Duration `yaml:"provider"`
}

// HostConfig describes the home-automation host that supplies track metadata.
type HostConfig struct {
	// BaseURL is prepended to art references that are host-relative paths.
	BaseURL string `yaml:"base_url"`
}

// MPDConfig configures the optional MPD now-playing source.
type MPDConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	MusicDir string `yaml:"music_dir"`
	// Device is the display that shows MPD tracks. Empty = first device.
	Device string `yaml:"device"`
}

// DeviceConfig identifies one pixel display.
type DeviceConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// PaletteLimit is the limit_colors value: `false` (0, disabled) or a color count.
type PaletteLimit int

// UnmarshalYAML accepts either a boolean or an integer.
func (p *PaletteLimit) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!bool" {
		var on bool
		if err := value.Decode(&on); err != nil {
			return err
		}
		if on {
			*p = DefaultPaletteColors
		} else {
			*p = 0
		}
		return nil
	}

	var n int
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("limit_colors must be false or an integer: %w", err)
	}
	*p = PaletteLimit(n)
	return nil
}

// Enabled reports whether palette reduction is on.
func (p PaletteLimit) Enabled() bool { return p > 0 }

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Listen: ":3002"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Cache: CacheConfig{Size: DefaultCacheSize},
		Image: ImageConfig{
			Contrast:    true,
			CropBorders: true,
			Clock:       true,
			ClockAlign:  ClockAlignLeft,
		},
		Providers: ProvidersConfig{
			MusicBrainz: MusicBrainzConfig{Enabled: true},
			AI:          AIConfig{Model: DefaultAIModel},
		},
		Timeouts: TimeoutConfig{
			Job:      DefaultJobTimeout,
			Provider: DefaultProviderTimeout,
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
	}
}

// Load reads the YAML file at path (optional), applies environment overrides and
// normalizes the result. Adjustments made while clamping are returned as warnings.
func Load(path string) (*Config, []string, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	warnings := cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func (c *Config) applyEnv() {
	c.Providers.Spotify.ClientID = getEnvOrDefault(EnvSpotifyClientID, c.Providers.Spotify.ClientID)
	c.Providers.Spotify.ClientSecret = getEnvOrDefault(EnvSpotifyClientSecret, c.Providers.Spotify.ClientSecret)
	c.Providers.Discogs.Token = getEnvOrDefault(EnvDiscogsToken, c.Providers.Discogs.Token)
	c.Providers.LastFM.APIKey = getEnvOrDefault(EnvLastFMAPIKey, c.Providers.LastFM.APIKey)
	c.MPD.Password = getEnvOrDefault(EnvMPDPassword, c.MPD.Password)
	c.Host.BaseURL = getEnvOrDefault(EnvHostBaseURL, c.Host.BaseURL)
	c.Log.Level = getEnvOrDefault(EnvLogLevel, c.Log.Level)
	c.Cache.Size = parseIntEnv(EnvCacheSize, c.Cache.Size)
}

// Normalize clamps ranged values into their supported domains and snaps invalid
// enumerations to defaults. It returns one message per adjusted field.
func (c *Config) Normalize() []string {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	if size := clamp(c.Cache.Size, MinCacheSize, MaxCacheSize); size != c.Cache.Size {
		warn("cache.size %d out of range, using %d", c.Cache.Size, size)
		c.Cache.Size = size
	}

	if c.Image.LimitColors < 0 {
		warn("image.limit_colors %d is negative, disabling", c.Image.LimitColors)
		c.Image.LimitColors = 0
	} else if c.Image.LimitColors.Enabled() {
		n := PaletteLimit(clamp(int(c.Image.LimitColors), MinPaletteColors, MaxPaletteColors))
		if n != c.Image.LimitColors {
			warn("image.limit_colors %d out of range, using %d", c.Image.LimitColors, n)
			c.Image.LimitColors = n
		}
	}

	if font := clamp(c.Image.Font, 0, MaxFont); font != c.Image.Font {
		warn("image.font %d out of range, using %d", c.Image.Font, font)
		c.Image.Font = font
	}

	align := strings.ToLower(strings.TrimSpace(c.Image.ClockAlign))
	if align != ClockAlignLeft && align != ClockAlignRight {
		if align != "" {
			warn("image.clock_align %q unsupported, using %q", c.Image.ClockAlign, ClockAlignLeft)
		}
		align = ClockAlignLeft
	}
	c.Image.ClockAlign = align

	model := strings.ToLower(strings.TrimSpace(c.Providers.AI.Model))
	if model != AIModelFlux && model != AIModelTurbo {
		if model != "" {
			warn("providers.ai.model %q unsupported, using %q", c.Providers.AI.Model, DefaultAIModel)
		}
		model = DefaultAIModel
	}
	c.Providers.AI.Model = model

	if c.Timeouts.Job <= 0 {
		c.Timeouts.Job = DefaultJobTimeout
	}
	if c.Timeouts.Provider <= 0 {
		c.Timeouts.Provider = DefaultProviderTimeout
	}

	if c.MPD.Enabled && c.MPD.Device == "" && len(c.Devices) > 0 {
		c.MPD.Device = c.Devices[0].ID
	}

	return warnings
}

// Validate reports configuration errors that cannot be fixed by clamping.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("devices[%d]: id is required", i)
		}
		if d.Address == "" {
			return fmt.Errorf("devices[%d] (%s): address is required", i, d.ID)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}

	for i, hex := range c.Image.FontPalette {
		if !isHexColor(hex) {
			return fmt.Errorf("image.font_palette[%d]: %q is not a #rrggbb color", i, hex)
		}
	}

	if c.MPD.Enabled {
		if c.MPD.Port <= 0 || c.MPD.Port > 65535 {
			return fmt.Errorf("mpd.port %d is invalid", c.MPD.Port)
		}
		if len(c.Devices) > 0 && !seen[c.MPD.Device] {
			return fmt.Errorf("mpd.device %q is not a configured device", c.MPD.Device)
		}
	}

	return nil
}

// DeviceIDs returns the configured device IDs in order.
func (c *Config) DeviceIDs() []string {
	ids := make([]string, 0, len(c.Devices))
	for _, d := range c.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

func isHexColor(s string) bool {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return false
	}
	_, err := strconv.ParseUint(s, 16, 32)
	return err == nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// getEnvOrDefault returns the environment variable value or defaultValue when unset.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseIntEnv parses an integer environment variable, keeping defaultValue on error.
func parseIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
