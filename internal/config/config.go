package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RootConfig mirrors the on-disk layout: named profiles plus the one selected by default.
type RootConfig struct {
	ActiveConfig string             `mapstructure:"active_config" yaml:"active_config"`
	Configs      map[string]*Config `mapstructure:"configs" yaml:"configs"`
}

type Config struct {
	Channel   ChannelConfig   `mapstructure:"channel" yaml:"channel"`
	Upload    UploadConfig    `mapstructure:"upload" yaml:"upload"`
	Recording RecordingConfig `mapstructure:"recording" yaml:"recording"`
	Playback  PlaybackConfig  `mapstructure:"playback" yaml:"playback"`
	Panel     PanelConfig     `mapstructure:"panel" yaml:"panel"`

	// Profile is the resolved profile name, filled in by LoadWithProfile
	Profile string `mapstructure:"-" yaml:"profile"`

	// explicit holds the boolean keys the profile wrote, so "false" can override "true"
	explicit map[string]bool
}

// boolKeys are the boolean settings a profile may switch either way
var boolKeys = []string{"channel.report_status", "panel.enabled"}

// overrides reports whether the profile sets key to a value that must win over base
func (c *Config) overrides(key string, value bool) bool {
	return value || c.explicit[key]
}

type ChannelConfig struct {
	URL              string        `mapstructure:"url" yaml:"url"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	ReportStatus     bool          `mapstructure:"report_status" yaml:"report_status"`
}

type UploadConfig struct {
	URL         string        `mapstructure:"url" yaml:"url"`
	Field       string        `mapstructure:"field" yaml:"field"`
	Filename    string        `mapstructure:"filename" yaml:"filename"`
	ContentType string        `mapstructure:"content_type" yaml:"content_type"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"` // 0 means no timeout
}

type RecordingConfig struct {
	Directory   string        `mapstructure:"directory" yaml:"directory"`
	Filename    string        `mapstructure:"filename" yaml:"filename"`
	InputFormat string        `mapstructure:"input_format" yaml:"input_format"` // ffmpeg -f value: "pulse", "avfoundation", "dshow"
	InputDevice string        `mapstructure:"input_device" yaml:"input_device"`
	SampleRate  int           `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels    int           `mapstructure:"channels" yaml:"channels"`
	Codec       string        `mapstructure:"codec" yaml:"codec"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

type PlaybackConfig struct {
	Player string `mapstructure:"player" yaml:"player"` // empty picks the first available
}

type PanelConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    string `mapstructure:"port" yaml:"port"`
}

// ArtifactPath is the single file every recording session overwrites.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Recording.Directory, c.Recording.Filename)
}

// Default returns the built-in configuration used when no file exists.
func Default() *Config {
	format, device := defaultInput()
	return &Config{
		Channel: ChannelConfig{
			URL:              "ws://localhost:3002",
			HandshakeTimeout: 30 * time.Second,
		},
		Upload: UploadConfig{
			URL:         "http://localhost:3002/audiodata",
			Field:       "audio",
			Filename:    "recording.m4a",
			ContentType: "audio/m4a",
		},
		Recording: RecordingConfig{
			Directory:   DefaultDataDir(),
			Filename:    "recording.m4a",
			InputFormat: format,
			InputDevice: device,
			SampleRate:  44100,
			Channels:    2,
			Codec:       "aac",
			StopTimeout: 5 * time.Second,
		},
		Panel: PanelConfig{
			Port: "8080",
		},
		Profile: "default",
	}
}

func defaultInput() (format, device string) {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation", ":0"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

// DefaultDataDir is the per-user application data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Application Support", "remotecapture")
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "remotecapture")
	}
	return filepath.Join(home, ".local", "share", "remotecapture")
}

// LoadWithProfile resolves the named profile (or active_config, or "default")
// from configFile. A missing file yields the built-in defaults.
func LoadWithProfile(configFile, profile string) (*Config, error) {
	rootConfig, err := readRootConfig(configFile)
	if err != nil {
		return nil, err
	}

	configName := profile
	if configName == "" {
		configName = rootConfig.ActiveConfig
	}
	if configName == "" {
		configName = "default"
	}

	base := Default()
	if defaultProfile, exists := rootConfig.Configs["default"]; exists && defaultProfile != nil {
		base = mergeConfigs(base, defaultProfile)
	}

	selected := base
	if configName != "default" {
		selectedProfile, exists := rootConfig.Configs[configName]
		if !exists || selectedProfile == nil {
			return nil, fmt.Errorf("configuration profile '%s' not found", configName)
		}
		selected = mergeConfigs(base, selectedProfile)
	}
	selected.Profile = configName

	applyEnvOverrides(selected)
	selected.Recording.Directory = expandPath(selected.Recording.Directory)

	if err := selected.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return selected, nil
}

func readRootConfig(configFile string) (*RootConfig, error) {
	rootConfig := &RootConfig{}
	if configFile == "" {
		return rootConfig, nil
	}

	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		return rootConfig, nil
	}

	v := viper.New()
	v.SetConfigFile(configFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if err := v.Unmarshal(rootConfig); err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configFile, err)
	}

	for name, profile := range rootConfig.Configs {
		if profile == nil {
			continue
		}
		profile.explicit = make(map[string]bool)
		for _, key := range boolKeys {
			profile.explicit[key] = v.IsSet("configs." + name + "." + key)
		}
	}

	return rootConfig, nil
}

// applyEnvOverrides lets REMOTECAPTURE_* variables (or a .env file loaded
// beforehand) win over whatever the profile resolved to.
func applyEnvOverrides(cfg *Config) {
	env := viper.New()
	env.SetEnvPrefix("remotecapture")
	env.AutomaticEnv()

	if v := env.GetString("channel_url"); v != "" {
		cfg.Channel.URL = v
	}
	if v := env.GetString("upload_url"); v != "" {
		cfg.Upload.URL = v
	}
	if v := env.GetString("recording_directory"); v != "" {
		cfg.Recording.Directory = v
	}
}

// mergeConfigs layers profile over base: any non-zero profile field wins,
// as does a boolean the profile file sets explicitly.
func mergeConfigs(base, profile *Config) *Config {
	result := *base

	if profile.Channel.URL != "" {
		result.Channel.URL = profile.Channel.URL
	}
	if profile.Channel.HandshakeTimeout != 0 {
		result.Channel.HandshakeTimeout = profile.Channel.HandshakeTimeout
	}
	if profile.overrides("channel.report_status", profile.Channel.ReportStatus) {
		result.Channel.ReportStatus = profile.Channel.ReportStatus
	}

	if profile.Upload.URL != "" {
		result.Upload.URL = profile.Upload.URL
	}
	if profile.Upload.Field != "" {
		result.Upload.Field = profile.Upload.Field
	}
	if profile.Upload.Filename != "" {
		result.Upload.Filename = profile.Upload.Filename
	}
	if profile.Upload.ContentType != "" {
		result.Upload.ContentType = profile.Upload.ContentType
	}
	if profile.Upload.Timeout != 0 {
		result.Upload.Timeout = profile.Upload.Timeout
	}

	if profile.Recording.Directory != "" {
		result.Recording.Directory = profile.Recording.Directory
	}
	if profile.Recording.Filename != "" {
		result.Recording.Filename = profile.Recording.Filename
	}
	if profile.Recording.InputFormat != "" {
		result.Recording.InputFormat = profile.Recording.InputFormat
	}
	if profile.Recording.InputDevice != "" {
		result.Recording.InputDevice = profile.Recording.InputDevice
	}
	if profile.Recording.SampleRate != 0 {
		result.Recording.SampleRate = profile.Recording.SampleRate
	}
	if profile.Recording.Channels != 0 {
		result.Recording.Channels = profile.Recording.Channels
	}
	if profile.Recording.Codec != "" {
		result.Recording.Codec = profile.Recording.Codec
	}
	if profile.Recording.StopTimeout != 0 {
		result.Recording.StopTimeout = profile.Recording.StopTimeout
	}

	if profile.Playback.Player != "" {
		result.Playback.Player = profile.Playback.Player
	}

	if profile.overrides("panel.enabled", profile.Panel.Enabled) {
		result.Panel.Enabled = profile.Panel.Enabled
	}
	if profile.Panel.Port != "" {
		result.Panel.Port = profile.Panel.Port
	}

	return &result
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if err := validateURL("channel.url", c.Channel.URL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("upload.url", c.Upload.URL, "http", "https"); err != nil {
		return err
	}
	if c.Upload.Field == "" {
		return fmt.Errorf("upload.field is required")
	}
	if c.Upload.Filename == "" {
		return fmt.Errorf("upload.filename is required")
	}
	if c.Recording.Directory == "" {
		return fmt.Errorf("recording.directory is required")
	}
	if c.Recording.Filename == "" || strings.ContainsAny(c.Recording.Filename, `/\`) {
		return fmt.Errorf("recording.filename must be a plain file name, got '%s'", c.Recording.Filename)
	}
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("recording.sample_rate must be positive, got %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 || c.Recording.Channels > 2 {
		return fmt.Errorf("recording.channels must be 1 or 2, got %d", c.Recording.Channels)
	}
	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL '%s': %w", field, raw, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: '%s' must use one of %s", field, raw, strings.Join(schemes, ", "))
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
