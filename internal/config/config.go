package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

const (
	// DefaultConfigDir is the default configuration directory
	DefaultConfigDir = ".config/kartoza-capture"
	// DefaultVideosDir is the default output directory for recordings
	DefaultVideosDir = "Videos/Screencasts"
	// ConfigFileName is the name of the configuration file
	ConfigFileName = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. KCAPTURE_OUTPUT_DIR
	EnvPrefix = "KCAPTURE"
)

// Config holds the application configuration
type Config struct {
	OutputDir          string             `mapstructure:"output_dir" yaml:"output_dir"`
	TempDir            string             `mapstructure:"temp_dir" yaml:"temp_dir"`
	IndexPath          string             `mapstructure:"index_path" yaml:"index_path"`
	IncludeSystemAudio bool               `mapstructure:"include_system_audio" yaml:"include_system_audio"`
	IncludeMicrophone  bool               `mapstructure:"include_microphone" yaml:"include_microphone"`
	DefaultAudioDevice string             `mapstructure:"default_audio_device" yaml:"default_audio_device"`
	Quality            models.QualityTier `mapstructure:"quality" yaml:"quality"`
	FFmpegPath         string             `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`

	// Backend selection policy
	StrategyOrder    []string      `mapstructure:"strategy_order" yaml:"strategy_order"`
	NativeMinMacOS   string        `mapstructure:"native_min_macos" yaml:"native_min_macos"`
	CheckPermissions bool          `mapstructure:"check_permissions" yaml:"check_permissions"`
	FailureCooldown  time.Duration `mapstructure:"failure_cooldown" yaml:"failure_cooldown"`

	// Timeouts and intervals
	HandshakeTimeout   time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	DeviceQueryTimeout time.Duration `mapstructure:"device_query_timeout" yaml:"device_query_timeout"`
	ProgressInterval   time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`
	Retention          time.Duration `mapstructure:"retention" yaml:"retention"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// AgentListenAddr is where the control process accepts capture agent connections
	AgentListenAddr string `mapstructure:"agent_listen_addr" yaml:"agent_listen_addr"`
	// AgentMode is "embedded" (agent runs in-process) or "remote" (agent dials in)
	AgentMode string `mapstructure:"agent_mode" yaml:"agent_mode"`

	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		OutputDir:          GetDefaultVideosDir(),
		TempDir:            GetDefaultTempDir(),
		IndexPath:          filepath.Join(GetConfigDir(), "recordings.db"),
		IncludeSystemAudio: true,
		IncludeMicrophone:  true,
		Quality:            models.QualityMedium,
		FFmpegPath:         "ffmpeg",
		StrategyOrder:      []string{"native", "hybrid", "browser"},
		NativeMinMacOS:     "12.3",
		CheckPermissions:   true,
		FailureCooldown:    5 * time.Minute,
		HandshakeTimeout:   30 * time.Second,
		DeviceQueryTimeout: 5 * time.Second,
		ProgressInterval:   time.Second,
		Retention:          24 * time.Hour,
		CleanupInterval:    time.Hour,
		AgentListenAddr:    "127.0.0.1:47821",
		AgentMode:          "embedded",
	}
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultConfigDir
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetDefaultVideosDir returns the default videos directory path
func GetDefaultVideosDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultVideosDir
	}
	return filepath.Join(home, DefaultVideosDir)
}

// GetDefaultTempDir returns the directory for in-flight capture artifacts
func GetDefaultTempDir() string {
	return filepath.Join(os.TempDir(), "kartoza-capture")
}

// GetRuntimeDir returns the directory for daemon command and status files
func GetRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "kartoza-capture")
	}
	return filepath.Join(os.TempDir(), "kartoza-capture-run")
}

// EnsureDirectories creates the necessary directories
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		GetConfigDir(),
		c.OutputDir,
		c.TempDir,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// Strategies returns the configured strategy order, skipping unknown names
func (c *Config) Strategies() []models.StrategyKind {
	var kinds []models.StrategyKind
	for _, s := range c.StrategyOrder {
		if k, ok := models.ParseStrategyKind(s); ok {
			kinds = append(kinds, k)
		}
	}
	if len(kinds) == 0 {
		kinds = []models.StrategyKind{models.StrategyNative, models.StrategyHybrid, models.StrategyBrowser}
	}
	return kinds
}

// Validate checks values that would make the engine misbehave
func (c *Config) Validate() error {
	var errs []error
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must be set"))
	}
	if c.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("handshake_timeout must be positive"))
	}
	if c.DeviceQueryTimeout <= 0 {
		errs = append(errs, errors.New("device_query_timeout must be positive"))
	}
	if c.AgentMode != "embedded" && c.AgentMode != "remote" {
		errs = append(errs, fmt.Errorf("agent_mode must be embedded or remote, got %q", c.AgentMode))
	}
	switch c.Quality {
	case models.QualityLow, models.QualityMedium, models.QualityHigh:
	default:
		errs = append(errs, fmt.Errorf("unknown quality %q", c.Quality))
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("temp_dir", d.TempDir)
	v.SetDefault("index_path", d.IndexPath)
	v.SetDefault("include_system_audio", d.IncludeSystemAudio)
	v.SetDefault("include_microphone", d.IncludeMicrophone)
	v.SetDefault("default_audio_device", d.DefaultAudioDevice)
	v.SetDefault("quality", string(d.Quality))
	v.SetDefault("ffmpeg_path", d.FFmpegPath)
	v.SetDefault("strategy_order", d.StrategyOrder)
	v.SetDefault("native_min_macos", d.NativeMinMacOS)
	v.SetDefault("check_permissions", d.CheckPermissions)
	v.SetDefault("failure_cooldown", d.FailureCooldown)
	v.SetDefault("handshake_timeout", d.HandshakeTimeout)
	v.SetDefault("device_query_timeout", d.DeviceQueryTimeout)
	v.SetDefault("progress_interval", d.ProgressInterval)
	v.SetDefault("retention", d.Retention)
	v.SetDefault("cleanup_interval", d.CleanupInterval)
	v.SetDefault("agent_listen_addr", d.AgentListenAddr)
	v.SetDefault("agent_mode", d.AgentMode)
	v.SetDefault("debug", false)
}

// Load loads the configuration from cfgFile, or from the default location when empty.
// A missing file yields the defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(GetConfigDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to path, or to the default location when empty
func Save(cfg *Config, path string) error {
	if path == "" {
		path = filepath.Join(GetConfigDir(), ConfigFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	v.Set("output_dir", cfg.OutputDir)
	v.Set("temp_dir", cfg.TempDir)
	v.Set("index_path", cfg.IndexPath)
	v.Set("include_system_audio", cfg.IncludeSystemAudio)
	v.Set("include_microphone", cfg.IncludeMicrophone)
	v.Set("default_audio_device", cfg.DefaultAudioDevice)
	v.Set("quality", string(cfg.Quality))
	v.Set("ffmpeg_path", cfg.FFmpegPath)
	v.Set("strategy_order", cfg.StrategyOrder)
	v.Set("native_min_macos", cfg.NativeMinMacOS)
	v.Set("check_permissions", cfg.CheckPermissions)
	v.Set("failure_cooldown", cfg.FailureCooldown.String())
	v.Set("handshake_timeout", cfg.HandshakeTimeout.String())
	v.Set("device_query_timeout", cfg.DeviceQueryTimeout.String())
	v.Set("progress_interval", cfg.ProgressInterval.String())
	v.Set("retention", cfg.Retention.String())
	v.Set("cleanup_interval", cfg.CleanupInterval.String())
	v.Set("agent_listen_addr", cfg.AgentListenAddr)
	v.Set("agent_mode", cfg.AgentMode)
	v.Set("debug", cfg.Debug)

	v.SetConfigType("yaml")
	return v.WriteConfigAs(path)
}
