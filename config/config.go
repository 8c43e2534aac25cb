// Package config loads the speakd runtime configuration: built-in defaults
// optionally overridden by a JSON file, section by section.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"speakd/log"
)

const (
	DefaultMaxSessionBytes = 20 * 1024 * 1024
	DefaultSampleRate      = 16000
	DefaultBlockMs         = 20
)

type Config struct {
	Audio       AudioConfig       `mapstructure:"audio"`
	ASR         ASRConfig         `mapstructure:"asr"`
	Postprocess PostprocessConfig `mapstructure:"postprocess"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type AudioConfig struct {
	SampleRate int    `mapstructure:"sample_rate"`
	BlockMs    int    `mapstructure:"block_ms"`
	Device     string `mapstructure:"device"`
	// Hard ceiling on one session's raw PCM. Reaching it stops the
	// recording automatically.
	MaxSessionBytes int64  `mapstructure:"max_session_bytes"`
	ArtifactFormat  string `mapstructure:"artifact_format"`
	// Cues plays short start/stop ticks through the default output.
	Cues bool `mapstructure:"cues"`
}

// ASRConfig is forwarded verbatim to the transcription engine.
type ASRConfig struct {
	UseVAD     bool    `mapstructure:"use_vad"`
	UsePunc    bool    `mapstructure:"use_punc"`
	Language   string  `mapstructure:"language"`
	Hotword    string  `mapstructure:"hotword"`
	BatchSizeS float64 `mapstructure:"batch_size_s"`
	Endpoint   string  `mapstructure:"endpoint"`
}

type PostprocessConfig struct {
	CaseInsensitive bool `mapstructure:"case_insensitive"`
	// Rules hold the replace_map entries in their declared order.
	// Populated from the raw file, not by viper (JSON objects lose
	// ordering through a map).
	Rules []Rule `mapstructure:"-"`
}

// Rule is one find-replace correction entry.
type Rule struct {
	From string
	To   string
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("audio.sample_rate", DefaultSampleRate)
	v.SetDefault("audio.block_ms", DefaultBlockMs)
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.max_session_bytes", DefaultMaxSessionBytes)
	v.SetDefault("audio.artifact_format", "wav")
	v.SetDefault("audio.cues", false)
	v.SetDefault("asr.use_vad", false)
	v.SetDefault("asr.use_punc", true)
	v.SetDefault("asr.language", "zh")
	v.SetDefault("asr.hotword", "")
	v.SetDefault("asr.batch_size_s", 60.0)
	v.SetDefault("asr.endpoint", "")
	v.SetDefault("postprocess.case_insensitive", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration from a JSON file if provided, otherwise
// returns defaults. Overrides are merged over defaults key by key.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	var raw []byte
	if path != "" {
		expanded := expandHome(path)
		data, err := os.ReadFile(expanded)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", expanded, err)
		}
		raw = data
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", expanded, err)
		}
	}

	// Malformed limits should fall back to the default, not fail the
	// whole load. cast maps them to 0, which sanitize recovers from.
	v.Set("audio.max_session_bytes", v.GetInt64("audio.max_session_bytes"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if raw != nil {
		rules, err := decodeReplaceMap(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding replace_map: %w", err)
		}
		cfg.Postprocess.Rules = rules
	}

	cfg.sanitize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// sanitize recovers from invalid numeric limits rather than failing: a bad
// max_session_bytes falls back to the 20 MiB default with a warning.
func (c *Config) sanitize() {
	if c.Audio.MaxSessionBytes <= 0 {
		log.Warnf("audio.max_session_bytes invalid (%d), falling back to %d",
			c.Audio.MaxSessionBytes, int64(DefaultMaxSessionBytes))
		c.Audio.MaxSessionBytes = DefaultMaxSessionBytes
	}
}

func (c *Config) validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.BlockMs <= 0 {
		return fmt.Errorf("audio.block_ms must be positive, got %d", c.Audio.BlockMs)
	}
	switch c.Audio.ArtifactFormat {
	case "wav", "flac":
	default:
		return fmt.Errorf("audio.artifact_format must be wav or flac, got %q", c.Audio.ArtifactFormat)
	}
	return nil
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
