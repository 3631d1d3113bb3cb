package internal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// SenderConfig drives the burst emitting side. All durations are expressed in
// milliseconds so the TOML file stays plain numbers.
type SenderConfig struct {
	RemoteAddr      string  `mapstructure:"remote_addr"`
	TraceFile       string  `mapstructure:"trace_file"`
	Model           string  `mapstructure:"model"`
	VrApp           string  `mapstructure:"vr_app"`
	FrameRate       float64 `mapstructure:"frame_rate"`
	TargetRateMbps  float64 `mapstructure:"target_rate_mbps"`
	SizeMean        float64 `mapstructure:"size_mean"`
	SizeStddev      float64 `mapstructure:"size_stddev"`
	SizeMin         uint32  `mapstructure:"size_min"`
	IntervalJitter  float64 `mapstructure:"interval_jitter"`
	MaxFragmentSize int     `mapstructure:"max_fragment_size"`
	BurstSpread     float64 `mapstructure:"burst_spread"`
	Seed            int64   `mapstructure:"seed"`
	MaxBursts       int     `mapstructure:"max_bursts"`
	DurationMs      int     `mapstructure:"duration_ms"`
	LogLevel        string  `mapstructure:"log_level"`
}

// ReceiverConfig drives the reassembling side.
type ReceiverConfig struct {
	ListenAddr          string `mapstructure:"listen_addr"`
	ReassemblyTimeoutMs int    `mapstructure:"reassembly_timeout_ms"`
	ReadBufferSize      int    `mapstructure:"read_buffer_size"`
	OutcomeLog          string `mapstructure:"outcome_log"`
	MetricsAddr         string `mapstructure:"metrics_addr"`
	LogLevel            string `mapstructure:"log_level"`
}

func LoadSenderConfig(configPath string) (*SenderConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v, err := initViper(configPath, filepath.Join(home, ".bursty"), "sender_config", "toml", "BURSTY_SENDER")
	if err != nil {
		return nil, err
	}

	v.SetDefault("remote_addr", "127.0.0.1:24800")
	v.SetDefault("trace_file", "")
	v.SetDefault("model", "vr")
	v.SetDefault("vr_app", "VirusPopper")
	v.SetDefault("frame_rate", 60.0)
	v.SetDefault("target_rate_mbps", 20.0)
	v.SetDefault("size_mean", 50000.0)
	v.SetDefault("size_stddev", 10000.0)
	v.SetDefault("size_min", 24)
	v.SetDefault("interval_jitter", 0.1)
	v.SetDefault("max_fragment_size", 1400)
	v.SetDefault("burst_spread", 0.5)
	v.SetDefault("seed", 1)
	v.SetDefault("max_bursts", 0)
	v.SetDefault("duration_ms", 0)
	v.SetDefault("log_level", "info")

	var cfg SenderConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.TraceFile = expandPath(cfg.TraceFile)

	writePath := configPath
	if writePath == "" {
		writePath = filepath.Join(home, ".bursty", "sender_config.toml")
	}
	if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
		if _, err := cfg.Save(writePath); err != nil {
			return nil, fmt.Errorf("persist default sender config: %w", err)
		}
		Info("sender config written", Fields{
			ConfigPath: writePath,
		})
	}
	return &cfg, nil
}

func LoadReceiverConfig(configPath string) (*ReceiverConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	v, err := initViper(configPath, filepath.Join(home, ".bursty"), "receiver_config", "toml", "BURSTY_RECEIVER")
	if err != nil {
		return nil, err
	}

	v.SetDefault("listen_addr", "0.0.0.0:24800")
	v.SetDefault("reassembly_timeout_ms", 100)
	v.SetDefault("read_buffer_size", 64*1024)
	v.SetDefault("outcome_log", "")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")

	var cfg ReceiverConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.OutcomeLog = expandPath(cfg.OutcomeLog)

	writePath := configPath
	if writePath == "" {
		writePath = filepath.Join(home, ".bursty", "receiver_config.toml")
	}
	if _, statErr := os.Stat(writePath); errors.Is(statErr, os.ErrNotExist) {
		if _, err := cfg.Save(writePath); err != nil {
			return nil, fmt.Errorf("persist default receiver config: %w", err)
		}
		Info("receiver config written", Fields{
			ConfigPath: writePath,
		})
	}
	return &cfg, nil
}

func initViper(configPath, defaultDir, defaultName, defaultType, envPrefix string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType(defaultType)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultDir)
		v.AddConfigPath(".")
		v.SetConfigName(defaultName)
	}

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, os.ErrNotExist) {
			Error("config file unreadable", Fields{
				ConfigPath: configPath,
			})
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func (cfg *SenderConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, ".bursty", "sender_config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("remote_addr", cfg.RemoteAddr)
	v.Set("trace_file", cfg.TraceFile)
	v.Set("model", cfg.Model)
	v.Set("vr_app", cfg.VrApp)
	v.Set("frame_rate", cfg.FrameRate)
	v.Set("target_rate_mbps", cfg.TargetRateMbps)
	v.Set("size_mean", cfg.SizeMean)
	v.Set("size_stddev", cfg.SizeStddev)
	v.Set("size_min", cfg.SizeMin)
	v.Set("interval_jitter", cfg.IntervalJitter)
	v.Set("max_fragment_size", cfg.MaxFragmentSize)
	v.Set("burst_spread", cfg.BurstSpread)
	v.Set("seed", cfg.Seed)
	v.Set("max_bursts", cfg.MaxBursts)
	v.Set("duration_ms", cfg.DurationMs)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write sender config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func (cfg *ReceiverConfig) Save(path string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = filepath.Join(home, ".bursty", "receiver_config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("listen_addr", cfg.ListenAddr)
	v.Set("reassembly_timeout_ms", cfg.ReassemblyTimeoutMs)
	v.Set("read_buffer_size", cfg.ReadBufferSize)
	v.Set("outcome_log", cfg.OutcomeLog)
	v.Set("metrics_addr", cfg.MetricsAddr)
	v.Set("log_level", cfg.LogLevel)

	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write receiver config: %w", err)
	}
	_ = os.Chmod(path, 0o600)
	return path, nil
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}
