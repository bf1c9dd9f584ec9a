package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/relfs/relfs"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Engine EngineConfig `mapstructure:"engine"`
	Mount  MountConfig  `mapstructure:"mount"`
}

// EngineConfig stores tunables for the traversal, copy and remove engines.
type EngineConfig struct {
	// Verbose enables per-entry diagnostic logging during traversal.
	Verbose bool `mapstructure:"verbose"`

	// CopyBufferSize is the chunk size for the buffered copy fallback
	// when the kernel zero-copy path is unavailable.
	CopyBufferSize int `mapstructure:"copyBufferSize"`

	// MaxSymlinkHops bounds symlink chain resolution.
	MaxSymlinkHops int `mapstructure:"maxSymlinkHops"`

	// TempPrefix is prepended to staged directory names during copy.
	TempPrefix string `mapstructure:"tempPrefix"`

	// BatchWorkers is the worker count for batch operations.
	BatchWorkers int `mapstructure:"batchWorkers"`
}

// MountConfig stores mount engine tunables.
type MountConfig struct {
	// LoopControlPath is the loop-device allocation interface.
	LoopControlPath string `mapstructure:"loopControlPath"`

	// HelperTimeoutSeconds bounds a single mount/umount helper invocation.
	HelperTimeoutSeconds int `mapstructure:"helperTimeoutSeconds"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("engine.verbose", false)
	viper.SetDefault("engine.copyBufferSize", 64*1024)
	viper.SetDefault("engine.maxSymlinkHops", 64)
	viper.SetDefault("engine.tempPrefix", internal.DefaultTempPrefix)
	viper.SetDefault("engine.batchWorkers", 4)
	viper.SetDefault("mount.loopControlPath", internal.DefaultLoopControlPath)
	viper.SetDefault("mount.helperTimeoutSeconds", 30)

	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // e.g. engine.copyBufferSize becomes ENGINE_COPYBUFFERSIZE

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults will be used.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &AppConfig, nil
}

// DefaultEngineConfig returns the engine defaults without touching viper state.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Verbose:        false,
		CopyBufferSize: 64 * 1024,
		MaxSymlinkHops: 64,
		TempPrefix:     internal.DefaultTempPrefix,
		BatchWorkers:   4,
	}
}

// DefaultMountConfig returns the mount defaults without touching viper state.
func DefaultMountConfig() MountConfig {
	return MountConfig{
		LoopControlPath:      internal.DefaultLoopControlPath,
		HelperTimeoutSeconds: 30,
	}
}
