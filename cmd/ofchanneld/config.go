// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"code.hybscloud.com/ofchannel/channel"
)

// Config is ofchanneld's configuration (spec §6): environment variables
// (OFCHANNELD_*) take precedence over the config file, which takes
// precedence over the defaults set below. The only command-line flag
// is --config, which selects the config file.
type Config struct {
	Listen    string        `mapstructure:"listen"`
	Transport string        `mapstructure:"transport"` // "tcp", "udp", or "unix"
	Versions  []int         `mapstructure:"versions"`
	Jackin    bool          `mapstructure:"jackin"`
	Monitor   bool          `mapstructure:"monitor"`
	SocketDir string        `mapstructure:"socket_dir"`
	AsyncRate int           `mapstructure:"async_rate"`
	Log       LogConfig     `mapstructure:"log"`
	Metrics   MetricsConfig `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	// Listen, if non-empty, serves /metrics on this address.
	Listen string `mapstructure:"listen"`
}

func defaultConfig() Config {
	return Config{
		Listen:    "0.0.0.0:6653",
		Transport: "tcp",
		Versions:  []int{1, 4},
		SocketDir: "/var/run/ofchanneld",
		AsyncRate: channel.DefaultAsyncBatch,
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// loadConfig reads configPath (if set) or searches /etc/ofchanneld and
// the working directory for config.{yaml,toml,json}, then overlays
// OFCHANNELD_-prefixed environment variables.
func loadConfig(configPath string) (Config, error) {
	cfg := defaultConfig()

	v := viper.New()
	v.SetEnvPrefix("OFCHANNELD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath("/etc/ofchanneld")
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("transport", cfg.Transport)
	v.SetDefault("versions", cfg.Versions)
	v.SetDefault("jackin", cfg.Jackin)
	v.SetDefault("monitor", cfg.Monitor)
	v.SetDefault("socket_dir", cfg.SocketDir)
	v.SetDefault("async_rate", cfg.AsyncRate)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
}

func versionsToAccepted(versions []int) []uint8 {
	out := make([]uint8, 0, len(versions))
	for _, v := range versions {
		out = append(out, uint8(v))
	}
	return out
}
