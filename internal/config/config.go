// Package config provides shared configuration loading for triggerware
// tools: defaults, a config file, TW_-prefixed environment variables, and
// CLI flags, in increasing order of precedence.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Query         QueryConfig         `mapstructure:"query"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Addr        string        `mapstructure:"addr"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type QueryConfig struct {
	// Namespace is the default namespace queries resolve against.
	Namespace string `mapstructure:"namespace"`
	// FetchSize is the row limit per result-set batch fetch.
	FetchSize int `mapstructure:"fetch_size"`
	// Timeout is the server-side time limit for query operations, in seconds.
	Timeout float64 `mapstructure:"timeout"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	MetricsAddr    string `mapstructure:"metrics_addr"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPProtocol   string `mapstructure:"otlp_protocol"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "localhost:5221")
	v.SetDefault("server.dial_timeout", 10*time.Second)

	v.SetDefault("query.namespace", "AP5")
	v.SetDefault("query.fetch_size", 100)
	v.SetDefault("query.timeout", 0.0)

	v.SetDefault("observability.log_level", "info")
	v.SetDefault("observability.log_format", "text")
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.otlp_endpoint", "")
	v.SetDefault("observability.otlp_protocol", "http")
	v.SetDefault("observability.service_name", "twq")
	v.SetDefault("observability.service_version", "dev")
}

// BindFlags binds the common CLI flags to viper.
func BindFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.PersistentFlags()
	f.String("server", "", "triggerware server address (default localhost:5221)")
	f.String("config", "", "config file path")
	f.String("namespace", "", "default query namespace")
	f.Int("fetch-size", 0, "rows per result batch fetch")
	f.Float64("timeout", 0, "server-side time limit in seconds")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (json, text)")
	f.String("metrics-addr", "", "metrics HTTP listen address")

	_ = v.BindPFlag("server.addr", f.Lookup("server"))
	_ = v.BindPFlag("query.namespace", f.Lookup("namespace"))
	_ = v.BindPFlag("query.fetch_size", f.Lookup("fetch-size"))
	_ = v.BindPFlag("query.timeout", f.Lookup("timeout"))
	_ = v.BindPFlag("observability.log_level", f.Lookup("log-level"))
	_ = v.BindPFlag("observability.log_format", f.Lookup("log-format"))
	_ = v.BindPFlag("observability.metrics_addr", f.Lookup("metrics-addr"))
}

// Load reads config from flags, env, and file, returning the merged Config.
func Load(v *viper.Viper, configFile string) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("TW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("twq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.twq")
		v.AddConfigPath("/etc/twq")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && configFile != "" {
			return Config{}, err
		}
		// A missing config file is only an error when one was named.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
