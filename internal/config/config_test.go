package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "localhost:5221" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.DialTimeout != 10*time.Second {
		t.Errorf("server.dial_timeout = %v", cfg.Server.DialTimeout)
	}
	if cfg.Query.Namespace != "AP5" || cfg.Query.FetchSize != 100 {
		t.Errorf("query defaults = %+v", cfg.Query)
	}
	if cfg.Observability.LogLevel != "info" || cfg.Observability.LogFormat != "text" {
		t.Errorf("observability defaults = %+v", cfg.Observability)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twq.yaml")
	content := []byte(`
server:
  addr: tw.example.com:5221
query:
  namespace: finance
  fetch_size: 25
  timeout: 3.5
observability:
  log_level: debug
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "tw.example.com:5221" {
		t.Errorf("server.addr = %q", cfg.Server.Addr)
	}
	if cfg.Query.Namespace != "finance" || cfg.Query.FetchSize != 25 || cfg.Query.Timeout != 3.5 {
		t.Errorf("query = %+v", cfg.Query)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("log_level = %q", cfg.Observability.LogLevel)
	}
	// Unset keys keep their defaults.
	if cfg.Observability.LogFormat != "text" {
		t.Errorf("log_format = %q", cfg.Observability.LogFormat)
	}
}

func TestLoadMissingNamedFileFails(t *testing.T) {
	if _, err := Load(viper.New(), filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for an explicitly named missing file")
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("TW_QUERY_NAMESPACE", "geo")
	t.Setenv("TW_OBSERVABILITY_LOG_LEVEL", "warn")

	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Query.Namespace != "geo" {
		t.Errorf("query.namespace = %q, want geo", cfg.Query.Namespace)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("log_level = %q, want warn", cfg.Observability.LogLevel)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("TW_SERVER_ADDR", "env:1")

	v := viper.New()
	cmd := &cobra.Command{Use: "test"}
	BindFlags(cmd, v)
	if err := cmd.PersistentFlags().Set("server", "flag:2"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "flag:2" {
		t.Errorf("server.addr = %q, want flag:2", cfg.Server.Addr)
	}
}
