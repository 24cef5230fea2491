// Package agentconfig loads operator-level defaults for a Meridian
// agent process (a CLI tool or long-running service embedding the
// client) from env/file/flags — timeouts, pool sizes, TLS, logging —
// layered alongside, not instead of, the connection-string options a
// caller passes to meridian.Connect. Grounded on the teacher's
// internal/config.Config: nested mapstructure-tagged sections with
// viper.SetDefault seeding and AutomaticEnv override.
package agentconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/meridiandb/meridian-go/pkg/logger"
)

// Config is the full agent-level configuration tree.
type Config struct {
	Cluster ClusterConfig `mapstructure:"cluster"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Workload WorkloadConfig `mapstructure:"workload"`
}

// ClusterConfig names the target deployment and credentials.
type ClusterConfig struct {
	ConnectionString string        `mapstructure:"connection_string"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Bucket           string        `mapstructure:"bucket"`
	Network          string        `mapstructure:"network"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	TrustCertificate string        `mapstructure:"trust_certificate"`
}

// LogConfig mirrors pkg/logger.Config with mapstructure tags for
// viper decoding.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerConfig converts to the shape pkg/logger.New expects.
func (l LogConfig) ToLoggerConfig() logger.Config {
	return logger.Config{
		Level:      l.Level,
		Format:     l.Format,
		Output:     l.Output,
		Filename:   l.Filename,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
		Compress:   l.Compress,
	}
}

// MetricsConfig configures the bench CLI's own diagnostics HTTP
// server — not the client core, which always registers into
// pkg/metrics regardless.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// WorkloadConfig parameterizes the scripted workload cmd/meridian-bench
// drives against the cluster.
type WorkloadConfig struct {
	Operations  int           `mapstructure:"operations"`
	Concurrency int           `mapstructure:"concurrency"`
	ValueSizeBytes int        `mapstructure:"value_size_bytes"`
	ReadRatio   float64       `mapstructure:"read_ratio"`
	Deadline    time.Duration `mapstructure:"deadline"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cluster.connection_string", "couchbase://127.0.0.1")
	v.SetDefault("cluster.bucket", "default")
	v.SetDefault("cluster.network", "auto")
	v.SetDefault("cluster.dial_timeout", "10s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", "127.0.0.1:9199")

	v.SetDefault("workload.operations", 1000)
	v.SetDefault("workload.concurrency", 8)
	v.SetDefault("workload.value_size_bytes", 128)
	v.SetDefault("workload.read_ratio", 0.8)
	v.SetDefault("workload.deadline", "30s")
}

// Load reads configuration from environment variables
// (MERIDIAN_CLUSTER_BUCKET style, via the mapstructure "." to "_"
// replacer the teacher uses), configPath (if non-empty and present), and
// the built-in defaults, in that descending priority.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("meridian")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("agentconfig: read config file %q: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("agentconfig: decode configuration: %w", err)
	}
	return &cfg, nil
}
