package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Lake      LakeConfig      `yaml:"lake" mapstructure:"lake"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	RunLog    RunLogConfig    `yaml:"runlog" mapstructure:"runlog"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LakeConfig locates the layer files on disk.
type LakeConfig struct {
	Root   string `yaml:"root" mapstructure:"root"`
	Layout string `yaml:"layout" mapstructure:"layout"`
}

// IngestConfig configures source-table acquisition.
type IngestConfig struct {
	Manifest    string `yaml:"manifest" mapstructure:"manifest"`
	WorkDir     string `yaml:"work_dir" mapstructure:"work_dir"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// RunLogConfig configures the run-history store.
type RunLogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// WarehouseConfig configures the analytical store the aggregate layer is
// loaded into.
type WarehouseConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the read-only JSON API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("lake.root", "data")
	v.SetDefault("lake.layout", "single")
	v.SetDefault("ingest.manifest", "sources.yaml")
	v.SetDefault("ingest.work_dir", "/tmp/tracker-ingest")
	v.SetDefault("ingest.concurrency", 3)
	v.SetDefault("runlog.path", "data/runs.db")
	v.SetDefault("warehouse.driver", "sqlite")
	v.SetDefault("warehouse.path", "data/warehouse.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Problems are
// collected so one run surfaces all of them, not just the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	common := func() {
		if c.Lake.Root == "" {
			problems = append(problems, "lake.root is required")
		}
		switch c.Lake.Layout {
		case "", "single", "partitioned":
		default:
			problems = append(problems, fmt.Sprintf("lake.layout %q is not one of single, partitioned", c.Lake.Layout))
		}
	}

	switch mode {
	case "pipeline":
		common()
	case "ingest":
		common()
		if c.Ingest.Manifest == "" {
			problems = append(problems, "ingest.manifest is required")
		}
		if c.Ingest.Concurrency < 1 || c.Ingest.Concurrency > 16 {
			problems = append(problems, "ingest.concurrency must be between 1 and 16")
		}
	case "load":
		common()
		switch c.Warehouse.Driver {
		case "sqlite":
			if c.Warehouse.Path == "" {
				problems = append(problems, "warehouse.path is required for the sqlite driver")
			}
		case "postgres":
			if c.Warehouse.DatabaseURL == "" {
				problems = append(problems, "warehouse.database_url is required for the postgres driver")
			}
		default:
			problems = append(problems, fmt.Sprintf("warehouse.driver %q is not one of sqlite, postgres", c.Warehouse.Driver))
		}
	case "serve":
		common()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
