package config

import (
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type AdminConfig struct {
	Address string `mapstructure:"address"`
}

type BackendConfig struct {
	Host    string `mapstructure:"host"`
	TCPPort int    `mapstructure:"tcp_port"`
}

type AssignmentsConfig struct {
	File string `mapstructure:"file"`
}

type RebalanceConfig struct {
	FullDelay     string `mapstructure:"full_delay"`
	Delay         string `mapstructure:"delay"`
	Period        string `mapstructure:"period"`
	Window        string `mapstructure:"window"`
	PersistDelay  string `mapstructure:"persist_delay"`
	PersistPeriod string `mapstructure:"persist_period"`
}

type HealthCheckConfig struct {
	Interval string `mapstructure:"interval"`
}

type PoolConfig struct {
	MaxIdle     int    `mapstructure:"max_idle"`
	DialTimeout string `mapstructure:"dial_timeout"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Admin       AdminConfig       `mapstructure:"admin"`
	Backends    []BackendConfig   `mapstructure:"backends"`
	Assignments AssignmentsConfig `mapstructure:"assignments"`
	Rebalance   RebalanceConfig   `mapstructure:"rebalance"`
	HealthCheck HealthCheckConfig `mapstructure:"health_check"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":4242")
	viper.SetDefault("admin.address", ":8080")
	viper.SetDefault("assignments.file", "assignments.csv")
	viper.SetDefault("rebalance.full_delay", "5m")
	viper.SetDefault("rebalance.delay", "10m")
	viper.SetDefault("rebalance.period", "2m")
	viper.SetDefault("rebalance.window", "30m")
	viper.SetDefault("rebalance.persist_delay", "10m")
	viper.SetDefault("rebalance.persist_period", "60m")
	viper.SetDefault("health_check.interval", "10s")
	viper.SetDefault("pool.max_idle", 2)
	viper.SetDefault("pool.dial_timeout", "5s")
	viper.SetDefault("logging.level", LogLevelInfo)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Admin,
			validation.Required,
			validation.By(func(value interface{}) error {
				ac, ok := value.(AdminConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an AdminConfig")
				}
				return validation.ValidateStruct(&ac,
					validation.Field(&ac.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.HealthCheck,
			validation.Required,
			validation.By(func(value interface{}) error {
				hc, ok := value.(HealthCheckConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a HealthCheckConfig")
				}
				return validation.ValidateStruct(&hc,
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Rebalance,
			validation.Required,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RebalanceConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RebalanceConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.FullDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.Delay, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.Period, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.Window, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.PersistDelay, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.PersistPeriod, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Pool,
			validation.Required,
			validation.By(func(value interface{}) error {
				pc, ok := value.(PoolConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a PoolConfig")
				}
				return validation.ValidateStruct(&pc,
					validation.Field(&pc.MaxIdle, validation.Required, validation.Min(1)),
					validation.Field(&pc.DialTimeout, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateBackendConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateBackendConfig(value interface{}) error {
	backend, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}

	if backend.Host == "" {
		return validation.NewError("validation_empty_host", "backend host cannot be empty")
	}

	if err := is.Host.Validate(backend.Host); err != nil {
		return validation.NewError("validation_invalid_host", "invalid backend host")
	}

	if backend.TCPPort < 1 || backend.TCPPort > 65535 {
		return validation.NewError("validation_invalid_port", "backend tcp_port must be between 1 and 65535")
	}

	return nil
}
