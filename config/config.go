package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/ironmanme/poem-gateway/internal/authority"
	"github.com/ironmanme/poem-gateway/internal/healthcheck"
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

const (
	StrategyRoundRobin         = "round-robin"
	StrategyRandom             = "random"
	StrategyLeastConn          = "least-conn"
	StrategyLeastResponse      = "least-response"
	StrategyConsistentHash     = "consistent-hash"
	StrategyWeightedRoundRobin = "weighted-round-robin"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type HealthCheckConfig struct {
	Scheme              string `mapstructure:"scheme"`
	Path                string `mapstructure:"path"`
	Interval            string `mapstructure:"interval"`
	Timeout             string `mapstructure:"timeout"`
	Status              []int  `mapstructure:"status"`
	MaxConcurrentProbes int    `mapstructure:"max_concurrent_probes"`
	// QueryTimeout bounds how long a request waits for the health checker.
	QueryTimeout string `mapstructure:"query_timeout"`
}

type NodeConfig struct {
	Authority string `mapstructure:"authority"`
	Weight    int    `mapstructure:"weight"`
}

type UpstreamConfig struct {
	Scheme string       `mapstructure:"scheme"`
	Nodes  []NodeConfig `mapstructure:"nodes"`
}

type StrategyConfig struct {
	Type         string `mapstructure:"type"`
	VirtualNodes int    `mapstructure:"virtual_nodes"`
}

type CircuitBreakerConfig struct {
	Threshold    int    `mapstructure:"threshold"`
	ResetTimeout string `mapstructure:"reset_timeout"`
}

type MetricsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	HealthCheck    HealthCheckConfig    `mapstructure:"health_check"`
	Upstream       UpstreamConfig       `mapstructure:"upstream"`
	Strategy       StrategyConfig       `mapstructure:"strategy"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Metrics        MetricsConfig        `mapstructure:"metrics"`
	Logging        LoggingConfig        `mapstructure:"logging"`
}

// Load reads configuration from path, or from config.yaml in ./config or the
// working directory when path is empty. Environment variables override file
// values, with "." replaced by "_" (HEALTH_CHECK_INTERVAL).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.environment", EnvDev)
	v.SetDefault("server.address", ":8080")
	v.SetDefault("health_check.scheme", string(healthcheck.SchemeHTTP))
	v.SetDefault("health_check.path", healthcheck.DefaultPath)
	v.SetDefault("health_check.interval", healthcheck.DefaultInterval.String())
	v.SetDefault("health_check.timeout", healthcheck.DefaultTimeout.String())
	v.SetDefault("health_check.status", []int{200})
	v.SetDefault("health_check.max_concurrent_probes", 0)
	v.SetDefault("health_check.query_timeout", "250ms")
	v.SetDefault("upstream.scheme", "http")
	v.SetDefault("strategy.type", StrategyRoundRobin)
	v.SetDefault("strategy.virtual_nodes", 100)
	v.SetDefault("circuit_breaker.threshold", 5)
	v.SetDefault("circuit_breaker.reset_timeout", "30s")
	v.SetDefault("metrics.buffer_size", 1000)
	v.SetDefault("logging.level", LogLevelInfo)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
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
					validation.Field(&hc.Scheme,
						validation.Required,
						validation.In(string(healthcheck.SchemeHTTP), string(healthcheck.SchemeHTTPS)),
					),
					validation.Field(&hc.Path,
						validation.By(validateProbePath),
					),
					validation.Field(&hc.Interval,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.Timeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.QueryTimeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
					validation.Field(&hc.Status,
						validation.Required,
						validation.Each(validation.Min(100), validation.Max(599)),
					),
					validation.Field(&hc.MaxConcurrentProbes,
						validation.Min(0),
					),
				)
			}),
		),
		validation.Field(&c.Upstream,
			validation.Required,
			validation.By(func(value interface{}) error {
				uc, ok := value.(UpstreamConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be an UpstreamConfig")
				}
				return validation.ValidateStruct(&uc,
					validation.Field(&uc.Scheme,
						validation.Required,
						validation.In("http", "https"),
					),
					validation.Field(&uc.Nodes,
						validation.Required,
						validation.Length(1, 0),
						validation.Each(validation.By(validateNodeConfig)),
					),
				)
			}),
		),
		validation.Field(&c.Strategy,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StrategyConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StrategyConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Type,
						validation.Required,
						validation.In(
							StrategyRoundRobin,
							StrategyRandom,
							StrategyLeastConn,
							StrategyLeastResponse,
							StrategyConsistentHash,
							StrategyWeightedRoundRobin,
						),
					),
					validation.Field(&sc.VirtualNodes,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.CircuitBreaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				cb, ok := value.(CircuitBreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CircuitBreakerConfig")
				}
				return validation.ValidateStruct(&cb,
					validation.Field(&cb.Threshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&cb.ResetTimeout,
						validation.Required,
						validation.By(validatePositiveDuration),
					),
				)
			}),
		),
		validation.Field(&c.Metrics,
			validation.Required,
			validation.By(func(value interface{}) error {
				mc, ok := value.(MetricsConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a MetricsConfig")
				}
				return validation.ValidateStruct(&mc,
					validation.Field(&mc.BufferSize,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
	)
}

// HealthCheckSettings converts the health_check section into the checker's
// configuration. It assumes Validate has passed.
func (c *Config) HealthCheckSettings() (healthcheck.Config, error) {
	interval, err := time.ParseDuration(c.HealthCheck.Interval)
	if err != nil {
		return healthcheck.Config{}, fmt.Errorf("health_check.interval: %w", err)
	}

	timeout, err := time.ParseDuration(c.HealthCheck.Timeout)
	if err != nil {
		return healthcheck.Config{}, fmt.Errorf("health_check.timeout: %w", err)
	}

	return healthcheck.Config{
		Scheme:              healthcheck.Scheme(c.HealthCheck.Scheme),
		Path:                c.HealthCheck.Path,
		Interval:            interval,
		Timeout:             timeout,
		Status:              append([]int(nil), c.HealthCheck.Status...),
		MaxConcurrentProbes: c.HealthCheck.MaxConcurrentProbes,
	}, nil
}

// QueryTimeout returns health_check.query_timeout as a duration.
func (c *Config) QueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.HealthCheck.QueryTimeout)
	if err != nil {
		return 0
	}
	return d
}

// BreakerResetTimeout returns circuit_breaker.reset_timeout as a duration.
func (c *Config) BreakerResetTimeout() time.Duration {
	d, err := time.ParseDuration(c.CircuitBreaker.ResetTimeout)
	if err != nil {
		return 0
	}
	return d
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

func validatePositiveDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	if d <= 0 {
		return validation.NewError("validation_non_positive_duration", "must be greater than zero")
	}

	return nil
}

func validateProbePath(value interface{}) error {
	path, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if strings.ContainsAny(path, " ?#") || strings.Contains(path, "://") {
		return validation.NewError("validation_invalid_path", "must be a plain URL path")
	}

	return nil
}

func validateNodeConfig(value interface{}) error {
	node, ok := value.(NodeConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a NodeConfig")
	}

	if node.Authority == "" {
		return validation.NewError("validation_empty_authority", "node authority cannot be empty")
	}

	if _, err := authority.Parse(node.Authority); err != nil {
		return validation.NewError("validation_invalid_authority", "must be host[:port]")
	}

	if node.Weight < 1 {
		return validation.NewError("validation_invalid_weight", "weight must be at least 1")
	}

	return nil
}
