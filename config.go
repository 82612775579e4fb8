package srpflow

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/srpflow/authenv"
)

// Config is the complete engine configuration. Build it from the value
// returned by DefaultConfig and adjust fields; the Builder keeps a copy.
type Config struct {
	UserPool UserPoolConfig
	Engine   EngineConfig
	Device   DeviceConfig
	Throttle ThrottleConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
USER POOL CONFIG
====================================
*/

// UserPoolConfig identifies the user pool and app client. AppClientSecret
// is optional; SECRET_HASH is sent only when it is set.
type UserPoolConfig = authenv.UserPoolConfig

/*
====================================
ENGINE CONFIG
====================================
*/

// EngineConfig controls how the Engine drives the state machine.
type EngineConfig struct {
	// AutoVerifyPasswordChallenge answers the password verifier as soon as
	// the SRP layer is waiting for it. When false the host calls
	// ConfirmSignIn with an empty answer to release it.
	AutoVerifyPasswordChallenge bool
	// SignInTimeout bounds SignIn and ConfirmSignIn when the caller's
	// context has no deadline. Zero disables the bound.
	SignInTimeout time.Duration
	// RecordJournal keeps every transition in memory for Engine.Journal.
	RecordJournal bool
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig is used when the device store is built from a Redis client.
type DeviceConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

/*
====================================
THROTTLE CONFIG
====================================
*/

// ThrottleConfig limits failed sign-ins per username. It needs a Redis
// client from Builder.WithRedis. Only provider rejections count; host
// cancellations and expired contexts do not.
type ThrottleConfig struct {
	Enabled          bool
	MaxFailedSignIns int
	Cooldown         time.Duration
	RedisPrefix      string
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the defaults the Builder starts from.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Engine: EngineConfig{
			AutoVerifyPasswordChallenge: true,
			SignInTimeout:               30 * time.Second,
		},
		Device: DeviceConfig{
			RedisPrefix: "srpdev",
			TTL:         30 * 24 * time.Hour,
		},
		Throttle: ThrottleConfig{
			MaxFailedSignIns: 5,
			Cooldown:         15 * time.Minute,
			RedisPrefix:      "srpthr",
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field. Configuration errors wrap
// the matching sentinel so callers can use errors.Is.
func (c *Config) Validate() error {
	_, poolName, ok := strings.Cut(c.UserPool.PoolID, "_")
	if strings.TrimSpace(c.UserPool.PoolID) == "" {
		return ErrMissingPoolID
	}
	if !ok || poolName == "" {
		return errors.New("UserPool PoolID must look like <region>_<name>")
	}
	if strings.TrimSpace(c.UserPool.AppClientID) == "" {
		return ErrMissingClientID
	}

	if c.Engine.SignInTimeout < 0 {
		return errors.New("Engine SignInTimeout must be >= 0")
	}

	if c.Device.TTL < 0 {
		return errors.New("Device TTL must be >= 0")
	}
	if c.Device.RedisPrefix != "" && strings.ContainsAny(c.Device.RedisPrefix, " \t\r\n") {
		return errors.New("Device RedisPrefix must not contain whitespace")
	}

	if c.Throttle.Enabled {
		if c.Throttle.MaxFailedSignIns <= 0 {
			return errors.New("Throttle MaxFailedSignIns must be > 0 when throttle is enabled")
		}
		if c.Throttle.Cooldown <= 0 {
			return errors.New("Throttle Cooldown must be > 0 when throttle is enabled")
		}
		if strings.TrimSpace(c.Throttle.RedisPrefix) == "" || strings.ContainsAny(c.Throttle.RedisPrefix, " \t\r\n") {
			return errors.New("Throttle RedisPrefix must be non-empty and contain no whitespace")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}
