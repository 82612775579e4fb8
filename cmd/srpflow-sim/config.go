package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type simConfig struct {
	PoolID       string        `mapstructure:"pool_id" yaml:"pool_id"`
	ClientID     string        `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string        `mapstructure:"client_secret" yaml:"client_secret"`
	Latency      time.Duration `mapstructure:"latency" yaml:"latency"`
	AutoVerify   bool          `mapstructure:"auto_verify" yaml:"auto_verify"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RedisAddr    string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	Journal      bool          `mapstructure:"journal" yaml:"journal"`
	Audit        bool          `mapstructure:"audit" yaml:"audit"`
	LogLevel     string        `mapstructure:"log_level" yaml:"log_level"`

	Throttle throttleConfig `mapstructure:"throttle" yaml:"throttle"`
	Users    []simUser      `mapstructure:"users" yaml:"users"`
}

type throttleConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxFailed int           `mapstructure:"max_failed" yaml:"max_failed"`
	Cooldown  time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
}

type simUser struct {
	Username           string `mapstructure:"username" yaml:"username"`
	Password           string `mapstructure:"password" yaml:"password"`
	MFA                string `mapstructure:"mfa" yaml:"mfa"`
	MFACode            string `mapstructure:"mfa_code" yaml:"mfa_code"`
	RequireNewPassword bool   `mapstructure:"require_new_password" yaml:"require_new_password"`
	IssueDevice        bool   `mapstructure:"issue_device" yaml:"issue_device"`
}

var configDefaults = map[string]any{
	"pool_id":             "us-east-1_simulated",
	"client_id":           "srpflow-sim",
	"client_secret":       "",
	"latency":             "0s",
	"auto_verify":         true,
	"timeout":             "30s",
	"redis_addr":          "",
	"journal":             false,
	"audit":               false,
	"log_level":           "warn",
	"throttle.enabled":    false,
	"throttle.max_failed": 5,
	"throttle.cooldown":   "15m",

	"users": []map[string]any{
		{"username": "alice", "password": "correct horse battery staple"},
	},
}

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"pool-id":       "pool_id",
	"client-id":     "client_id",
	"client-secret": "client_secret",
	"latency":       "latency",
	"auto-verify":   "auto_verify",
	"timeout":       "timeout",
	"redis-addr":    "redis_addr",
	"journal":       "journal",
	"audit":         "audit",
	"log-level":     "log_level",
}

func addConfigFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file (yaml)")
	flags.String("pool-id", "", "user pool id, <region>_<name>")
	flags.String("client-id", "", "app client id")
	flags.String("client-secret", "", "app client secret; SECRET_HASH is sent when set")
	flags.Duration("latency", 0, "simulated provider latency per call")
	flags.Bool("auto-verify", true, "answer the password verifier automatically")
	flags.Duration("timeout", 0, "sign-in timeout")
	flags.String("redis-addr", "", "redis address; miniredis is used when empty")
	flags.Bool("journal", false, "record the transition journal")
	flags.Bool("audit", false, "write audit events to stderr as JSON lines")
	flags.String("log-level", "", "debug, info, warn or error")
}

// loadConfig layers defaults, the config file, SRPFLOW_ environment
// variables and flags, in increasing precedence.
func loadConfig(cmd *cobra.Command) (simConfig, error) {
	var c simConfig
	v := viper.New()

	for key, value := range configDefaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return c, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return c, fmt.Errorf("config file %s not accessible: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("srpflow-sim")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return c, err
		}
	}

	v.SetEnvPrefix("srpflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if len(c.Users) == 0 {
		return c, errors.New("no users configured")
	}
	return c, nil
}

func (c simConfig) user(username string) (simUser, bool) {
	for _, u := range c.Users {
		if u.Username == username {
			return u, true
		}
	}
	return simUser{}, false
}
