package main

import (
	"io"
	"log/slog"

	"github.com/MrEthical07/srpflow"
	"github.com/MrEthical07/srpflow/idp/memory"
	"github.com/redis/go-redis/v9"
)

func newProvider(cfg simConfig) (*memory.Provider, error) {
	p, err := memory.New(memory.Config{
		PoolID:       cfg.PoolID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Latency:      cfg.Latency,
	})
	if err != nil {
		return nil, err
	}
	for _, u := range cfg.Users {
		err := p.AddUser(memory.User{
			Username:           u.Username,
			Password:           u.Password,
			MFA:                u.MFA,
			MFACode:            u.MFACode,
			RequireNewPassword: u.RequireNewPassword,
			IssueDevice:        u.IssueDevice,
		})
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func engineConfig(cfg simConfig) srpflow.Config {
	c := srpflow.DefaultConfig()
	c.UserPool = srpflow.UserPoolConfig{
		PoolID:          cfg.PoolID,
		AppClientID:     cfg.ClientID,
		AppClientSecret: cfg.ClientSecret,
	}
	c.Engine.AutoVerifyPasswordChallenge = cfg.AutoVerify
	c.Engine.SignInTimeout = cfg.Timeout
	c.Engine.RecordJournal = cfg.Journal
	c.Throttle.Enabled = cfg.Throttle.Enabled
	if cfg.Throttle.MaxFailed > 0 {
		c.Throttle.MaxFailedSignIns = cfg.Throttle.MaxFailed
	}
	if cfg.Throttle.Cooldown > 0 {
		c.Throttle.Cooldown = cfg.Throttle.Cooldown
	}
	c.Metrics.Enabled = true
	c.Metrics.EnableLatencyHistograms = true
	return c
}

// buildEngine wires one engine to the shared provider and Redis client.
// audit receives JSON lines when non-nil.
func buildEngine(cfg simConfig, p *memory.Provider, rdb redis.UniversalClient, logger *slog.Logger, audit io.Writer) (*srpflow.Engine, error) {
	b := srpflow.New().
		WithConfig(engineConfig(cfg)).
		WithClient(p).
		WithRedis(rdb).
		WithLogger(logger)
	if audit != nil {
		b.WithAuditSink(srpflow.NewJSONWriterSink(audit))
	}
	return b.Build()
}
