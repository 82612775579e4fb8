package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/srpflow"
	"github.com/spf13/cobra"
)

func newLoadCmd() *cobra.Command {
	var (
		workers  int
		attempts int
		username string
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run concurrent sign-in and sign-out cycles",
		Long: `Starts one engine per worker against a shared simulated provider and
runs sign-in/sign-out cycles until the attempt budget is used. MFA
challenges are answered with the configured user's code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers <= 0 || attempts <= 0 {
				return errors.New("workers and attempts must be > 0")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if username == "" {
				username = cfg.Users[0].Username
			}
			user, ok := cfg.user(username)
			if !ok {
				return fmt.Errorf("user %q is not configured", username)
			}
			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			p, err := newProvider(cfg)
			if err != nil {
				return err
			}
			rdb, cleanup, err := openRedis(cfg.RedisAddr, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			engines := make([]*srpflow.Engine, 0, workers)
			defer func() {
				for _, e := range engines {
					e.Close()
				}
			}()
			for i := 0; i < workers; i++ {
				e, err := buildEngine(cfg, p, rdb, logger, nil)
				if err != nil {
					return err
				}
				engines = append(engines, e)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			stats := runLoad(ctx, engines, user, attempts)
			printStats(cmd.OutOrStdout(), "signin", stats)
			if stats.failures > 0 {
				return fmt.Errorf("%d of %d sign-ins failed", stats.failures, stats.ops)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 8, "number of concurrent engines")
	cmd.Flags().IntVar(&attempts, "attempts", 200, "total sign-in attempts")
	cmd.Flags().StringVar(&username, "user", "", "configured user to sign in as (default: first user)")
	return cmd
}

func runLoad(ctx context.Context, engines []*srpflow.Engine, user simUser, attempts int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, attempts)
		mu        sync.Mutex
	)

	start := time.Now()
	for _, e := range engines {
		wg.Add(1)
		go func(e *srpflow.Engine) {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= attempts {
					return
				}
				t0 := time.Now()
				err := cycle(ctx, e, user)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(e)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// cycle signs user in, answers any challenge with the configured code and
// signs out again.
func cycle(ctx context.Context, e *srpflow.Engine, user simUser) error {
	res, err := e.SignIn(ctx, user.Username, user.Password, nil)
	for err == nil && !res.SignedIn {
		answer := user.MFACode
		switch res.NextStep {
		case srpflow.StepConfirmWithPasswordVerifier:
			answer = ""
		case srpflow.StepConfirmWithNewPassword:
			answer = user.Password
		}
		res, err = e.ConfirmSignIn(ctx, answer, nil)
	}
	if err != nil {
		return err
	}
	return e.SignOut(ctx)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(w io.Writer, name string, s phaseStats) {
	fmt.Fprintf(w, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
