package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MrEthical07/srpflow"
	"github.com/MrEthical07/srpflow/metrics/export/internaldefs"
	"github.com/MrEthical07/srpflow/metrics/export/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type signInReport struct {
	Username   string            `yaml:"username"`
	SignedIn   bool              `yaml:"signed_in"`
	UserID     string            `yaml:"user_id,omitempty"`
	Steps      []string          `yaml:"steps,omitempty"`
	Error      string            `yaml:"error,omitempty"`
	ErrorKind  string            `yaml:"error_kind,omitempty"`
	FinalState string            `yaml:"final_state"`
	Counters   map[string]uint64 `yaml:"counters"`
	Warnings   []string          `yaml:"warnings,omitempty"`
}

func newSignInCmd() *cobra.Command {
	var (
		answers    []string
		showProm   bool
		journalOut string
	)

	cmd := &cobra.Command{
		Use:   "signin <username> <password>",
		Short: "Run one sign-in and print a YAML report",
		Long: `Runs one SRP sign-in against the simulated provider. Challenges are
answered in order from --answer; a challenge with no answer left cancels
the attempt.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
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

			var audit io.Writer
			if cfg.Audit {
				audit = cmd.ErrOrStderr()
			}
			engine, err := buildEngine(cfg, p, rdb, logger, audit)
			if err != nil {
				return err
			}
			defer engine.Close()

			report := runSignIn(cmd.Context(), engine, args[0], args[1], answers)
			// Close flushes the audit buffer and lets the journal catch up.
			engine.Close()
			describe(&report, engine)

			out := cmd.OutOrStdout()
			if err := yaml.NewEncoder(out).Encode(report); err != nil {
				return err
			}
			if showProm {
				fmt.Fprint(out, prometheus.New(engine).Render())
			}
			if journalOut != "" {
				if err := writeJournal(engine, journalOut); err != nil {
					return err
				}
			}
			if !report.SignedIn {
				return errSignInFailed
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&answers, "answer", nil, "challenge answers in order (repeatable)")
	cmd.Flags().BoolVar(&showProm, "prometheus", false, "print engine metrics in Prometheus format after the report")
	cmd.Flags().StringVar(&journalOut, "journal-out", "", "write the transition journal as YAML to this file (needs --journal)")
	return cmd
}

var errSignInFailed = errors.New("sign-in did not complete")

func runSignIn(ctx context.Context, engine *srpflow.Engine, username, password string, answers []string) signInReport {
	if ctx == nil {
		ctx = context.Background()
	}
	report := signInReport{Username: username}

	res, err := engine.SignIn(ctx, username, password, nil)
	for err == nil && !res.SignedIn {
		report.Steps = append(report.Steps, string(res.NextStep))
		if res.NextStep == srpflow.StepConfirmWithPasswordVerifier {
			res, err = engine.ConfirmSignIn(ctx, "", nil)
			continue
		}
		if len(answers) == 0 {
			_ = engine.CancelSignIn(ctx)
			err = fmt.Errorf("no answer left for %s", res.Challenge.ChallengeName)
			break
		}
		answer := answers[0]
		answers = answers[1:]
		res, err = engine.ConfirmSignIn(ctx, answer, nil)
	}

	if err != nil {
		report.Error = err.Error()
		report.ErrorKind = srpflow.Kind(err).String()
	} else {
		report.SignedIn = true
		report.UserID = res.Data.UserID
		report.Steps = append(report.Steps, string(res.NextStep))
	}
	return report
}

// describe fills the engine-wide fields. Call it after Close so every
// transition has been observed.
func describe(report *signInReport, engine *srpflow.Engine) {
	report.FinalState = engine.State().Type()
	report.Counters = namedCounters(engine.MetricsSnapshot())
	report.Warnings = engine.SecurityReport().Warnings
}

func namedCounters(s srpflow.MetricsSnapshot) map[string]uint64 {
	out := make(map[string]uint64, len(internaldefs.CounterDefs))
	for _, def := range internaldefs.CounterDefs {
		out[def.Name] = s.Counters[def.ID]
	}
	return out
}

func writeJournal(engine *srpflow.Engine, path string) error {
	j := engine.Journal()
	if j == nil {
		return errors.New("journal is not recording; pass --journal")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := j.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
