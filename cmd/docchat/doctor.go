package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/docchat/internal/backend"
	"github.com/zulandar/docchat/internal/config"
	"github.com/zulandar/docchat/internal/db"
	"github.com/zulandar/docchat/internal/health"
)

func newDoctorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and backend reachability",
		Long:  "Runs diagnostic checks on the docchat setup: config, backend reachability and the transcript database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to docchat config file")
	return cmd
}

type checkResult struct {
	name   string
	status string // "PASS", "FAIL", "WARN"
	detail string
}

func runDoctor(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "docchat doctor")
	fmt.Fprintln(out, "==============")

	var results []checkResult

	cfg, cfgResult := checkConfig(configPath)
	results = append(results, cfgResult)

	if cfg != nil {
		results = append(results, checkBackend(cfg.Backend))
		results = append(results, checkTranscript(cfg.Transcript))
	} else {
		results = append(results,
			checkResult{"Backend", "FAIL", "skipped (no config)"},
			checkResult{"Transcript", "FAIL", "skipped (no config)"})
	}

	passed, failed, warned := 0, 0, 0
	for _, r := range results {
		printCheckResult(out, r)
		switch r.status {
		case "PASS":
			passed++
		case "FAIL":
			failed++
		case "WARN":
			warned++
		}
	}

	fmt.Fprintf(out, "\n%d passed, %d failed, %d warning\n", passed, failed, warned)

	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func printCheckResult(out io.Writer, r checkResult) {
	fmt.Fprintf(out, "[%s] %s: %s\n", r.status, r.name, r.detail)
}

func checkConfig(path string) (*config.Config, checkResult) {
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return nil, checkResult{"Config file", "FAIL", fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, checkResult{"Config file", "PASS", path}
}

func checkBackend(cfg config.BackendConfig) checkResult {
	client, err := backend.NewClient(backend.ClientOpts{BaseURL: cfg.URL})
	if err != nil {
		return checkResult{"Backend", "FAIL", err.Error()}
	}
	monitor, err := health.NewMonitor(health.MonitorOpts{Pinger: client, Timeout: 5 * time.Second})
	if err != nil {
		return checkResult{"Backend", "FAIL", err.Error()}
	}
	st := monitor.Check(context.Background())
	if !st.Reachable {
		return checkResult{"Backend", "FAIL", fmt.Sprintf("%s unreachable: %s", cfg.URL, st.Error)}
	}
	return checkResult{"Backend", "PASS", fmt.Sprintf("%s (%s)", cfg.URL, st.Latency.Round(time.Millisecond))}
}

func checkTranscript(cfg config.TranscriptConfig) checkResult {
	if !db.Enabled(cfg) {
		return checkResult{"Transcript", "WARN", "disabled (sessions are not recorded)"}
	}
	gormDB, err := openTranscriptDB(cfg)
	if err != nil {
		return checkResult{"Transcript", "FAIL", err.Error()}
	}
	if sqlDB, err := gormDB.DB(); err == nil {
		defer sqlDB.Close()
	}
	where := cfg.Path
	if cfg.Driver == db.DriverMySQL {
		where = fmt.Sprintf("%s:%d/%s", cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.Database)
	}
	return checkResult{"Transcript", "PASS", fmt.Sprintf("%s %s", cfg.Driver, where)}
}
