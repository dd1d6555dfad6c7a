// Command foreman runs a build pipeline over a requirements document. The
// backlog comes from a prepared tasks.json template, and each subtask's
// context scope is executed as a shell command. Richer collaborators (LLM
// generation, verification agents) plug in through the same interfaces.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"foreman/pkg/agent"
	"foreman/pkg/backlog"
	"foreman/pkg/config"
	"foreman/pkg/impact"
	"foreman/pkg/logx"
	"foreman/pkg/metrics"
	"foreman/pkg/persistence"
	"foreman/pkg/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		docPath     string
		backlogPath string
		workDir     string
		metricsAddr string
		parallelism int
	)
	flag.StringVar(&configPath, "config", "foreman.yaml", "Path to config file")
	flag.StringVar(&docPath, "doc", "", "Path to requirements document (markdown)")
	flag.StringVar(&backlogPath, "backlog", "", "Path to prepared backlog template (tasks.json)")
	flag.StringVar(&workDir, "workdir", "", "Working directory for subtask commands (default: current directory)")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "Listen address for Prometheus metrics (disabled when empty)")
	flag.IntVar(&parallelism, "parallel", 0, "Worker count override (0: use config)")
	flag.Parse()

	logger := logx.NewLogger("foreman")
	if docPath == "" {
		fmt.Fprintln(os.Stderr, "usage: foreman -doc <requirements.md> [-backlog <tasks.json>]")
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("invalid configuration: %v", err)
		return 2
	}
	if parallelism > 0 {
		cfg.Parallelism = parallelism
	}

	var recorder metrics.Recorder = metrics.NopRecorder{}
	if metricsAddr != "" {
		recorder = metrics.NewPrometheusRecorder()
		go serveMetrics(metricsAddr, logger)
	}

	collab := agent.Collaborators{
		Executor:  &commandExecutor{workDir: workDir},
		Generator: &fileGenerator{path: backlogPath},
	}

	driver := pipeline.New(cfg, collab, recorder)

	history, err := persistence.Open(filepath.Join(cfg.SessionRoot, "history.db"))
	if err != nil {
		logger.Warn("run history unavailable: %v", err)
	} else {
		defer func() { _ = history.Close() }()
		driver.SetHistory(history)
	}

	result, err := driver.Run(context.Background(), docPath)
	if err != nil {
		logger.Error("pipeline failed: %v", err)
		return 1
	}

	logger.Info("run %s finished: %d/%d subtasks complete in %s",
		result.RunID, result.CompletedTasks, result.TotalTasks, result.Duration.Round(time.Millisecond))

	if len(result.Failures) > 0 {
		analysis := impact.Analyze(result.Failures, result.Backlog, impact.RunContext{
			TotalTasks:     result.TotalTasks,
			CompletedTasks: result.CompletedTasks,
			StartTime:      time.Now().Add(-result.Duration),
		})
		report := impact.BuildReport(analysis, result.SessionID)
		fmt.Print(report.Render())
	}

	if !result.Success {
		return 1
	}
	return 0
}

func serveMetrics(addr string, logger *logx.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped: %v", err)
	}
}

// fileGenerator reads a prepared backlog template instead of generating one.
type fileGenerator struct {
	path string
}

func (g *fileGenerator) GenerateBacklog(_ context.Context, _ string) (*backlog.Backlog, error) {
	if g.path == "" {
		return nil, fmt.Errorf("session has no backlog and no -backlog template was provided")
	}
	data, err := os.ReadFile(g.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read backlog template: %w", err)
	}
	var b backlog.Backlog
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid backlog template: %w", err)
	}
	return &b, nil
}

// commandExecutor runs each subtask's context scope as a shell command.
type commandExecutor struct {
	workDir string
}

func (e *commandExecutor) Execute(ctx context.Context, contextScope string, _ *backlog.Backlog) (*agent.ExecutionResult, error) {
	started := time.Now()
	command := strings.TrimSpace(contextScope)
	if command == "" {
		return &agent.ExecutionResult{
			Summary:    "no command defined, nothing to do",
			StartedAt:  started,
			FinishedAt: time.Now(),
		}, nil
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.workDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("command failed: %w\n%s", err, truncateOutput(out))
	}
	return &agent.ExecutionResult{
		Summary:    string(out),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}, nil
}

// truncateOutput bounds command output carried inside error messages.
func truncateOutput(out []byte) string {
	const limit = 2048
	s := strings.TrimSpace(string(out))
	if len(s) > limit {
		return s[:limit] + "... (truncated)"
	}
	return s
}
