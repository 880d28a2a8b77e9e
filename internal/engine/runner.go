// internal/engine/runner.go
package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scriptforge/api/schemas"
	"github.com/xkilldash9x/scriptforge/internal/config"
)

const (
	RunnerSimulated = "simulated"
	RunnerCommand   = "command"

	stepPassed = "passed"
	stepFailed = "failed"

	// maxOutputSteps bounds how many log lines are kept on a run.
	maxOutputSteps = 500
	logFileName    = "run.log"
)

// NewRunner selects the runner named by cfg.Runner.
func NewRunner(cfg config.EngineConfig, logger *zap.Logger) (Runner, error) {
	switch cfg.Runner {
	case "", RunnerSimulated:
		return &SimulatedRunner{StepTime: cfg.SimulatedStepTime}, nil
	case RunnerCommand:
		return NewCommandRunner(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown runner '%s'", cfg.Runner)
	}
}

// SimulatedRunner pretends to execute a script in four fixed steps and always passes.
type SimulatedRunner struct {
	StepTime time.Duration
}

func (r *SimulatedRunner) Run(ctx context.Context, job RunJob) (*schemas.RunOutcome, error) {
	browser := job.Browser
	if browser == "" {
		browser = "chromium"
	}
	actions := []string{
		"Parse script",
		fmt.Sprintf("Initialize browser (%s)", browser),
		"Execute test steps",
		"Verify results",
	}
	start := time.Now()
	steps := make([]schemas.TestStep, 0, len(actions))
	for _, action := range actions {
		stepStart := time.Now()
		if r.StepTime > 0 {
			t := time.NewTimer(r.StepTime)
			select {
			case <-ctx.Done():
				t.Stop()
				return &schemas.RunOutcome{Status: schemas.RunCancelled, Steps: steps}, ctx.Err()
			case <-t.C:
			}
		}
		steps = append(steps, schemas.TestStep{
			Action:   action,
			Status:   stepPassed,
			Duration: time.Since(stepStart).Milliseconds(),
		})
	}
	return &schemas.RunOutcome{Status: schemas.RunPassed, Duration: time.Since(start), Steps: steps}, nil
}

// CommandRunner writes the script into a scratch directory and runs the
// configured test command against it, following its output log.
type CommandRunner struct {
	command []string
	workDir string
	keep    bool
	logger  *zap.Logger
}

// NewCommandRunner resolves and creates the work directory.
func NewCommandRunner(cfg config.EngineConfig, logger *zap.Logger) (*CommandRunner, error) {
	if len(cfg.Command) == 0 {
		return nil, errors.New("engine.command is empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := cfg.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	dir, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve work dir '%s': %w", cfg.WorkDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create work dir '%s': %w", dir, err)
	}
	return &CommandRunner{
		command: append([]string(nil), cfg.Command...),
		workDir: dir,
		keep:    cfg.KeepWorkDir,
		logger:  logger.Named("command_runner"),
	}, nil
}

func scriptFileName(language string) string {
	switch strings.ToLower(language) {
	case "javascript", "js":
		return "script.spec.js"
	default:
		return "script.spec.ts"
	}
}

func (r *CommandRunner) Run(ctx context.Context, job RunJob) (*schemas.RunOutcome, error) {
	logger := r.logger.With(zap.String("run_id", job.RunID))
	dir, err := os.MkdirTemp(r.workDir, "run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	if !r.keep {
		defer os.RemoveAll(dir)
	}

	scriptName := scriptFileName(job.Language)
	if err := os.WriteFile(filepath.Join(dir, scriptName), []byte(job.Code), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}
	logPath := filepath.Join(dir, logFileName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}
	defer logFile.Close()

	args := append(append([]string(nil), r.command[1:]...), scriptName)
	if job.Browser != "" {
		args = append(args, "--browser="+job.Browser)
	}
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Dir = dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.Env = append(os.Environ(), "TEST_ENV="+job.Environment, "SCRIPTFORGE_RUN_ID="+job.RunID)

	t, err := tail.TailFile(logPath, tail.Config{
		Follow:    true,
		MustExist: true,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to follow run log: %w", err)
	}
	defer t.Cleanup()

	collector := newOutputCollector(logger)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		collector.consume(t.Lines)
	}()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = t.Stop()
		wg.Wait()
		return nil, fmt.Errorf("failed to start test command: %w", err)
	}
	waitErr := cmd.Wait()
	elapsed := time.Since(start)

	// The polling tailer may still be waiting for a change when the command
	// exits, so stop it and read whatever it has not delivered yet.
	if err := t.Stop(); err != nil && !errors.Is(err, tail.ErrStop) {
		logger.Warn("Run log tailer stopped with error", zap.Error(err))
	}
	wg.Wait()
	if err := collector.drain(logPath); err != nil {
		logger.Warn("Failed to read the rest of the run log", zap.Error(err))
	}

	steps := collector.steps()
	out := &schemas.RunOutcome{Duration: elapsed, Steps: steps}
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		out.Status = schemas.RunPassed
	case ctx.Err() != nil:
		out.Status = schemas.RunCancelled
		return out, ctx.Err()
	case errors.As(waitErr, &exitErr):
		out.Status = schemas.RunFailed
		out.ErrorMsg = fmt.Sprintf("Test command exited with code %d", exitErr.ExitCode())
		if last := collector.lastLine(); last != "" {
			out.ErrorMsg += ": " + last
		}
	default:
		return nil, fmt.Errorf("test command failed: %w", waitErr)
	}
	return out, nil
}

// outputCollector turns log lines into run steps.
type outputCollector struct {
	logger *zap.Logger
	mu     sync.Mutex
	lines  []schemas.TestStep
	last   string
	at     time.Time
	// offset is the number of log bytes already delivered as lines.
	offset int64
}

func newOutputCollector(logger *zap.Logger) *outputCollector {
	return &outputCollector{logger: logger, at: time.Now()}
}

func (c *outputCollector) consume(lines <-chan *tail.Line) {
	for line := range lines {
		if line.Err != nil {
			c.logger.Warn("Error reading run log", zap.Error(line.Err))
			continue
		}
		c.mu.Lock()
		c.offset += int64(len(line.Text)) + 1
		c.mu.Unlock()
		c.handle(line.Text)
	}
}

// drain reads the log from the last delivered offset to EOF, including a
// final line with no trailing newline.
func (c *outputCollector) drain(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		c.handle(sc.Text())
	}
	return sc.Err()
}

func (c *outputCollector) handle(raw string) {
	text := strings.TrimRight(raw, "\r")
	if strings.TrimSpace(text) == "" {
		return
	}
	c.logger.Debug("runner output", zap.String("line", text))
	c.add(text)
}

func (c *outputCollector) add(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	status := stepPassed
	lower := strings.ToLower(text)
	if strings.Contains(lower, "error") || strings.Contains(lower, "failed") || strings.Contains(text, "✘") {
		status = stepFailed
	}
	c.last = strings.TrimSpace(text)
	if len(c.lines) < maxOutputSteps {
		c.lines = append(c.lines, schemas.TestStep{
			Action:   "output",
			Status:   status,
			Duration: now.Sub(c.at).Milliseconds(),
			Output:   text,
		})
	}
	c.at = now
}

func (c *outputCollector) steps() []schemas.TestStep {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schemas.TestStep{}, c.lines...)
}

func (c *outputCollector) lastLine() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
