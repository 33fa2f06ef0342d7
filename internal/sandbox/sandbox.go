// Package sandbox runs tool snippets in short-lived subprocesses. Each run
// wraps the user code in a fixed runner for its language runtime: input
// arrives as JSON on stdin, and the snippet's return value leaves as a
// single JSON object on the last stdout line. A hard wall-clock timeout
// kills the whole process group.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ValeryJL/InsanusChat-Backend/internal/metrics"
	"github.com/ValeryJL/InsanusChat-Backend/pkg/logger"
)

// Supported snippet languages
const (
	LanguagePython     = "python"
	LanguageJavaScript = "javascript"
)

// Config configures the executor
type Config struct {
	Timeout        time.Duration
	PythonBin      string
	NodeBin        string
	WorkDir        string // temp dir for runner scripts; empty means os.TempDir
	MaxOutputBytes int64
}

// DefaultConfig returns the executor defaults
func DefaultConfig() Config {
	return Config{
		Timeout:        8 * time.Second,
		PythonBin:      "python3",
		NodeBin:        "node",
		MaxOutputBytes: 1 << 20,
	}
}

// Result is the structured outcome of a snippet run. Execute never fails
// past its own boundary: every failure mode lands in Success=false with a
// populated Error.
type Result struct {
	Success  bool   `json:"success"`
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"returncode"`
}

// Executor runs snippets in subprocesses.
type Executor struct {
	cfg Config
	log *logger.Logger
}

// NewExecutor creates an executor with the given config, filling zero
// fields from DefaultConfig.
func NewExecutor(cfg Config, log *logger.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.PythonBin == "" {
		cfg.PythonBin = def.PythonBin
	}
	if cfg.NodeBin == "" {
		cfg.NodeBin = def.NodeBin
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = def.MaxOutputBytes
	}
	return &Executor{cfg: cfg, log: log}
}

// Execute runs code under the given language runtime, feeding input as JSON
// on stdin. It blocks until the process exits or the timeout fires.
func (e *Executor) Execute(ctx context.Context, language, code string, input any) Result {
	start := time.Now()
	res := e.execute(ctx, language, code, input)

	outcome := "ok"
	if !res.Success {
		outcome = "error"
		if res.Error == "timeout" {
			outcome = "timeout"
		}
	}
	metrics.ToolCalls.WithLabelValues("snippet", outcome).Inc()
	e.log.Debug("snippet executed",
		"language", language,
		"success", res.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (e *Executor) execute(ctx context.Context, language, code string, input any) Result {
	var bin, suffix, wrapper string
	switch strings.ToLower(language) {
	case LanguagePython, "py":
		bin, suffix, wrapper = e.cfg.PythonBin, ".py", WrapPython(code)
	case LanguageJavaScript, "js":
		bin, suffix, wrapper = e.cfg.NodeBin, ".js", WrapJavaScript(code)
	default:
		return Result{Success: false, Error: fmt.Sprintf("unsupported_language: %s", language)}
	}

	script, err := e.writeRunner(suffix, wrapper)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("runner_setup: %v", err)}
	}
	defer os.Remove(script)

	stdin, err := json.Marshal(input)
	if err != nil {
		stdin = []byte(fmt.Sprintf("%v", input))
	}

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, bin, script)
	setSysProcAttr(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.Stdin = bytes.NewReader(stdin)

	stdout := newLimitedBuffer(e.cfg.MaxOutputBytes)
	stderr := newLimitedBuffer(e.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{Success: false, Error: "timeout"}
	}

	res := ParseRunnerOutput(stdout.String())
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr != nil && res.Error == "" {
		// Non-zero exit without a contract-conformant error line still
		// counts as a failure.
		res.Success = false
		res.Result = nil
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Error = "execution_failed"
		} else {
			res.Error = fmt.Sprintf("exec_error: %v", runErr)
		}
	}
	return res
}

func (e *Executor) writeRunner(suffix, wrapper string) (string, error) {
	dir := e.cfg.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	f, err := os.CreateTemp(dir, "snippet-*"+suffix)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(wrapper); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return filepath.Clean(f.Name()), nil
}

// ParseRunnerOutput reads the runner contract off captured stdout: the last
// non-empty line must be a JSON object carrying success plus result or
// error. Output that does not follow the contract is treated as a raw
// successful result, matching snippets that print instead of returning.
func ParseRunnerOutput(stdout string) Result {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Result{Success: false, Error: "no_output"}
	}

	var parsed struct {
		Success bool   `json:"success"`
		Result  any    `json:"result"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal([]byte(last), &parsed); err != nil {
		// Snippets that print instead of returning still produce a usable
		// result: hand the raw output back.
		return Result{Success: true, Result: stdout}
	}
	return Result{Success: parsed.Success, Result: parsed.Result, Error: parsed.Error}
}

// limitedBuffer caps how much process output is retained; overflow is
// silently discarded so a chatty snippet cannot exhaust memory.
type limitedBuffer struct {
	buf bytes.Buffer
	max int64
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
