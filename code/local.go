package code

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentchat/logging"
)

const (
	// DefaultTimeout bounds the execution of one block.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxOutput caps the output returned for a batch of blocks.
	DefaultMaxOutput = 4000

	timeoutExitCode = 124
)

// LocalOptions configures a LocalExecutor.
type LocalOptions struct {
	// WorkDir receives the script files. A temporary directory is created
	// on first use when empty.
	WorkDir   string
	Timeout   time.Duration
	MaxOutput int
	Logger    logging.Logger
}

type interpreter struct {
	command string
	ext     string
}

var interpreters = map[string]interpreter{
	"sh":      {command: "sh", ext: "sh"},
	"shell":   {command: "sh", ext: "sh"},
	"bash":    {command: "bash", ext: "sh"},
	"python":  {command: "python3", ext: "py"},
	"py":      {command: "python3", ext: "py"},
	"python3": {command: "python3", ext: "py"},
}

// LocalExecutor runs code blocks as child processes of the current process.
// It provides no isolation; use it only with trusted models.
type LocalExecutor struct {
	mu   sync.Mutex
	opts LocalOptions
}

// NewLocalExecutor creates a LocalExecutor.
func NewLocalExecutor(optFns ...func(o *LocalOptions)) *LocalExecutor {
	opts := LocalOptions{
		Timeout:   DefaultTimeout,
		MaxOutput: DefaultMaxOutput,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &LocalExecutor{opts: opts}
}

// WorkDir returns the directory scripts are written to.
func (e *LocalExecutor) WorkDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts.WorkDir
}

// Execute implements Executor.
func (e *LocalExecutor) Execute(ctx context.Context, blocks []Block) (Result, error) {
	dir, err := e.ensureWorkDir()
	if err != nil {
		return Result{}, err
	}

	var (
		out      strings.Builder
		exitCode int
	)

	for _, b := range blocks {
		interp, ok := interpreters[strings.ToLower(b.Language)]
		if !ok {
			out.WriteString("unknown language " + b.Language)
			exitCode = 1
			break
		}

		output, code, err := e.run(ctx, dir, interp, b.Code)
		if err != nil {
			return Result{}, err
		}

		out.WriteString(output)
		exitCode = code

		if code != 0 {
			break
		}
	}

	return Result{ExitCode: exitCode, Output: truncate(out.String(), e.opts.MaxOutput)}, nil
}

func (e *LocalExecutor) ensureWorkDir() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.opts.WorkDir == "" {
		dir, err := os.MkdirTemp("", "agentchat-code-")
		if err != nil {
			return "", fmt.Errorf("code: create work dir: %w", err)
		}
		e.opts.WorkDir = dir
		return dir, nil
	}

	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return "", fmt.Errorf("code: create work dir: %w", err)
	}

	return e.opts.WorkDir, nil
}

func (e *LocalExecutor) run(ctx context.Context, dir string, interp interpreter, src string) (string, int, error) {
	file := filepath.Join(dir, "tmp_code_"+uuid.NewString()+"."+interp.ext)
	if err := os.WriteFile(file, []byte(src), 0o600); err != nil {
		return "", 0, fmt.Errorf("code: write script: %w", err)
	}
	defer os.Remove(file)

	runCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, interp.command, filepath.Base(file))
	cmd.Dir = dir
	cmd.Env = filterEnvironment()
	cmd.WaitDelay = time.Second

	start := time.Now()
	output, err := cmd.CombinedOutput()

	e.opts.Logger.Debug("code.block.executed", "interpreter", interp.command, "duration", time.Since(start))

	if err == nil {
		return string(output), 0, nil
	}

	if ctx.Err() != nil {
		return "", 0, ctx.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return string(output) + "Timeout", timeoutExitCode, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(output), exitErr.ExitCode(), nil
	}

	// The interpreter could not be started.
	return err.Error(), 1, nil
}

var sensitiveEnvSuffixes = []string{"_API_KEY", "_SECRET", "_TOKEN", "_PASSWORD", "_CREDENTIAL"}

// filterEnvironment drops credentials from the environment passed to
// generated code.
func filterEnvironment() []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env))

	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		upper := strings.ToUpper(name)
		sensitive := false
		for _, suffix := range sensitiveEnvSuffixes {
			if strings.HasSuffix(upper, suffix) {
				sensitive = true
				break
			}
		}

		if !sensitive {
			filtered = append(filtered, kv)
		}
	}

	return filtered
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n... (output truncated)"
}
