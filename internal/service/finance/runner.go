// internal/service/finance/runner.go
package finance

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	xerrors "stockwatch/internal/pkg/errors"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

//go:embed finance.py
var script string

// Runner executes one finance command and returns its JSON output.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// PythonRunner runs the embedded script with at most `workers` processes
// alive at once. Arguments go through argv and are never interpolated.
type PythonRunner struct {
	python  string
	timeout time.Duration
	sem     *semaphore.Weighted
	logger  *zap.Logger
}

func NewPythonRunner(python string, workers int, timeout time.Duration, logger *zap.Logger) *PythonRunner {
	if workers < 1 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PythonRunner{
		python:  python,
		timeout: timeout,
		sem:     semaphore.NewWeighted(int64(workers)),
		logger:  logger,
	}
}

func (r *PythonRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.python, append([]string{"-c", script}, args...)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "timed out after " + r.timeout.String()
		}
		r.logger.Warn("finance command failed",
			zap.Strings("args", args),
			zap.String("stderr", msg),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", xerrors.ErrProviderFailed, msg)
	}

	r.logger.Debug("finance command done",
		zap.Strings("args", args),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
