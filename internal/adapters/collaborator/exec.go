package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-media-jobs/internal/core"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

// Exit codes with a fixed meaning for exec collaborators (sysexits.h).
const (
	exitDataErr  = 65 // input is unusable: permanent
	exitTempFail = 75 // try again later: transient
)

const (
	progressPrefix = "PROGRESS "
	stderrTailSize = 2048
	maxLineSize    = 1 << 20
)

// Exec runs a pipeline as a child process. The invocation is written to stdin as JSON.
// Stdout lines of the form "PROGRESS <percent> [message]" report progress; the last
// other non-empty stdout line must be a JSON Outcome. Without an outcome line the exit
// status decides: 0 is a protocol error, 65 is permanent and anything else transient.
type Exec struct {
	Command string
	Args    []string
	Env     []string
	// WaitDelay bounds how long to wait for output after the context kills the process.
	WaitDelay time.Duration
	Logger    *slog.Logger
}

var _ core.Collaborator = (*Exec)(nil)

// Execute runs the command under ctx.
func (e *Exec) Execute(ctx context.Context, inv model.Invocation, progress core.ProgressFunc) (model.Outcome, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	input, err := json.Marshal(inv)
	if err != nil {
		return model.Outcome{}, apperrors.Permanent(fmt.Errorf("marshal invocation: %w", err))
	}

	// #nosec G204 -- command comes from operator configuration, not request input
	cmd := exec.CommandContext(ctx, e.Command, e.Args...)
	cmd.Env = append(os.Environ(), e.Env...)
	cmd.Env = append(cmd.Env, "MEDIAJOBS_JOB_ID="+inv.JobID, "MEDIAJOBS_JOB_TYPE="+string(inv.Type))
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}
	var stderr tailBuffer
	stderr.limit = stderrTailSize
	cmd.Stderr = &stderr

	filter := progressFilter(progress)
	stdout := &lineWriter{onLine: filter}
	cmd.Stdout = stdout
	if err := cmd.Start(); err != nil {
		return model.Outcome{}, apperrors.Permanent(fmt.Errorf("start %s: %w", e.Command, err))
	}
	waitErr := cmd.Wait()
	stdout.flush()
	outcomeLine := filter.last

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return model.TransientFailure("execution timed out"), nil
		}
		return model.Outcome{Status: model.OutcomeCancelled, Error: "execution cancelled"}, nil
	}

	if outcomeLine != "" {
		var out model.Outcome
		if err := json.Unmarshal([]byte(outcomeLine), &out); err == nil && out.Status != "" {
			return out, nil
		}
		logger.WarnContext(ctx, "collaborator emitted unparseable outcome", "job_id", inv.JobID, "line", outcomeLine)
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		return model.Outcome{}, apperrors.Transient(errors.New("collaborator exited without an outcome"))
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() == exitDataErr:
		return model.PermanentFailure(failureText(exitErr, stderr.String())), nil
	case errors.As(waitErr, &exitErr):
		if exitErr.ExitCode() != exitTempFail {
			logger.InfoContext(ctx, "collaborator exited non-zero", "job_id", inv.JobID, "exit_code", exitErr.ExitCode())
		}
		return model.TransientFailure(failureText(exitErr, stderr.String())), nil
	default:
		return model.Outcome{}, apperrors.Transient(fmt.Errorf("wait %s: %w", e.Command, waitErr))
	}
}

// outputFilter forwards progress lines and remembers the last other non-empty line.
type outputFilter struct {
	progress core.ProgressFunc
	last     string
}

func progressFilter(progress core.ProgressFunc) *outputFilter {
	return &outputFilter{progress: progress}
}

func (f *outputFilter) line(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if pct, msg, ok := parseProgress(line); ok {
		if f.progress != nil {
			f.progress(pct, msg)
		}
		return
	}
	f.last = line
}

// lineWriter splits written bytes into lines for an outputFilter. os/exec copies
// stdout into it from its own goroutine, so Wait's WaitDelay still applies.
type lineWriter struct {
	buf    []byte
	onLine *outputFilter
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.onLine.line(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) > maxLineSize {
		w.onLine.line(string(w.buf))
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *lineWriter) flush() {
	if len(w.buf) > 0 {
		w.onLine.line(string(w.buf))
		w.buf = nil
	}
}

func parseProgress(line string) (int, string, bool) {
	rest, ok := strings.CutPrefix(line, progressPrefix)
	if !ok {
		return 0, "", false
	}
	num, msg, _ := strings.Cut(strings.TrimSpace(rest), " ")
	pct, err := strconv.Atoi(num)
	if err != nil || pct < 0 || pct > 100 {
		return 0, "", false
	}
	return pct, strings.TrimSpace(msg), true
}

func failureText(exitErr *exec.ExitError, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return fmt.Sprintf("exit status %d", exitErr.ExitCode())
	}
	return fmt.Sprintf("exit status %d: %s", exitErr.ExitCode(), stderr)
}

// tailBuffer keeps the last limit bytes written.
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
