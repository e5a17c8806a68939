package collaborator

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/mmk-media-jobs/internal/domain/model"
	apperrors "github.com/target/mmk-media-jobs/internal/errors"
)

func shell(t *testing.T, script string) *Exec {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	return &Exec{Command: "sh", Args: []string{"-c", script}, WaitDelay: time.Second}
}

type progressLog struct {
	mu   sync.Mutex
	pcts []int
}

func (p *progressLog) record(pct int, _ string) {
	p.mu.Lock()
	p.pcts = append(p.pcts, pct)
	p.mu.Unlock()
}

var testInvocation = model.Invocation{JobID: "job-1", Type: model.JobTypeMeshOptimization, InputReference: "s3://in/mesh.glb"}

func TestExec_SuccessWithProgress(t *testing.T) {
	c := shell(t, `cat >/dev/null
echo "PROGRESS 10 decimating"
echo "PROGRESS 60"
echo "some log line"
echo '{"status":"success","output_reference":"s3://out/lod.zip"}'`)

	var log progressLog
	out, err := c.Execute(context.Background(), testInvocation, log.record)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSuccess, out.Status)
	assert.Equal(t, "s3://out/lod.zip", out.OutputReference)
	assert.Equal(t, []int{10, 60}, log.pcts)
}

func TestExec_ReadsInvocationFromStdin(t *testing.T) {
	c := shell(t, `input=$(cat)
case "$input" in
  *'"job_id":"job-1"'*) echo '{"status":"success","output_reference":"ok"}' ;;
  *) echo '{"status":"permanent_failure","error":"bad input"}' ;;
esac`)
	out, err := c.Execute(context.Background(), testInvocation, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.OutputReference)
}

func TestExec_ExitCodes(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   model.OutcomeStatus
	}{
		{name: "data error is permanent", script: `echo "corrupt" >&2; exit 65`, want: model.OutcomePermanentFailure},
		{name: "tempfail is transient", script: `exit 75`, want: model.OutcomeTransientFailure},
		{name: "other failures are transient", script: `exit 1`, want: model.OutcomeTransientFailure},
		{name: "explicit outcome wins over exit code", script: `echo '{"status":"permanent_failure","error":"unsupported"}'; exit 1`, want: model.OutcomePermanentFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := shell(t, tt.script).Execute(context.Background(), testInvocation, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Status)
		})
	}
}

func TestExec_StderrInFailureText(t *testing.T) {
	out, err := shell(t, `echo "cuda oom" >&2; exit 1`).Execute(context.Background(), testInvocation, nil)
	require.NoError(t, err)
	assert.Contains(t, out.Error, "cuda oom")
}

func TestExec_NoOutcomeOnCleanExit(t *testing.T) {
	_, err := shell(t, `true`).Execute(context.Background(), testInvocation, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))
}

func TestExec_MissingBinaryIsPermanent(t *testing.T) {
	c := &Exec{Command: "/nonexistent/pipeline"}
	_, err := c.Execute(context.Background(), testInvocation, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsPermanent(err))
}

func TestExec_Timeout(t *testing.T) {
	c := shell(t, `sleep 5`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	out, err := c.Execute(ctx, testInvocation, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeTransientFailure, out.Status)
}

func TestExec_Cancel(t *testing.T) {
	c := shell(t, `sleep 5`)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	out, err := c.Execute(ctx, testInvocation, nil)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeCancelled, out.Status)
}

func TestParseProgress(t *testing.T) {
	pct, msg, ok := parseProgress("PROGRESS 42 meshing stage")
	assert.True(t, ok)
	assert.Equal(t, 42, pct)
	assert.Equal(t, "meshing stage", msg)

	_, _, ok = parseProgress("PROGRESS 101")
	assert.False(t, ok)
	_, _, ok = parseProgress("PROGRESS abc")
	assert.False(t, ok)
	_, _, ok = parseProgress("progress 5")
	assert.False(t, ok)
}

func TestTailBuffer(t *testing.T) {
	b := tailBuffer{limit: 4}
	_, _ = b.Write([]byte("abcdef"))
	assert.Equal(t, "cdef", b.String())
}
