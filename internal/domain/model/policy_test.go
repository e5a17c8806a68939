package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicies(t *testing.T) {
	pt := DefaultPolicies()
	require.NoError(t, pt.Validate())

	vision, ok := pt.Lookup(JobTypeVisionAnalysis)
	require.True(t, ok)
	assert.Equal(t, 2, vision.MaxRetries)
	assert.Equal(t, 180*time.Second, vision.Timeout)
	assert.Equal(t, PriorityHigh, vision.DefaultPriority)

	recon, _ := pt.Lookup(JobTypeReconstruction)
	assert.Equal(t, 3, recon.MaxRetries)

	nvt, _ := pt.Lookup(JobTypeNovelViewTraining)
	assert.Equal(t, 2, nvt.MaxRetries)
	assert.Equal(t, 7200*time.Second, nvt.Timeout)
	assert.Equal(t, PriorityLow, nvt.DefaultPriority)

	for _, jt := range AllJobTypes() {
		_, ok := pt.Lookup(jt)
		assert.True(t, ok, jt)
	}
}

func TestJobPolicy_RetryDelay(t *testing.T) {
	p := JobPolicy{}
	assert.Equal(t, 2*time.Second, p.RetryDelay(1))
	assert.Equal(t, 4*time.Second, p.RetryDelay(2))
	assert.Equal(t, 8*time.Second, p.RetryDelay(3))

	explicit := JobPolicy{RetryDelays: []time.Duration{time.Minute, 2 * time.Minute}}
	assert.Equal(t, time.Minute, explicit.RetryDelay(1))
	assert.Equal(t, 2*time.Minute, explicit.RetryDelay(2))
	assert.Equal(t, 2*time.Minute, explicit.RetryDelay(5))
}

func TestExponentialDelayCap(t *testing.T) {
	assert.Equal(t, time.Second, ExponentialDelay(0))
	assert.Equal(t, time.Hour, ExponentialDelay(40))
}

func TestPolicyTable_Merge(t *testing.T) {
	base := DefaultPolicies()
	low := PriorityLow
	cmd := "vision-cli"
	merged := base.Merge(map[JobType]PolicyOverride{
		JobTypeVisionAnalysis: {DefaultPriority: &low, Command: &cmd, Args: []string{"--fast"}},
	})

	vision := merged[JobTypeVisionAnalysis]
	assert.Equal(t, PriorityLow, vision.DefaultPriority)
	assert.Equal(t, 2, vision.MaxRetries)
	assert.Equal(t, "vision-cli", vision.Command)
	assert.Equal(t, []string{"--fast"}, vision.Args)
	assert.Equal(t, PriorityHigh, base[JobTypeVisionAnalysis].DefaultPriority, "base must not be mutated")
}

func TestPolicyTable_MergeExplicitZero(t *testing.T) {
	zero := 0
	merged := DefaultPolicies().Merge(map[JobType]PolicyOverride{
		JobTypeReconstruction: {MaxRetries: &zero},
	})

	assert.Equal(t, 0, merged[JobTypeReconstruction].MaxRetries)
	assert.Equal(t, time.Hour, merged[JobTypeReconstruction].Timeout)
	assert.NoError(t, merged.Validate())
}

func TestPolicyTable_Validate(t *testing.T) {
	bad := PolicyTable{JobTypeVisionAnalysis: {Timeout: 0, DefaultPriority: PriorityHigh}}
	assert.Error(t, bad.Validate())

	bad = PolicyTable{JobType("x"): {Timeout: time.Second, DefaultPriority: PriorityHigh}}
	assert.Error(t, bad.Validate())
}
