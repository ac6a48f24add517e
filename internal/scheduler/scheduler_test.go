package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zap.NewNop())
	err := s.AddJob("not a schedule", &countingJob{})
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	s := New(zap.NewNop())
	job := &countingJob{err: errors.New("boom")}

	require.NoError(t, s.AddJob("@every 1h", job))
	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())

	s.Start()
	s.Stop()
}
