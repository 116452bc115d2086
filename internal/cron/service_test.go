package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotaclub/settlement/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsEverySweepEvenWhenOneFails(t *testing.T) {
	liquidation := &countingJob{name: LiquidationSweepJobName, err: errors.New("loan 7 locked")}
	fund := &countingJob{name: GuaranteeFundSweepJobName}
	lock := &fakeLock{}

	err := newTestService(t, lock, liquidation, fund).RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), LiquidationSweepJobName)
	assert.Equal(t, 1, liquidation.runs)
	assert.Equal(t, 1, fund.runs)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunOnceSkipsWhileAnotherWorkerHoldsTheLock(t *testing.T) {
	job := &countingJob{name: ReferralRetryJobName}
	lock := &fakeLock{held: true}

	require.NoError(t, newTestService(t, lock, job).RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceStopsOnCanceledContext(t *testing.T) {
	job := &countingJob{name: LiquidationSweepJobName}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newTestService(t, &fakeLock{}, job).RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, job.runs)
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}
