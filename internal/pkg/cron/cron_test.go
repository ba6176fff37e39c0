package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/bravo_premium_server/internal/pkg/metrics"
)

type fakeExpirer struct {
	calls atomic.Int32
	ids   []int64
	err   error
}

func (f *fakeExpirer) ExpireStale(context.Context) ([]int64, error) {
	f.calls.Add(1)
	return f.ids, f.err
}

type fakeCounter struct {
	counts map[string]int64
	err    error
}

func (f *fakeCounter) StatusCounts(context.Context) (map[string]int64, error) {
	return f.counts, f.err
}

type fakeSweeper struct {
	calls atomic.Int32
}

func (f *fakeSweeper) Sweep() int {
	f.calls.Add(1)
	return 2
}

func TestNewService_DefaultInterval(t *testing.T) {
	svc := NewService(&fakeExpirer{}, nil, nil, nil, 0)
	assert.Equal(t, time.Hour, svc.interval)
	assert.NotNil(t, svc.stopChan)
}

func TestService_RunNow(t *testing.T) {
	expirer := &fakeExpirer{ids: []int64{1, 2}}
	sweeper := &fakeSweeper{}
	m := metrics.New()
	svc := NewService(expirer, &fakeCounter{counts: map[string]int64{"premium": 3}}, sweeper, m, time.Minute)

	require.NoError(t, svc.RunNow(context.Background()))

	assert.Equal(t, int32(1), expirer.calls.Load())
	assert.Equal(t, int32(1), sweeper.calls.Load())

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if f.GetName() == "bravo_premium_entitlements" {
			found = true
			assert.Equal(t, 3.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, found)
}

func TestService_RunNow_ExpirerError(t *testing.T) {
	boom := errors.New("db down")
	sweeper := &fakeSweeper{}
	svc := NewService(&fakeExpirer{err: boom}, nil, sweeper, nil, time.Minute)

	err := svc.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, sweeper.calls.Load())
}

func TestService_RunNow_CounterError(t *testing.T) {
	boom := errors.New("count failed")
	svc := NewService(&fakeExpirer{}, &fakeCounter{err: boom}, nil, metrics.New(), time.Minute)

	assert.ErrorIs(t, svc.RunNow(context.Background()), boom)
}

func TestService_StartAndStop(t *testing.T) {
	expirer := &fakeExpirer{}
	svc := NewService(expirer, nil, nil, nil, 5*time.Millisecond)

	svc.Start()
	assert.Eventually(t, func() bool { return expirer.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	svc.Stop()
	// Stop is idempotent
	svc.Stop()
}

func TestService_StopBeforeStart(t *testing.T) {
	svc := NewService(&fakeExpirer{}, nil, nil, nil, time.Minute)
	svc.Stop()
}
