package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrade/internal/ledger"
	"livetrade/internal/obs"
	"livetrade/internal/session"
	"livetrade/internal/strategy"
)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

type staticSessions []session.StatusSnapshot

func (s staticSessions) ListActiveSessions() []session.StatusSnapshot { return s }

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New()
	require.Error(t, s.AddJob("every now and then", &countingJob{}))
	assert.Zero(t, s.Jobs())
}

func TestScheduledJobRuns(t *testing.T) {
	s := New()
	job := &countingJob{err: errors.New("flaky")}
	require.NoError(t, s.AddJob("@every 1s", job))
	assert.Equal(t, 1, s.Jobs())

	s.Start()
	defer s.Stop()
	require.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestRunNow(t *testing.T) {
	s := New()
	job := &countingJob{}
	require.NoError(t, s.RunNow(job))
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestStatusReportAggregatesSessions(t *testing.T) {
	metrics := obs.NewMetrics()
	metrics.IncTicks()
	metrics.IncTicks()
	metrics.IncTrades()

	sessions := staticSessions{
		{
			ID:            "a",
			TotalTrades:   3,
			RealizedPnl:   decimal.NewFromInt(1000),
			UnrealizedPnl: decimal.NewFromInt(-50),
			Positions:     []ledger.Position{{Symbol: "AAPL"}, {Symbol: "MSFT"}},
		},
		{
			ID:            "b",
			TotalTrades:   1,
			RealizedPnl:   decimal.NewFromInt(-200),
			UnrealizedPnl: decimal.NewFromInt(75),
		},
	}

	var got StatusReport
	job := NewStatusReportJob(sessions, metrics, func(r StatusReport) { got = r })
	assert.Equal(t, "status_report", job.Name())
	require.NoError(t, job.Run())

	assert.Equal(t, 2, got.ActiveSessions)
	assert.Equal(t, 2, got.OpenPositions)
	assert.Equal(t, 4, got.TotalTrades)
	assert.True(t, decimal.NewFromInt(800).Equal(got.RealizedPnl))
	assert.True(t, decimal.NewFromInt(25).Equal(got.UnrealizedPnl))
	assert.Equal(t, uint64(2), got.Counters[obs.TicksTotal])
	assert.Equal(t, uint64(1), got.Counters[obs.TradesTotal])
}

func TestStatusReportOnRegistry(t *testing.T) {
	repo, err := strategy.NewMemoryRepository()
	require.NoError(t, err)
	reg, err := session.NewRegistry(repo, session.Config{})
	require.NoError(t, err)
	defer reg.Close(context.Background())

	job := NewStatusReportJob(reg, nil, nil)
	report := job.Build()
	assert.Zero(t, report.ActiveSessions)
	assert.True(t, report.RealizedPnl.IsZero())
	require.NoError(t, job.Run())
}
