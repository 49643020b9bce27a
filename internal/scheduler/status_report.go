package scheduler

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"livetrade/internal/obs"
	"livetrade/internal/session"
)

// SessionLister is the read side of session.Registry.
type SessionLister interface {
	ListActiveSessions() []session.StatusSnapshot
}

// StatusReport is the aggregate logged by StatusReportJob.
type StatusReport struct {
	ActiveSessions int
	OpenPositions  int
	TotalTrades    int
	RealizedPnl    decimal.Decimal
	UnrealizedPnl  decimal.Decimal
	Counters       map[string]uint64
}

// StatusReportJob logs the state of every active session.
type StatusReportJob struct {
	sessions SessionLister
	metrics  *obs.Metrics
	sink     func(StatusReport)
}

// NewStatusReportJob reports to the log unless sink is given.
func NewStatusReportJob(sessions SessionLister, metrics *obs.Metrics, sink func(StatusReport)) *StatusReportJob {
	if sink == nil {
		sink = logReport
	}
	return &StatusReportJob{sessions: sessions, metrics: metrics, sink: sink}
}

func (j *StatusReportJob) Name() string {
	return "status_report"
}

func (j *StatusReportJob) Run() error {
	j.sink(j.Build())
	return nil
}

// Build aggregates the current state without reporting it.
func (j *StatusReportJob) Build() StatusReport {
	report := StatusReport{
		RealizedPnl:   decimal.Zero,
		UnrealizedPnl: decimal.Zero,
		Counters:      j.metrics.Snapshot().Counters,
	}
	for _, s := range j.sessions.ListActiveSessions() {
		report.ActiveSessions++
		report.OpenPositions += len(s.Positions)
		report.TotalTrades += s.TotalTrades
		report.RealizedPnl = report.RealizedPnl.Add(s.RealizedPnl)
		report.UnrealizedPnl = report.UnrealizedPnl.Add(s.UnrealizedPnl)
	}
	return report
}

func logReport(r StatusReport) {
	var b strings.Builder
	for _, name := range []string{obs.TicksTotal, obs.TickErrorsTotal, obs.TradesTotal, obs.NotifyDropsTotal} {
		if b.Len() > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(strconv.FormatUint(r.Counters[name], 10))
	}
	logs.Infof("status report. active sessions: %d, open positions: %d, trades: %d, realized pnl: %s, unrealized pnl: %s, counters: [%s]",
		r.ActiveSessions, r.OpenPositions, r.TotalTrades, r.RealizedPnl, r.UnrealizedPnl, b.String())
}
