package health

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start begins periodic probing every Interval and runs a first sweep right
// away. cron schedules at one-second granularity, so shorter intervals run
// once per second. Calling Start on a running monitor does nothing.
func (m *Monitor) Start() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.sched != nil {
		return
	}

	logger := cronLogger{s: m.logger.Named("cron").Sugar()}
	job := cron.NewChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	).Then(cron.FuncJob(m.sweep))

	c := cron.New(cron.WithLogger(logger))
	c.Schedule(cron.Every(m.interval), job)
	c.Start()
	m.sched = c

	m.sweeps.Add(1)
	go func() {
		defer m.sweeps.Done()
		job.Run()
	}()
	m.logger.Info("periodic health checks started", zap.Duration("interval", m.interval))
}

func (m *Monitor) sweep() {
	views := m.CheckAll(context.Background())
	m.logger.Debug("health sweep finished", zap.Int("services", len(views)))
}

// StopPeriodicChecks prevents any further scheduled probe. Probes already in
// flight run to completion; the returned context is done once they have.
func (m *Monitor) StopPeriodicChecks() context.Context {
	m.runMu.Lock()
	s := m.sched
	m.sched = nil
	m.runMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		if s != nil {
			<-s.Stop().Done()
		}
		m.sweeps.Wait()
	}()
	return ctx
}
