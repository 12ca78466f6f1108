package processmonitor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/kubescape/process-monitor/pkg/config"
	"github.com/kubescape/process-monitor/pkg/metricsmanager"
	"github.com/kubescape/process-monitor/pkg/processmonitor"
)

// Supervisor keeps a monitor running, re-creating the subscription with exponential backoff
// whenever Run fails. The backoff starts over after a run that got as far as pulling events.
type Supervisor struct {
	monitor processmonitor.ProcessMonitor
	cfg     config.ReconnectConfig
	metrics metricsmanager.MetricsManager
}

func NewSupervisor(monitor processmonitor.ProcessMonitor, cfg config.ReconnectConfig, metrics metricsmanager.MetricsManager) *Supervisor {
	return &Supervisor{
		monitor: monitor,
		cfg:     cfg,
		metrics: metrics,
	}
}

// newBackOff returns the full policy. Resetting it clears both the interval and the retry budget.
func (s *Supervisor) newBackOff(ctx context.Context) backoff.BackOff {
	expBackOff := backoff.NewExponentialBackOff()
	expBackOff.InitialInterval = s.cfg.InitialInterval
	if s.cfg.MaxInterval > 0 {
		expBackOff.MaxInterval = s.cfg.MaxInterval
	}
	expBackOff.MaxElapsedTime = 0
	var b backoff.BackOff = expBackOff
	if s.cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, s.cfg.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Run blocks until ctx is cancelled, the retry budget is spent, or reconnecting is disabled and
// the monitor fails. It returns nil only on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return s.monitor.Run(ctx)
	}

	b := s.newBackOff(ctx)
	attempt := 0
	operation := func() error {
		if attempt > 0 {
			s.metrics.ReportSubscriptionRestart()
		}
		attempt++
		err := s.monitor.Run(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			// the monitor only stops cleanly on cancellation
			return errors.New("process monitor stopped unexpectedly")
		}
		if errors.Is(err, errors.ErrUnsupported) {
			return backoff.Permanent(err)
		}
		if reachedPull(err) {
			b.Reset()
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.L().Warning("monitor stopped, restarting",
			helpers.Error(err),
			helpers.Int("attempt", attempt),
			helpers.String("backoff", next.String()))
	}

	err := backoff.RetryNotify(operation, b, notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// reachedPull reports whether the failed run had a working subscription.
func reachedPull(err error) bool {
	var connErr *processmonitor.ConnectionError
	if errors.As(err, &connErr) {
		return connErr.Op == processmonitor.OpPull
	}
	var decodeErr *processmonitor.DecodeError
	return errors.As(err, &decodeErr)
}
