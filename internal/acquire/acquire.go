package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/browser"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// Schedule is the progressive retry plan: attempt n uses Timeouts[n] for the
// page load and SettleWaits[n] for post-load stabilization. The worst-case
// wall time is the sum of all entries plus the inter-attempt backoffs, so the
// whole machine is bounded by construction.
type Schedule struct {
	Timeouts     []time.Duration
	SettleWaits  []time.Duration
	RetryBackoff time.Duration
	WarmupScroll int
	WarmupWait   time.Duration
}

// ScheduleFromConfig converts the YAML acquire section into a Schedule.
func ScheduleFromConfig(cfg config.AcquireConfig) Schedule {
	s := Schedule{
		RetryBackoff: cfg.RetryBackoff.Duration,
		WarmupScroll: cfg.WarmupScroll,
		WarmupWait:   cfg.WarmupWait.Duration,
	}
	for _, d := range cfg.Timeouts {
		s.Timeouts = append(s.Timeouts, d.Duration)
	}
	for _, d := range cfg.SettleWaits {
		s.SettleWaits = append(s.SettleWaits, d.Duration)
	}
	return s
}

// Machine drives a page driver through the progressive-timeout retry
// sequence until a stabilized snapshot is produced or every attempt fails.
// It never consults the AI judge; escalation is the orchestrator's call.
type Machine struct {
	schedule Schedule
	logger   *slog.Logger

	// sleep is swapped out in tests to assert the schedule without waiting it.
	sleep func(context.Context, time.Duration) error
}

// New builds an acquisition machine for the given schedule.
func New(schedule Schedule, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		schedule: schedule,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Acquire obtains a stabilized PageSnapshot for the URL or fails with an
// error matching types.ErrAcquisitionTimeout or types.ErrAcquisitionDriver.
func (m *Machine) Acquire(ctx context.Context, drv browser.Driver, url string) (*types.PageSnapshot, error) {
	attempts := len(m.schedule.Timeouts)
	var lastErr error
	lastTimeout := false

	for n := 0; n < attempts; n++ {
		timeout := m.schedule.Timeouts[n]
		m.logger.Debug("loading page", "url", url, "attempt", n+1, "timeout", timeout.String())

		err := drv.Navigate(ctx, url, timeout)
		if err == nil {
			snap, serr := m.stabilize(ctx, drv, url, n)
			if serr == nil {
				return snap, nil
			}
			err = serr
		}

		lastErr = err
		lastTimeout = errors.Is(err, context.DeadlineExceeded)
		m.logger.Warn("page load attempt failed",
			"url", url, "attempt", n+1, "timeout", lastTimeout, "error", err)

		if n == attempts-1 {
			break
		}
		if serr := m.sleep(ctx, m.schedule.RetryBackoff); serr != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrAcquisitionDriver, serr)
		}
	}

	// Final-attempt timeout: stop the load and salvage whatever DOM exists.
	if lastTimeout {
		if snap, ok := m.recoverPartial(ctx, drv, url, attempts-1); ok {
			m.logger.Warn("proceeding with partial page after timeout", "url", url)
			return snap, nil
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", types.ErrAcquisitionTimeout, attempts, lastErr)
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", types.ErrAcquisitionDriver, attempts, lastErr)
}

// stabilize applies the settle wait for the attempt, nudges lazy content
// with a warmup scroll, and captures the snapshot.
func (m *Machine) stabilize(ctx context.Context, drv browser.Driver, url string, attempt int) (*types.PageSnapshot, error) {
	settle := m.schedule.SettleWaits[attempt]
	m.logger.Debug("stabilizing page", "url", url, "settle", settle.String())
	if err := m.sleep(ctx, settle); err != nil {
		return nil, err
	}
	if m.schedule.WarmupScroll > 0 {
		if err := drv.ScrollBy(ctx, m.schedule.WarmupScroll); err != nil {
			return nil, err
		}
		if err := m.sleep(ctx, m.schedule.WarmupWait); err != nil {
			return nil, err
		}
	}
	return m.snapshot(ctx, drv, url, attempt)
}

func (m *Machine) snapshot(ctx context.Context, drv browser.Driver, url string, attempt int) (*types.PageSnapshot, error) {
	html, err := drv.HTML(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := drv.Measure(ctx)
	if err != nil {
		return nil, err
	}
	return &types.PageSnapshot{
		URL:       url,
		HTML:      html,
		Metrics:   metrics,
		Attempt:   attempt + 1,
		FetchedAt: time.Now(),
	}, nil
}

func (m *Machine) recoverPartial(ctx context.Context, drv browser.Driver, url string, attempt int) (*types.PageSnapshot, bool) {
	if err := drv.StopLoading(ctx); err != nil {
		return nil, false
	}
	snap, err := m.snapshot(ctx, drv, url, attempt)
	if err != nil || snap.HTML == "" {
		return nil, false
	}
	snap.Partial = true
	return snap, true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
