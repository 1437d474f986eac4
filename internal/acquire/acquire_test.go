package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// scriptedDriver plays back one result per navigation attempt and records
// everything the machine asks of it.
type scriptedDriver struct {
	navErrs  []error
	navCalls []time.Duration
	html     string
	scrolls  []int
	stopped  bool
	stopErr  error
}

func (d *scriptedDriver) Navigate(_ context.Context, _ string, timeout time.Duration) error {
	d.navCalls = append(d.navCalls, timeout)
	if n := len(d.navCalls) - 1; n < len(d.navErrs) {
		return d.navErrs[n]
	}
	return nil
}

func (d *scriptedDriver) HTML(context.Context) (string, error) { return d.html, nil }

func (d *scriptedDriver) ScrollBy(_ context.Context, px int) error {
	d.scrolls = append(d.scrolls, px)
	return nil
}

func (d *scriptedDriver) ScrollToBottom(context.Context) error { return nil }

func (d *scriptedDriver) Measure(context.Context) (types.PageMetrics, error) {
	return types.PageMetrics{Height: 1200, ElementCount: 80}, nil
}

func (d *scriptedDriver) CountElements(context.Context, string) (int64, error) { return 0, nil }
func (d *scriptedDriver) Exists(context.Context, string) (bool, error)         { return false, nil }
func (d *scriptedDriver) ClickText(context.Context, string) (bool, error)      { return false, nil }

func (d *scriptedDriver) StopLoading(context.Context) error {
	d.stopped = true
	return d.stopErr
}

func (d *scriptedDriver) Close() error { return nil }

func newTestMachine() (*Machine, *[]time.Duration) {
	m := New(Schedule{
		Timeouts:     []time.Duration{10 * time.Second, 15 * time.Second, 20 * time.Second},
		SettleWaits:  []time.Duration{3 * time.Second, 5 * time.Second, 7 * time.Second},
		RetryBackoff: 3 * time.Second,
		WarmupScroll: 500,
		WarmupWait:   time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	sleeps := &[]time.Duration{}
	m.sleep = func(_ context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return m, sleeps
}

func wrappedTimeout() error {
	return fmt.Errorf("navigate https://example.com/jobs: %w", context.DeadlineExceeded)
}

func TestAcquireFirstAttempt(t *testing.T) {
	m, sleeps := newTestMachine()
	drv := &scriptedDriver{html: "<html><body>jobs</body></html>"}

	snap, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	require.NoError(t, err)

	assert.Equal(t, "<html><body>jobs</body></html>", snap.HTML)
	assert.Equal(t, 1, snap.Attempt)
	assert.False(t, snap.Partial)
	assert.Equal(t, int64(1200), snap.Metrics.Height)

	assert.Equal(t, []time.Duration{10 * time.Second}, drv.navCalls)
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, *sleeps)
	assert.Equal(t, []int{500}, drv.scrolls)
}

func TestAcquireProgressiveSchedule(t *testing.T) {
	m, sleeps := newTestMachine()
	drv := &scriptedDriver{
		navErrs: []error{wrappedTimeout(), wrappedTimeout(), nil},
		html:    "<html><body>finally</body></html>",
	}

	snap, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	require.NoError(t, err)

	assert.Equal(t, 3, snap.Attempt)
	assert.False(t, snap.Partial)
	assert.Equal(t, []time.Duration{10 * time.Second, 15 * time.Second, 20 * time.Second}, drv.navCalls)
	// Two backoffs between failed attempts, then the third attempt's settle
	// and warmup waits.
	assert.Equal(t, []time.Duration{
		3 * time.Second, 3 * time.Second,
		7 * time.Second, time.Second,
	}, *sleeps)
}

func TestAcquirePartialRecoveryAfterFinalTimeout(t *testing.T) {
	m, _ := newTestMachine()
	drv := &scriptedDriver{
		navErrs: []error{wrappedTimeout(), wrappedTimeout(), wrappedTimeout()},
		html:    "<html><body>half a page</body></html>",
	}

	snap, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	require.NoError(t, err)

	assert.True(t, drv.stopped)
	assert.True(t, snap.Partial)
	assert.Equal(t, 3, snap.Attempt)
	assert.Equal(t, "<html><body>half a page</body></html>", snap.HTML)
}

func TestAcquireTimeoutWithNothingToSalvage(t *testing.T) {
	m, _ := newTestMachine()
	drv := &scriptedDriver{
		navErrs: []error{wrappedTimeout(), wrappedTimeout(), wrappedTimeout()},
		html:    "",
	}

	_, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestAcquireStopLoadingFailureFallsThrough(t *testing.T) {
	m, _ := newTestMachine()
	drv := &scriptedDriver{
		navErrs: []error{wrappedTimeout(), wrappedTimeout(), wrappedTimeout()},
		html:    "<html><body>irrelevant</body></html>",
		stopErr: errors.New("tab gone"),
	}

	_, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	assert.ErrorIs(t, err, types.ErrAcquisitionTimeout)
}

func TestAcquireDriverFailure(t *testing.T) {
	m, _ := newTestMachine()
	crash := errors.New("chrome crashed")
	drv := &scriptedDriver{navErrs: []error{crash, crash, crash}}

	_, err := m.Acquire(context.Background(), drv, "https://example.com/jobs")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAcquisitionDriver)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.False(t, drv.stopped)
}

func TestScheduleFromConfigKeepsOrder(t *testing.T) {
	m, _ := newTestMachine()
	assert.Len(t, m.schedule.Timeouts, 3)
	assert.Len(t, m.schedule.SettleWaits, 3)
	for i := 1; i < len(m.schedule.Timeouts); i++ {
		assert.Greater(t, m.schedule.Timeouts[i], m.schedule.Timeouts[i-1])
		assert.Greater(t, m.schedule.SettleWaits[i], m.schedule.SettleWaits[i-1])
	}
}
