package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/acquire"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/autopager"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/detect"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// pageDriver serves a fixed page and scripted behavioral measurements.
type pageDriver struct {
	html      string
	htmlPanic bool
	navErr    error
	footer    bool
	measures  []types.PageMetrics
	clickOK   bool
}

func (d *pageDriver) Navigate(context.Context, string, time.Duration) error { return d.navErr }

func (d *pageDriver) HTML(context.Context) (string, error) {
	if d.htmlPanic {
		panic("DOM serializer exploded")
	}
	return d.html, nil
}

func (d *pageDriver) ScrollBy(context.Context, int) error     { return nil }
func (d *pageDriver) ScrollToBottom(context.Context) error    { return nil }
func (d *pageDriver) StopLoading(context.Context) error       { return nil }
func (d *pageDriver) Close() error                            { return nil }
func (d *pageDriver) Exists(context.Context, string) (bool, error) { return d.footer, nil }

func (d *pageDriver) Measure(context.Context) (types.PageMetrics, error) {
	if len(d.measures) == 0 {
		return types.PageMetrics{}, nil
	}
	m := d.measures[0]
	if len(d.measures) > 1 {
		d.measures = d.measures[1:]
	}
	return m, nil
}

func (d *pageDriver) CountElements(context.Context, string) (int64, error) { return 0, nil }

func (d *pageDriver) ClickText(context.Context, string) (bool, error) { return d.clickOK, nil }

// newTestClassifier builds the real pipeline with zero-wait schedules and no
// judge, so tests exercise the orchestration without sleeping.
func newTestClassifier() *Classifier {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := acquire.New(acquire.Schedule{
		Timeouts:    []time.Duration{time.Second, time.Second},
		SettleWaits: []time.Duration{0, 0},
	}, logger)
	engine := detect.NewEngine(autopager.New(), detect.Thresholds{
		FooterGrowth:  5,
		HeightGrowth:  400,
		ElementGrowth: 8,
	}, logger)
	return New(machine, engine, nil, nil, 3000, logger)
}

func request() types.ClassificationRequest {
	return types.ClassificationRequest{RowIndex: 4, URL: "https://example.com/jobs"}
}

func TestClassifyStructuralNext(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{
		html: `<html><body><a rel="next" href="/jobs?page=2">Next</a></body></html>`,
	}

	row := c.Classify(context.Background(), drv, request())

	assert.Equal(t, 4, row.Index)
	assert.Equal(t, "next", row.Flow)
	assert.True(t, row.Done())
	assert.Greater(t, row.Elapsed, time.Duration(0))
}

func TestClassifyLoadMore(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{
		html:    `<html><body><button>Show More Jobs</button></body></html>`,
		clickOK: true,
	}

	row := c.Classify(context.Background(), drv, request())
	assert.Equal(t, "loadmore", row.Flow)
}

func TestClassifyAmbiguousBehavioralKeepsDefault(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{
		html:     `<html><body><p>Welcome to our careers page</p></body></html>`,
		measures: []types.PageMetrics{{Height: 900, ElementCount: 40}},
	}

	row := c.Classify(context.Background(), drv, request())

	assert.Equal(t, "scrolldown", row.Flow)
	assert.Contains(t, row.Reason, "no judge configured")
}

func TestClassifyTimeoutMarkerWithoutJudge(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{
		navErr: fmt.Errorf("navigate: %w", context.DeadlineExceeded),
		html:   "",
	}

	row := c.Classify(context.Background(), drv, request())

	assert.Equal(t, "error: timeout_max_retries", row.Flow)
	assert.False(t, row.Done())
	assert.True(t, types.IsErrorMarker(row.Flow))
}

func TestClassifyPartialPageStillClassified(t *testing.T) {
	c := newTestClassifier()
	// Every navigation times out but the half-rendered DOM is salvageable.
	drv := &pageDriver{
		navErr: fmt.Errorf("navigate: %w", context.DeadlineExceeded),
		html:   `<html><body><div class="pagination"><a href="/p/1">1</a><a href="/p/2">2</a></div></body></html>`,
	}

	row := c.Classify(context.Background(), drv, request())
	assert.Equal(t, "pageselect", row.Flow)
}

func TestClassifyDriverFailureMarker(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{navErr: errors.New("tab crashed")}

	row := c.Classify(context.Background(), drv, request())

	assert.Equal(t, "error: page_load_failed", row.Flow)
	assert.Contains(t, row.Reason, "tab crashed")
}

func TestClassifyPanicBecomesMarker(t *testing.T) {
	c := newTestClassifier()
	drv := &pageDriver{htmlPanic: true}

	row := c.Classify(context.Background(), drv, request())

	assert.Equal(t, "error: classifier_panic", row.Flow)
	assert.Contains(t, row.Reason, "DOM serializer exploded")
	assert.Greater(t, row.Elapsed, time.Duration(0))
}
