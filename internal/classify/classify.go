package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/acquire"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/browser"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/detect"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/judge"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/robots"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// Error markers written into the flow column when no bucket can be assigned.
const (
	markerTimeout         = "error: timeout_max_retries"
	markerPageLoadFailed  = "error: page_load_failed"
	markerRobotsDisallow  = "error: robots_disallowed"
	markerClassifierPanic = "error: classifier_panic"
)

// Classifier composes acquisition, detection, and the optional judge into a
// single per-URL decision. It never lets an error or panic escape: every
// failure mode resolves to a bucket or an error marker in the ResultRow.
type Classifier struct {
	machine    *acquire.Machine
	engine     *detect.Engine
	judge      *judge.Judge
	robots     *robots.Agent
	snippetMax int
	logger     *slog.Logger
}

// New builds the orchestrator. judge and robotsAgent may be nil.
func New(machine *acquire.Machine, engine *detect.Engine, j *judge.Judge, robotsAgent *robots.Agent, snippetMax int, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		machine:    machine,
		engine:     engine,
		judge:      j,
		robots:     robotsAgent,
		snippetMax: snippetMax,
		logger:     logger,
	}
}

// Classify resolves one URL to a ResultRow. The driver is borrowed from the
// calling worker; the classifier never closes it.
func (c *Classifier) Classify(ctx context.Context, drv browser.Driver, req types.ClassificationRequest) (row types.ResultRow) {
	start := time.Now()
	row = types.ResultRow{Index: req.RowIndex, URL: req.URL}
	defer func() {
		row.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			c.logger.Error("classification panicked", "url", req.URL, "panic", r)
			row.Flow = markerClassifierPanic
			row.Reason = fmt.Sprintf("recovered: %v", r)
		}
	}()

	if c.robots != nil {
		if target, err := url.Parse(req.URL); err == nil && !c.robots.Allowed(ctx, target) {
			row.Flow = markerRobotsDisallow
			row.Reason = "robots.txt disallows fetching this URL"
			return row
		}
	}

	snap, err := c.machine.Acquire(ctx, drv, req.URL)
	if err != nil {
		return c.resolveAcquisitionFailure(ctx, row, err)
	}

	outcome, err := c.engine.Classify(ctx, drv, snap)
	if err != nil {
		// Detection errors come from the live-page behavioral probes; keep
		// that branch's deterministic default rather than failing the row.
		c.logger.Warn("detection failed, keeping behavioral default", "url", req.URL, "error", err)
		row.Flow = string(types.BranchBehavioral.Default())
		row.Reason = fmt.Sprintf("detection error (%v), defaulted to %s", err, types.BranchBehavioral.Default())
		return row
	}

	if outcome.Ambiguous {
		outcome = c.resolveAmbiguity(ctx, req.URL, snap, outcome)
	}

	row.Flow = string(outcome.Bucket)
	row.Reason = outcome.Reason
	return row
}

// resolveAmbiguity offers the judge a chance to override the branch default.
// Any judge failure leaves the deterministic default in place.
func (c *Classifier) resolveAmbiguity(ctx context.Context, pageURL string, snap *types.PageSnapshot, outcome detect.Outcome) detect.Outcome {
	snippet := detect.Snippet(snap.HTML, c.snippetMax)
	bucket, err := c.judge.Disambiguate(ctx, pageURL, outcome.SignalStrings(), snippet, outcome.Branch)
	switch {
	case err == nil:
		outcome.Bucket = bucket
		outcome.Reason = fmt.Sprintf("judge resolved %s ambiguity to %s", outcome.Branch, bucket)
	case errors.Is(err, types.ErrJudgeUnavailable):
		outcome.Reason += fmt.Sprintf("; no judge configured, default %s kept", outcome.Bucket)
	default:
		c.logger.Warn("judge disambiguation failed", "url", pageURL, "error", err)
		outcome.Reason += fmt.Sprintf("; judge failed (%v), default %s kept", err, outcome.Bucket)
	}
	return outcome
}

// resolveAcquisitionFailure escalates to the URL-only judge fallback when a
// judge is configured, otherwise reports the typed acquisition marker.
func (c *Classifier) resolveAcquisitionFailure(ctx context.Context, row types.ResultRow, acqErr error) types.ResultRow {
	marker := markerPageLoadFailed
	if errors.Is(acqErr, types.ErrAcquisitionTimeout) {
		marker = markerTimeout
	}

	bucket, reason, err := c.judge.FallbackClassify(ctx, row.URL)
	switch {
	case err == nil && bucket.Valid():
		row.Flow = string(bucket)
		row.Reason = reason
	case err == nil:
		// Explicit no-guess verdict: keep the acquisition marker.
		row.Flow = marker
		row.Reason = fmt.Sprintf("%v; %s", acqErr, reason)
	case errors.Is(err, types.ErrJudgeUnavailable):
		row.Flow = marker
		row.Reason = acqErr.Error()
	default:
		c.logger.Warn("judge fallback failed", "url", row.URL, "error", err)
		row.Flow = marker
		row.Reason = fmt.Sprintf("%v; judge fallback failed: %v", acqErr, err)
	}
	return row
}
