package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Bucket is the final pagination category assigned to a URL.
type Bucket string

const (
	BucketNext       Bucket = "next"
	BucketPageSelect Bucket = "pageselect"
	BucketLoadMore   Bucket = "loadmore"
	BucketScrollDown Bucket = "scrolldown"
)

// Valid reports whether the bucket is one of the four classification outcomes.
func (b Bucket) Valid() bool {
	switch b {
	case BucketNext, BucketPageSelect, BucketLoadMore, BucketScrollDown:
		return true
	}
	return false
}

// Branch identifies which detection path produced an ambiguity.
type Branch string

const (
	// BranchStructural decides NEXT vs PAGESELECT; its deterministic default is NEXT.
	BranchStructural Branch = "structural"
	// BranchBehavioral decides LOADMORE vs SCROLLDOWN; its deterministic default is SCROLLDOWN.
	BranchBehavioral Branch = "behavioral"
)

// Choices returns the two buckets a branch decides between.
func (b Branch) Choices() (Bucket, Bucket) {
	if b == BranchBehavioral {
		return BucketLoadMore, BucketScrollDown
	}
	return BucketNext, BucketPageSelect
}

// Default returns the deterministic fallback bucket for a branch.
func (b Branch) Default() Bucket {
	if b == BranchBehavioral {
		return BucketScrollDown
	}
	return BucketNext
}

// ClassificationRequest is the immutable per-URL work item.
type ClassificationRequest struct {
	RowIndex int
	URL      string
}

// PageMetrics holds the size measurements taken from a live page.
type PageMetrics struct {
	Height       int64
	ElementCount int64
}

// PageSnapshot is the result of a successful page acquisition. It is owned
// by the worker that produced it and discarded after classification.
type PageSnapshot struct {
	URL       string
	HTML      string
	Metrics   PageMetrics
	Attempt   int
	Partial   bool
	FetchedAt time.Time
}

// ElementKind distinguishes the interactive element types the detector scans.
type ElementKind string

const (
	ElementButton ElementKind = "button"
	ElementAnchor ElementKind = "anchor"
)

// Element is an interactive element (button or anchor) extracted from a
// snapshot. Plain text nodes are never represented here.
type Element struct {
	Kind      ElementKind
	Text      string
	Href      string
	AriaLabel string
}

// ActionableHref reports whether the element carries a real link target,
// rejecting javascript:void(...) and bare fragment hrefs. Buttons have no
// href and are always actionable.
func (e Element) ActionableHref() bool {
	if e.Kind == ElementButton {
		return true
	}
	return HrefIsReal(e.Href)
}

// HrefIsReal reports whether an href points at an actual navigation target.
// Fragment-only references and javascript: pseudo-links do not count.
func HrefIsReal(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	return !strings.HasPrefix(href, "javascript:")
}

// SignalKind names the pattern family that produced a detection signal.
type SignalKind string

const (
	SignalKeyword      SignalKind = "keyword"
	SignalArrow        SignalKind = "arrow"
	SignalNumberedLink SignalKind = "numbered-link"
	SignalRangeText    SignalKind = "range-text"
	SignalCandidate    SignalKind = "candidate-link"
)

// DetectionSignal records one piece of evidence gathered during detection.
type DetectionSignal struct {
	Kind      SignalKind
	Matched   string
	Source    ElementKind
	Bucket    Bucket
	ValidLink bool
}

func (s DetectionSignal) String() string {
	return fmt.Sprintf("%s %q (%s) -> %s", s.Kind, s.Matched, s.Source, s.Bucket)
}

// CandidateLink is one candidate pagination link reported by the link
// classifier. Type hints follow the classifier's own vocabulary.
type CandidateLink struct {
	Type string // "NEXT", "PREV", "PAGE", "FIRST", "LAST"
	Text string
	Href string
}

// ResultRow is the authoritative per-URL output unit. Flow holds either a
// Bucket value or an "error: ..." marker.
type ResultRow struct {
	Index   int
	URL     string
	Flow    string
	Reason  string
	Elapsed time.Duration
}

// Done reports whether the row already carries a final, non-error result.
func (r ResultRow) Done() bool {
	return r.Flow != "" && !IsErrorMarker(r.Flow)
}

// IsErrorMarker reports whether a flow value is an error tag rather than a bucket.
func IsErrorMarker(flow string) bool {
	return len(flow) >= 5 && flow[:5] == "error"
}

// Classification error taxonomy. Acquisition errors are recoverable at the
// orchestrator level; judge errors degrade to the branch default.
var (
	ErrAcquisitionTimeout  = errors.New("page acquisition timed out")
	ErrAcquisitionDriver   = errors.New("page driver failure")
	ErrJudgeUnavailable    = errors.New("judge not configured")
	ErrJudgeCallFailed     = errors.New("judge call failed")
	ErrAmbiguityUnresolved = errors.New("ambiguous detection unresolved")
)
