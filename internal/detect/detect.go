package detect

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/browser"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// CandidateFinder reports candidate pagination links for a page, or none.
// The concrete implementation lives in internal/autopager.
type CandidateFinder interface {
	Find(html string) []types.CandidateLink
}

// Outcome is the detection verdict for one snapshot. When Ambiguous is set
// the Bucket holds the branch's deterministic default, which stands unless a
// judge overrides it.
type Outcome struct {
	Bucket    types.Bucket
	Branch    types.Branch
	Ambiguous bool
	Signals   []types.DetectionSignal
	Reason    string
}

// SignalStrings renders the gathered evidence for logs and judge prompts.
func (o Outcome) SignalStrings() []string {
	out := make([]string, 0, len(o.Signals))
	for _, s := range o.Signals {
		out = append(out, s.String())
	}
	return out
}

// Thresholds are the behavioral-path growth constants.
type Thresholds struct {
	FooterGrowth    int64
	HeightGrowth    int64
	ElementGrowth   int64
	ScrollWait      time.Duration
	ScrollRetryWait time.Duration
	ClickWait       time.Duration
}

// ThresholdsFromConfig converts the YAML detect section.
func ThresholdsFromConfig(cfg config.DetectConfig) Thresholds {
	return Thresholds{
		FooterGrowth:    cfg.FooterGrowth,
		HeightGrowth:    cfg.HeightGrowth,
		ElementGrowth:   cfg.ElementGrowth,
		ScrollWait:      cfg.ScrollWait.Duration,
		ScrollRetryWait: cfg.ScrollRetryWait.Duration,
		ClickWait:       cfg.ClickWait.Duration,
	}
}

// Engine runs the dual-path detection pipeline: the structural path when the
// link classifier reports candidates, the behavioral path otherwise.
type Engine struct {
	finder CandidateFinder
	th     Thresholds
	logger *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewEngine builds a detection engine.
func NewEngine(finder CandidateFinder, th Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		finder: finder,
		th:     th,
		logger: logger,
		sleep:  sleepCtx,
	}
}

// NEXT evidence vocabulary: sequential navigation words and single arrows.
var (
	nextKeywords = []string{"next", "next page", "previous", "prev"}
	nextArrows   = []string{">", "<", "→", "←", "›", "‹", "➜"}

	pageKeywords = []string{"first", "last"}
	pageArrows   = []string{">>", "<<", "»", "«"}
)

// LOADMORE vocabulary: generic reveal phrases plus the job-board variants
// this tool exists for.
var loadMoreKeywords = []string{
	"load more", "show more", "view more", "see more",
	"load all", "show all", "view all", "see all",
	"more results", "load additional", "show additional",
	"view more jobs", "view all jobs", "see all jobs", "more jobs",
	"all jobs", "view jobs", "show jobs", "load jobs", "see jobs",
}

// Classify runs detection over a snapshot. The driver is only touched on the
// behavioral path (scroll test, trial click); the structural path is pure.
func (e *Engine) Classify(ctx context.Context, drv browser.Driver, snap *types.PageSnapshot) (Outcome, error) {
	doc, err := parseSnapshot(snap.HTML)
	if err != nil {
		return Outcome{}, fmt.Errorf("parse snapshot: %w", err)
	}

	candidates := e.finder.Find(snap.HTML)
	if len(candidates) > 0 {
		return e.structural(candidates, doc), nil
	}
	return e.behavioral(ctx, drv, snap, doc)
}

// structural decides NEXT vs PAGESELECT from static evidence. NEXT wins
// every tie; no evidence at all is ambiguous with NEXT as the default.
func (e *Engine) structural(candidates []types.CandidateLink, doc *document) Outcome {
	var signals []types.DetectionSignal
	nextEvidence := false
	pageEvidence := false

	for _, cand := range candidates {
		sig := types.DetectionSignal{
			Kind:      types.SignalCandidate,
			Matched:   cand.Text,
			Source:    types.ElementAnchor,
			ValidLink: types.HrefIsReal(cand.Href),
		}
		switch cand.Type {
		case "NEXT", "PREV":
			// A "next" candidate whose label is a jump arrow is a page
			// selector in disguise.
			if strings.Contains(cand.Text, ">>") || strings.Contains(cand.Text, "»") {
				sig.Bucket = types.BucketPageSelect
				pageEvidence = true
			} else {
				sig.Bucket = types.BucketNext
				nextEvidence = true
			}
		case "PAGE", "FIRST", "LAST":
			sig.Bucket = types.BucketPageSelect
			pageEvidence = true
		default:
			continue
		}
		signals = append(signals, sig)
	}

	for _, el := range doc.elements {
		if !el.ActionableHref() {
			continue
		}
		label := elementLabel(el)
		if kw, ok := matchKeyword(label, nextKeywords); ok {
			signals = append(signals, signal(types.SignalKeyword, kw, el, types.BucketNext))
			nextEvidence = true
		} else if matchExact(label, nextArrows) {
			signals = append(signals, signal(types.SignalArrow, label, el, types.BucketNext))
			nextEvidence = true
		} else if kw, ok := matchKeyword(label, pageKeywords); ok {
			signals = append(signals, signal(types.SignalKeyword, kw, el, types.BucketPageSelect))
			pageEvidence = true
		} else if matchExact(label, pageArrows) {
			signals = append(signals, signal(types.SignalArrow, label, el, types.BucketPageSelect))
			pageEvidence = true
		}
	}

	if doc.numberedGroups > 0 {
		signals = append(signals, types.DetectionSignal{
			Kind:      types.SignalNumberedLink,
			Matched:   fmt.Sprintf("%d numbered link group(s)", doc.numberedGroups),
			Source:    types.ElementAnchor,
			Bucket:    types.BucketPageSelect,
			ValidLink: true,
		})
		pageEvidence = true
	}
	if m, ok := rangeMatch(doc.text); ok {
		signals = append(signals, types.DetectionSignal{
			Kind:    types.SignalRangeText,
			Matched: m,
			Bucket:  types.BucketPageSelect,
		})
		pageEvidence = true
	}

	switch {
	case nextEvidence:
		// Priority rule: NEXT beats PAGESELECT whenever both are present.
		return Outcome{
			Bucket:  types.BucketNext,
			Branch:  types.BranchStructural,
			Signals: signals,
			Reason:  "structural: sequential next/prev evidence" + tieNote(pageEvidence),
		}
	case pageEvidence:
		return Outcome{
			Bucket:  types.BucketPageSelect,
			Branch:  types.BranchStructural,
			Signals: signals,
			Reason:  "structural: numbered/jump evidence without a next control",
		}
	default:
		return Outcome{
			Bucket:    types.BranchStructural.Default(),
			Branch:    types.BranchStructural,
			Ambiguous: true,
			Signals:   signals,
			Reason:    "structural: paginator candidates present but evidence inconclusive",
		}
	}
}

// behavioral decides LOADMORE vs SCROLLDOWN by interacting with the live
// page: keyword buttons first, then the scroll-and-measure test.
func (e *Engine) behavioral(ctx context.Context, drv browser.Driver, snap *types.PageSnapshot, doc *document) (Outcome, error) {
	var signals []types.DetectionSignal

	if el, kw, ok := findLoadMore(doc.elements); ok {
		signals = append(signals, signal(types.SignalKeyword, kw, el, types.BucketLoadMore))
		clicked, err := drv.ClickText(ctx, kw)
		if err != nil {
			e.logger.Warn("load-more trial click failed", "url", snap.URL, "error", err)
		} else if clicked {
			if err := e.sleep(ctx, e.th.ClickWait); err != nil {
				return Outcome{}, err
			}
			return Outcome{
				Bucket:  types.BucketLoadMore,
				Branch:  types.BranchBehavioral,
				Signals: signals,
				Reason:  fmt.Sprintf("behavioral: clickable %q control", kw),
			}, nil
		}
	}

	grew, how, err := e.scrollTest(ctx, drv, snap)
	if err != nil {
		return Outcome{}, err
	}
	if grew {
		signals = append(signals, types.DetectionSignal{
			Kind:    types.SignalKeyword,
			Matched: how,
			Bucket:  types.BucketScrollDown,
		})
		return Outcome{
			Bucket:  types.BucketScrollDown,
			Branch:  types.BranchBehavioral,
			Signals: signals,
			Reason:  "behavioral: content grew after scrolling (" + how + ")",
		}, nil
	}

	return Outcome{
		Bucket:    types.BranchBehavioral.Default(),
		Branch:    types.BranchBehavioral,
		Ambiguous: true,
		Signals:   signals,
		Reason:    "behavioral: no load-more control confirmed and no scroll growth",
	}, nil
}

const (
	footerSelector  = "footer, #footer, .footer"
	contentSelector = "main *, [role='main'] *, #content *, .content *, article *"
)

// scrollTest scrolls to the bottom and measures growth, retrying once with a
// longer wait. Footer pages are judged by content-area element count; pages
// without a footer by height or total element growth.
func (e *Engine) scrollTest(ctx context.Context, drv browser.Driver, snap *types.PageSnapshot) (bool, string, error) {
	hasFooter, err := drv.Exists(ctx, footerSelector)
	if err != nil {
		return false, "", err
	}

	var beforeContent int64
	if hasFooter {
		if beforeContent, err = drv.CountElements(ctx, contentSelector); err != nil {
			return false, "", err
		}
	}
	before, err := drv.Measure(ctx)
	if err != nil {
		return false, "", err
	}

	for round, wait := range []time.Duration{e.th.ScrollWait, e.th.ScrollRetryWait} {
		if round == 1 {
			// Second pass gives slow loaders extra time before re-scrolling.
			if err := e.sleep(ctx, wait); err != nil {
				return false, "", err
			}
			wait = e.th.ScrollWait
		}
		if err := drv.ScrollToBottom(ctx); err != nil {
			return false, "", err
		}
		if err := e.sleep(ctx, wait); err != nil {
			return false, "", err
		}

		if hasFooter {
			afterContent, err := drv.CountElements(ctx, contentSelector)
			if err != nil {
				return false, "", err
			}
			if afterContent-beforeContent >= e.th.FooterGrowth {
				return true, fmt.Sprintf("content elements %d -> %d", beforeContent, afterContent), nil
			}
			continue
		}

		after, err := drv.Measure(ctx)
		if err != nil {
			return false, "", err
		}
		if after.Height-before.Height >= e.th.HeightGrowth {
			return true, fmt.Sprintf("height %d -> %d", before.Height, after.Height), nil
		}
		if after.ElementCount-before.ElementCount >= e.th.ElementGrowth {
			return true, fmt.Sprintf("elements %d -> %d", before.ElementCount, after.ElementCount), nil
		}
	}
	return false, "", nil
}

func findLoadMore(elements []types.Element) (types.Element, string, bool) {
	// Longest keywords first so "view more jobs" beats "view more".
	for _, el := range elements {
		label := elementLabel(el)
		best := ""
		for _, kw := range loadMoreKeywords {
			if strings.Contains(label, kw) && len(kw) > len(best) {
				best = kw
			}
		}
		if best != "" {
			return el, best, true
		}
	}
	return types.Element{}, "", false
}

func elementLabel(el types.Element) string {
	label := strings.ToLower(strings.TrimSpace(el.Text))
	if label == "" {
		label = strings.ToLower(strings.TrimSpace(el.AriaLabel))
	}
	return label
}

// matchKeyword matches whole words so "next" does not fire on "nextdoor".
func matchKeyword(label string, keywords []string) (string, bool) {
	if label == "" {
		return "", false
	}
	fields := strings.FieldsFunc(label, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	joined := " " + strings.Join(fields, " ") + " "
	for _, kw := range keywords {
		if strings.Contains(joined, " "+kw+" ") {
			return kw, true
		}
	}
	return "", false
}

func matchExact(label string, glyphs []string) bool {
	for _, g := range glyphs {
		if label == g {
			return true
		}
	}
	return false
}

func signal(kind types.SignalKind, matched string, el types.Element, bucket types.Bucket) types.DetectionSignal {
	return types.DetectionSignal{
		Kind:      kind,
		Matched:   matched,
		Source:    el.Kind,
		Bucket:    bucket,
		ValidLink: el.ActionableHref(),
	}
}

func tieNote(pageEvidence bool) string {
	if pageEvidence {
		return " (next takes priority over pageselect)"
	}
	return ""
}

// Snippet extracts the most pagination-relevant slice of a snapshot for the
// judge prompt: pagination/nav/footer container HTML when present, the tail
// of the document otherwise, capped at max characters.
func Snippet(rawHTML string, max int) string {
	if max <= 0 {
		max = 3000
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return clipTail(rawHTML, max)
	}

	var sb strings.Builder
	doc.Find(`nav, footer, [class*="pagination"], [class*="paging"], [class*="pager"]`).Each(func(_ int, s *goquery.Selection) {
		if sb.Len() >= max {
			return
		}
		if h, err := goquery.OuterHtml(s); err == nil {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	})
	if sb.Len() == 0 {
		return clipTail(rawHTML, max)
	}
	out := sb.String()
	if len(out) > max {
		out = out[:max]
	}
	return out
}

func clipTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
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
