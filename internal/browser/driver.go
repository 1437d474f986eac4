package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// Driver abstracts the browser operations the classifier needs. Navigation
// errors are reported as-is; a timed-out navigate surfaces the context
// deadline error so callers can distinguish timeouts from driver crashes.
type Driver interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	ScrollBy(ctx context.Context, px int) error
	ScrollToBottom(ctx context.Context) error
	Measure(ctx context.Context) (types.PageMetrics, error)
	CountElements(ctx context.Context, selector string) (int64, error)
	Exists(ctx context.Context, selector string) (bool, error)
	ClickText(ctx context.Context, text string) (bool, error)
	StopLoading(ctx context.Context) error
	Close() error
}

// Options configures a Chrome session.
type Options struct {
	Headless     bool
	UserAgent    string
	WindowWidth  int
	WindowHeight int
}

// opTimeout bounds every non-navigation driver call. Navigation carries its
// own per-attempt timeout from the acquisition schedule.
const opTimeout = 15 * time.Second

// Chrome drives one long-lived headless Chrome instance via chromedp. A
// worker creates one Chrome at startup and reuses it across URLs; Close is
// idempotent and always reaps the browser process.
type Chrome struct {
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	closeOnce   sync.Once
}

// NewChrome launches a browser and opens its tab eagerly so a broken Chrome
// install fails at worker startup, not mid-batch.
func NewChrome(parent context.Context, opts Options) (*Chrome, error) {
	width := opts.WindowWidth
	height := opts.WindowHeight
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(width, height),
	}
	if ua := strings.TrimSpace(opts.UserAgent); ua != "" {
		execOpts = append(execOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &Chrome{
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}, nil
}

// Navigate loads a URL with a hard per-attempt deadline.
func (c *Chrome) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(c.tabCtx, timeout)
	defer cancel()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigate %s: %w", url, context.DeadlineExceeded)
		}
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// HTML exports the current DOM as outer HTML.
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	if err != nil {
		return "", fmt.Errorf("capture html: %w", err)
	}
	return html, nil
}

// ScrollBy scrolls the viewport down by the given pixel offset.
func (c *Chrome) ScrollBy(ctx context.Context, px int) error {
	expr := fmt.Sprintf("window.scrollBy(0, %d)", px)
	return c.run(ctx, chromedp.Evaluate(expr, nil))
}

// ScrollToBottom jumps to the bottom of the document.
func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	return c.run(ctx, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
}

// Measure reports document height and total element count.
func (c *Chrome) Measure(ctx context.Context) (types.PageMetrics, error) {
	var m types.PageMetrics
	err := c.run(ctx,
		chromedp.Evaluate("document.body ? document.body.scrollHeight : 0", &m.Height),
		chromedp.Evaluate("document.querySelectorAll('*').length", &m.ElementCount),
	)
	if err != nil {
		return types.PageMetrics{}, fmt.Errorf("measure page: %w", err)
	}
	return m, nil
}

// CountElements counts nodes matching a CSS selector.
func (c *Chrome) CountElements(ctx context.Context, selector string) (int64, error) {
	var n int64
	expr := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := c.run(ctx, chromedp.Evaluate(expr, &n)); err != nil {
		return 0, fmt.Errorf("count %q: %w", selector, err)
	}
	return n, nil
}

// Exists reports whether any node matches a CSS selector.
func (c *Chrome) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	expr := fmt.Sprintf("document.querySelector(%q) !== null", selector)
	if err := c.run(ctx, chromedp.Evaluate(expr, &found)); err != nil {
		return false, fmt.Errorf("query %q: %w", selector, err)
	}
	return found, nil
}

// ClickText finds the first button or anchor whose text or aria-label
// contains the given phrase, scrolls it into view, and clicks it. Returns
// false when no such element exists.
func (c *Chrome) ClickText(ctx context.Context, text string) (bool, error) {
	expr := fmt.Sprintf(`(() => {
		const want = %q.toLowerCase();
		const els = Array.from(document.querySelectorAll('button, a'));
		for (const el of els) {
			const label = ((el.textContent || '') + ' ' + (el.getAttribute('aria-label') || '')).toLowerCase();
			if (label.includes(want)) {
				el.scrollIntoView({block: 'center'});
				el.click();
				return true;
			}
		}
		return false;
	})()`, text)

	var clicked bool
	if err := c.run(ctx, chromedp.Evaluate(expr, &clicked)); err != nil {
		return false, fmt.Errorf("click %q: %w", text, err)
	}
	return clicked, nil
}

// StopLoading halts an in-flight navigation so a partially rendered DOM can
// still be captured.
func (c *Chrome) StopLoading(ctx context.Context) error {
	return c.run(ctx, page.StopLoading())
}

// Close tears down the tab and the browser process. Safe to call multiple
// times and from deferred cleanup paths.
func (c *Chrome) Close() error {
	c.closeOnce.Do(func() {
		c.tabCancel()
		c.allocCancel()
	})
	return nil
}

func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(c.tabCtx, opTimeout)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}
