package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aktagon/llmkit/anthropic"
	llmtypes "github.com/aktagon/llmkit/anthropic/types"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// completer abstracts the text-completion call so tests can fake the model.
type completer func(user string, settings llmtypes.RequestSettings) (string, error)

// Judge resolves detection ambiguity and provides the URL-only fallback
// classification. A nil *Judge is the "not configured" capability: every
// method reports types.ErrJudgeUnavailable immediately and callers apply
// their deterministic default instead.
type Judge struct {
	model      string
	maxRetries int
	limiter    *Limiter
	logger     *slog.Logger
	complete   completer
}

// New builds a judge from configuration, or nil when no credential is set.
func New(cfg config.JudgeConfig, limiter *Limiter, logger *slog.Logger) *Judge {
	apiKey := cfg.APIKey()
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Judge{
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		limiter:    limiter,
		logger:     logger,
		complete: func(user string, settings llmtypes.RequestSettings) (string, error) {
			resp, err := anthropic.PromptWithSettings("", user, "", apiKey, settings)
			if err != nil {
				return "", err
			}
			if len(resp.Content) == 0 {
				return "", errors.New("empty model response")
			}
			return resp.Content[0].Text, nil
		},
	}
}

// Disambiguate decides between the two buckets of a branch given the
// evidence gathered so far. Invalid answers are retried; persistent failure
// surfaces types.ErrJudgeCallFailed and the caller keeps the branch default.
func (j *Judge) Disambiguate(ctx context.Context, url string, signals []string, snippet string, branch types.Branch) (types.Bucket, error) {
	if j == nil {
		return "", types.ErrJudgeUnavailable
	}

	first, second := branch.Choices()
	prompt := disambiguationPrompt(url, signals, snippet, branch)
	settings := llmtypes.RequestSettings{
		Model:       j.model,
		MaxTokens:   10,
		Temperature: 0,
	}

	var lastErr error
	for attempt := 1; attempt <= j.maxRetries; attempt++ {
		if err := j.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrJudgeCallFailed, err)
		}
		answer, err := j.complete(prompt, settings)
		if err != nil {
			lastErr = err
			j.logger.Warn("judge call failed", "url", url, "attempt", attempt, "error", err)
			continue
		}
		got := types.Bucket(strings.ToLower(strings.TrimSpace(answer)))
		if got == first || got == second {
			return got, nil
		}
		lastErr = fmt.Errorf("invalid choice %q", answer)
		j.logger.Warn("judge returned invalid choice", "url", url, "attempt", attempt, "answer", answer)
	}
	return "", fmt.Errorf("%w: %v", types.ErrJudgeCallFailed, lastErr)
}

// FallbackClassify guesses a bucket from the URL alone, used only after page
// acquisition has failed outright. An empty bucket with nil error is the
// explicit no-guess outcome (page judged to have no pagination at all).
func (j *Judge) FallbackClassify(ctx context.Context, url string) (types.Bucket, string, error) {
	if j == nil {
		return "", "", types.ErrJudgeUnavailable
	}
	if err := j.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrJudgeCallFailed, err)
	}

	settings := llmtypes.RequestSettings{
		Model:       j.model,
		MaxTokens:   60,
		Temperature: 0.3,
	}
	answer, err := j.complete(fallbackPrompt(url), settings)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", types.ErrJudgeCallFailed, err)
	}

	verdict := strings.TrimSpace(answer)
	reason := "URL-only fallback classification"
	if i := strings.Index(verdict, "|"); i >= 0 {
		reason = strings.TrimSpace(verdict[i+1:])
		verdict = verdict[:i]
	}
	bucket := types.Bucket(strings.ToLower(strings.TrimSpace(verdict)))

	switch {
	case bucket.Valid():
		return bucket, "judge fallback: " + reason, nil
	case bucket == "none":
		return "", "judge fallback: no pagination expected (" + reason + ")", nil
	default:
		// Unparseable verdicts default to the most common career-page flow.
		return types.BucketNext, fmt.Sprintf("judge fallback: unrecognised answer %q, defaulted to next", answer), nil
	}
}

func disambiguationPrompt(url string, signals []string, snippet string, branch types.Branch) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Address: %s\nSignals detected so far: %s\n\n", url, strings.Join(signals, "; "))

	if branch == types.BranchBehavioral {
		sb.WriteString(`TASK: This page has NO traditional pagination. Decide between EXACTLY TWO options:
- loadmore: a button such as "Load More", "Show More", "View All" that loads content WITHOUT navigating.
- scrolldown: content loads AUTOMATICALLY while scrolling down (infinite scroll), no click needed.

RULES:
- A visible button that reveals more content -> loadmore
- Content appearing by itself as you scroll -> scrolldown
- Few items and no way to load more -> lean scrolldown
`)
	} else {
		sb.WriteString(`TASK: This page HAS pagination elements. Decide between EXACTLY TWO options:
- next: a "Next" button, arrow (>, →) or link moving to the following page sequentially.
- pageselect: numbered page links (1, 2, 3...) or jump buttons (>>, Last) for direct page selection.

RULES:
- Numbered links in a pagination bar -> pageselect
- Only a "Next" button or single arrow without page numbers -> next
- If BOTH exist, prefer next (next takes priority)
- IGNORE "Read More" links pointing at articles; those are not pagination
`)
	}

	fmt.Fprintf(&sb, "\nHTML Snippet:\n%s\n\nReturn ONLY: ", snippet)
	first, second := branch.Choices()
	fmt.Fprintf(&sb, "%s OR %s", first, second)
	return sb.String()
}

func fallbackPrompt(url string) string {
	return fmt.Sprintf(`URL: %s

This careers/jobs page failed to load completely. From the URL pattern and
common practice, classify its pagination type.

TASK: choose ONE:
- next: "Next" button or arrow (most common for career pages)
- pageselect: numbered page links for direct selection
- loadmore: "Load More"/"Show More" button loading content in place
- scrolldown: infinite scroll
- none: single page with no pagination (small companies, few jobs)

GUIDELINES:
- Career pages usually use "next" buttons
- URLs with ?page=, &p=, /page/ suggest next or pageselect
- Modern /careers/ or /jobs/ sites often use loadmore
- Enterprise ATS hosts (greenhouse.io, lever.co, workday) usually use next

Return ONLY the type and a brief reason as:
TYPE | reason in 5-10 words`, url)
}
