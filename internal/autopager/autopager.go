package autopager

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// Classifier inspects raw HTML and reports candidate pagination links. It is
// a static heuristic over anchors: rel attributes, pagination-flavoured
// containers, numbered links, and next/prev vocabulary. Consumers treat it
// as a black box that either finds candidates or reports none.
type Classifier struct{}

// New returns a link classifier.
func New() *Classifier {
	return &Classifier{}
}

var (
	integerText = regexp.MustCompile(`^\d{1,4}$`)
	nextWords   = []string{"next", "older", "more pages"}
	prevWords   = []string{"prev", "previous", "newer"}
)

const paginationContainers = `[class*="pagination"], [class*="paging"], [class*="pager"], [id*="pagination"], [id*="pager"], nav[role="navigation"], ul.page-numbers`

// Find extracts candidate pagination links from the document. A nil or empty
// result means the page shows no static paginator.
func (c *Classifier) Find(html string) []types.CandidateLink {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var found []types.CandidateLink
	seen := make(map[string]struct{})
	add := func(linkType, text, href string) {
		key := linkType + "|" + strings.TrimSpace(text) + "|" + href
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		found = append(found, types.CandidateLink{
			Type: linkType,
			Text: strings.TrimSpace(text),
			Href: href,
		})
	}

	// rel attributes are the strongest hint a page offers.
	doc.Find(`a[rel="next"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if types.HrefIsReal(href) {
			add("NEXT", s.Text(), href)
		}
	})
	doc.Find(`a[rel="prev"], a[rel="previous"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if types.HrefIsReal(href) {
			add("PREV", s.Text(), href)
		}
	})

	// Anchors inside pagination-flavoured containers.
	doc.Find(paginationContainers).Each(func(_ int, container *goquery.Selection) {
		container.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
			href, _ := s.Attr("href")
			if !types.HrefIsReal(href) {
				return
			}
			text := strings.ToLower(strings.TrimSpace(s.Text()))
			switch {
			case integerText.MatchString(text):
				add("PAGE", s.Text(), href)
			case text == "»" || text == ">>" || strings.Contains(text, "last"):
				add("LAST", s.Text(), href)
			case text == "«" || text == "<<" || strings.Contains(text, "first"):
				add("FIRST", s.Text(), href)
			case matchesAny(text, nextWords) || text == ">" || text == "›" || text == "→":
				add("NEXT", s.Text(), href)
			case matchesAny(text, prevWords) || text == "<" || text == "‹" || text == "←":
				add("PREV", s.Text(), href)
			}
		})
	})

	// Bare next/prev anchors outside any recognised container.
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !types.HrefIsReal(href) {
			return
		}
		text := strings.ToLower(strings.TrimSpace(s.Text()))
		if matchesAny(text, nextWords) {
			add("NEXT", s.Text(), href)
		} else if matchesAny(text, prevWords) {
			add("PREV", s.Text(), href)
		}
	})

	return found
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if text == w || strings.HasPrefix(text, w+" ") || strings.HasSuffix(text, " "+w) {
			return true
		}
	}
	return false
}
