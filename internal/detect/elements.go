package detect

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Priyansh-03/url-pagination-bucket-detection/pkg/types"
)

// document is a parsed snapshot: the interactive elements the rules may
// examine, numbered-link container groups, and the page's visible text.
// Plain text nodes never become elements; only buttons and anchors do.
type document struct {
	elements       []types.Element
	numberedGroups int
	text           string
}

var integerLabel = regexp.MustCompile(`^\d{1,4}$`)

// parseSnapshot extracts everything the rule passes need from raw HTML in a
// single goquery traversal.
func parseSnapshot(rawHTML string) (*document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	d := &document{text: doc.Text()}

	doc.Find("button, a").Each(func(_ int, s *goquery.Selection) {
		el := types.Element{
			Kind: types.ElementAnchor,
			Text: strings.TrimSpace(s.Text()),
		}
		if goquery.NodeName(s) == "button" {
			el.Kind = types.ElementButton
		} else {
			el.Href, _ = s.Attr("href")
		}
		el.AriaLabel, _ = s.Attr("aria-label")
		if el.Text == "" && el.AriaLabel == "" {
			return
		}
		d.elements = append(d.elements, el)
	})

	d.numberedGroups = countNumberedGroups(doc)
	return d, nil
}

// countNumberedGroups counts containers holding two or more distinct
// integer-labelled clickable links — the signature of a numbered paginator.
// Grouping is by shared parent node.
func countNumberedGroups(doc *goquery.Document) int {
	groups := make(map[*html.Node]map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !types.HrefIsReal(href) {
			return
		}
		text := strings.TrimSpace(s.Text())
		if !integerLabel.MatchString(text) {
			return
		}
		node := s.Get(0)
		if node == nil || node.Parent == nil {
			return
		}
		parent := node.Parent
		if groups[parent] == nil {
			groups[parent] = make(map[string]struct{})
		}
		groups[parent][text] = struct{}{}
	})

	count := 0
	for _, labels := range groups {
		if len(labels) >= 2 {
			count++
		}
	}
	return count
}

// Range phrases count as PAGESELECT evidence even outside the
// button/anchor scan; they describe a numbered result window.
var rangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)results?\s+\d+\s*[-–—]\s*\d+\s+of\s+[\d,]+`),
	regexp.MustCompile(`(?i)page\s+\d+\s+of\s+\d+`),
	regexp.MustCompile(`(?i)\d+\s*-\s*\d+\s+of\s+\d+`),
	regexp.MustCompile(`(?i)items per page`),
	regexp.MustCompile(`(?i)jump to page`),
}

// rangeMatch returns the first range phrase present in the page text.
func rangeMatch(text string) (string, bool) {
	for _, pat := range rangePatterns {
		if m := pat.FindString(text); m != "" {
			return m, true
		}
	}
	return "", false
}
