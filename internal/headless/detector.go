// Package headless renders JavaScript-heavy pages with a real browser
// and decides when that expense is warranted.
package headless

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector flags HTML bodies that need a browser to render useful
// content: tiny shells, SPA bootstrap markers, or pages missing the
// selectors static fetching should have produced.
type Detector struct {
	minHTMLBytes int
	selectors    []string
	keywords     [][]byte
}

// NewDetector constructs a Detector with the given thresholds. Keywords
// are matched case-insensitively against the raw body.
func NewDetector(minBytes int, selectors, keywords []string) *Detector {
	lowered := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(kw)))
	}
	return &Detector{
		minHTMLBytes: minBytes,
		selectors:    selectors,
		keywords:     lowered,
	}
}

// NewDefaultDetector covers the common SPA frameworks seen on small
// business sites: Next, Nuxt, Angular, and bare React roots.
func NewDefaultDetector() *Detector {
	return NewDetector(
		2048,
		[]string{"body"},
		[]string{
			"__next_data__",
			"window.__nuxt__",
			"ng-version=",
			`id="root"></div>`,
			`id="app"></div>`,
			"you need to enable javascript",
		},
	)
}

// NeedsJS reports whether the body shows signals that static fetching
// returned an unrendered shell.
func (d *Detector) NeedsJS(body []byte) bool {
	if d == nil {
		return false
	}
	switch {
	case d.bodyBelowThreshold(body):
		return true
	case d.containsKeywords(body):
		return true
	default:
		return d.missingSelectors(body)
	}
}

func (d *Detector) bodyBelowThreshold(body []byte) bool {
	return d.minHTMLBytes > 0 && len(body) < d.minHTMLBytes
}

func (d *Detector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if len(kw) == 0 {
			continue
		}
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}

func (d *Detector) missingSelectors(body []byte) bool {
	if len(d.selectors) == 0 || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return true
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() == 0 {
			return true
		}
	}
	return false
}
