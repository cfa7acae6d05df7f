package blog

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/headless"
	"github.com/outreachkit/prospector/internal/scrape"
)

// Result is the outcome of a blog check for one site.
type Result struct {
	URL          string   `json:"url"`
	StatusCode   int      `json:"status_code,omitempty"`
	IsBlog       bool     `json:"is_blog"`
	Score        int      `json:"blog_score"`
	Indicators   []string `json:"blog_indicators,omitempty"`
	HasRecent    bool     `json:"has_recent_content"`
	RecentReason string   `json:"recent_reason"`
	UsedHeadless bool     `json:"used_headless,omitempty"`
	Error        string   `json:"error,omitempty"`
}

type pageFetcher interface {
	FetchWithFallback(ctx context.Context, url string) (scrape.FetchResponse, error)
}

type pageRenderer interface {
	Render(ctx context.Context, url string) (headless.RenderedPage, error)
}

// Checker fetches a page, optionally promotes it through a headless
// browser when the static body looks like an unrendered shell, and runs
// classification plus recency detection on the result.
type Checker struct {
	fetch      pageFetcher
	classifier *Classifier
	detector   *headless.Detector
	renderer   pageRenderer
	logger     *zap.Logger
}

// NewChecker builds a checker without headless support.
func NewChecker(fetcher *scrape.Fetcher, logger *zap.Logger) *Checker {
	return newChecker(fetcher, logger)
}

func newChecker(fetcher pageFetcher, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		fetch:      fetcher,
		classifier: NewClassifier(),
		logger:     logger,
	}
}

// WithHeadless enables browser promotion for pages the detector flags.
func (c *Checker) WithHeadless(detector *headless.Detector, renderer pageRenderer) *Checker {
	c.detector = detector
	c.renderer = renderer
	return c
}

// CheckURL fetches and classifies one site. Fetch failures produce a
// non-blog result carrying the error rather than an error return, so a
// batch of checks always yields one result per input.
func (c *Checker) CheckURL(ctx context.Context, rawURL string) Result {
	url := scrape.EnsureScheme(rawURL)
	out := Result{URL: url, RecentReason: ReasonNoRecent}

	resp, err := c.fetch.FetchWithFallback(ctx, url)
	out.StatusCode = resp.StatusCode
	if err != nil {
		out.Error = err.Error()
		c.logger.Debug("blog check fetch failed", zap.String("url", url), zap.Error(err))
		return out
	}

	body := resp.Body
	if c.renderer != nil && c.detector.NeedsJS(body) {
		rendered, renderErr := c.renderer.Render(ctx, resp.URL)
		if renderErr != nil {
			c.logger.Warn("headless render failed, using static body",
				zap.String("url", resp.URL), zap.Error(renderErr))
		} else {
			body = rendered.Body
			out.StatusCode = rendered.StatusCode
			out.UsedHeadless = true
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		out.Error = err.Error()
		return out
	}

	cls := c.classifier.Classify(doc, resp.URL)
	out.IsBlog = cls.IsBlog
	out.Score = cls.Score
	out.Indicators = cls.Indicators
	out.HasRecent, out.RecentReason = c.classifier.Recency(doc)
	return out
}
