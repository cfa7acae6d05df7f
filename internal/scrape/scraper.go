package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/snapshot"
)

// DefaultMaxEmailsPerSite bounds how many ranked addresses a site yields.
const DefaultMaxEmailsPerSite = 3

// SiteResult aggregates extraction across a site's page set.
type SiteResult struct {
	URL          string        `json:"url"`
	SiteHost     string        `json:"site_host"`
	Emails       []RankedEmail `json:"scraped_emails"`
	Phones       []string      `json:"phone_numbers"`
	Social       SocialLinks   `json:"social_links"`
	ContextScore int           `json:"context_score"`
	Notes        string        `json:"notes"`
	FailedPages  []string      `json:"failed_pages,omitempty"`
}

// pageFetcher lets tests feed canned pages to the scraper.
type pageFetcher interface {
	FetchWithFallback(ctx context.Context, url string) (FetchResponse, error)
}

// Scraper walks a site's contact-bearing pages and aggregates contacts.
type Scraper struct {
	fetcher   pageFetcher
	snapshots snapshot.Store
	maxEmails int
	logger    *zap.Logger
}

// NewScraper builds a Scraper. snapshots may be nil to skip archiving.
func NewScraper(fetcher *Fetcher, snapshots snapshot.Store, maxEmails int, logger *zap.Logger) *Scraper {
	return newScraper(fetcher, snapshots, maxEmails, logger)
}

func newScraper(fetcher pageFetcher, snapshots snapshot.Store, maxEmails int, logger *zap.Logger) *Scraper {
	if maxEmails <= 0 {
		maxEmails = DefaultMaxEmailsPerSite
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{fetcher: fetcher, snapshots: snapshots, maxEmails: maxEmails, logger: logger}
}

// ScrapeSite fetches the home, /contact, and /about pages, stopping early
// once enough distinct emails are found. Social links and phone numbers
// from already-fetched pages are kept either way. Per-page failures are
// recorded and skipped, never fatal.
func (s *Scraper) ScrapeSite(ctx context.Context, rawURL string) SiteResult {
	home := EnsureScheme(rawURL)
	root := siteBase(home)
	result := SiteResult{
		URL:      home,
		SiteHost: SiteHost(home),
		Notes:    "crawled_multiple_pages",
	}

	pages := []string{home, root + "/contact", root + "/about"}
	emailSeen := make(map[string]struct{})
	phoneSeen := make(map[string]struct{})
	var allEmails []string

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			break
		}
		res, err := s.fetcher.FetchWithFallback(ctx, page)
		if err != nil || res.StatusCode >= 400 {
			result.FailedPages = append(result.FailedPages, page)
			s.logger.Debug("page fetch failed",
				zap.String("page", page), zap.Int("status", res.StatusCode), zap.Error(err))
			continue
		}
		s.archive(ctx, result.SiteHost, page, res.Body)

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
		if err != nil {
			result.FailedPages = append(result.FailedPages, page)
			continue
		}
		extract := ExtractPage(doc, res.URL)

		for _, e := range extract.Emails {
			if _, dup := emailSeen[e]; !dup {
				emailSeen[e] = struct{}{}
				allEmails = append(allEmails, e)
			}
		}
		for _, p := range extract.Phones {
			if _, dup := phoneSeen[p]; !dup {
				phoneSeen[p] = struct{}{}
				result.Phones = append(result.Phones, p)
			}
		}
		result.Social.Merge(extract.Social)
		result.ContextScore += extract.ContextScore

		if len(allEmails) >= s.maxEmails {
			break
		}
	}

	ranked := RankEmails(allEmails, result.SiteHost, result.ContextScore)
	if len(ranked) > s.maxEmails {
		ranked = ranked[:s.maxEmails]
	}
	result.Emails = ranked
	return result
}

func (s *Scraper) archive(ctx context.Context, host, page string, body []byte) {
	if s.snapshots == nil || len(body) == 0 {
		return
	}
	key := fmt.Sprintf("%s/%s.html", host, pageSlug(page))
	uri, err := s.snapshots.Put(ctx, key, "text/html", body)
	if err != nil {
		s.logger.Warn("snapshot write failed", zap.String("key", key), zap.Error(err))
		return
	}
	s.logger.Debug("page archived", zap.String("uri", uri))
}

// SiteHost extracts the lowercase registrable host, without a leading www.
func SiteHost(rawURL string) string {
	u, err := url.Parse(EnsureScheme(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// siteBase returns scheme://host for building sibling page URLs.
func siteBase(rawURL string) string {
	u, err := url.Parse(EnsureScheme(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(rawURL, "/")
	}
	return u.Scheme + "://" + u.Host
}

func pageSlug(page string) string {
	u, err := url.Parse(page)
	if err != nil {
		return "page"
	}
	slug := strings.Trim(u.Path, "/")
	if slug == "" {
		return "home"
	}
	return strings.ReplaceAll(slug, "/", "_")
}
