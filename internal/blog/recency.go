package blog

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Recency reason tags, most confident first.
const (
	ReasonContextualDate  = "contextual_date_found"
	ReasonDateFound       = "date_found"
	ReasonRecentIndicator = "recent_indicators"
	ReasonMultipleValid   = "multiple_valid_articles"
	ReasonRecentFeed      = "recent_feed_present"
	ReasonFeedPresent     = "rss_feed_present"
	ReasonRecentUpdate    = "recent_update_date"
	ReasonNoRecent        = "no_recent_content"
)

var publicationContextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:published|posted|written|created|updated)\s+(?:on\s+)?([^.]+?\d{4})`),
	regexp.MustCompile(`(?i)([^.]+?\d{4})\s*[-–—]\s*(?:by|author)`),
	regexp.MustCompile(`(?i)(?:date|time):\s*([^.]+?\d{4})`),
}

var freshnessPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:published|posted|updated)\s+(?:today|yesterday|this week|last week)\b`),
	regexp.MustCompile(`(?i)\b(?:new|latest|recent)\s+(?:post|article|blog|entry)\b`),
}

var lastUpdatedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)last\s+updated?\s*:?\s*([^.]+?\d{4})`),
	regexp.MustCompile(`(?i)modified\s*:?\s*([^.]+?\d{4})`),
	regexp.MustCompile(`(?i)updated?\s+on\s*:?\s*([^.]+?\d{4})`),
}

// Recency decides whether the page shows signs of recent publishing and
// names which signal fired. Checks run most-confident-first: dated
// publication context, any recent date, freshness phrases, multiple real
// articles, feeds, and finally last-updated stamps.
func (c *Classifier) Recency(doc *goquery.Document) (bool, string) {
	text := collapsedText(doc)
	now := c.now()

	for _, pattern := range publicationContextPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			for _, d := range ExtractDates(m[1], now) {
				if !d.Before(now.AddDate(0, 0, -90)) {
					return true, ReasonContextualDate
				}
			}
		}
	}

	for _, d := range ExtractDates(text, now) {
		if !d.Before(now.AddDate(0, 0, -60)) {
			return true, ReasonDateFound
		}
	}

	yearPattern := regexp.MustCompile(fmt.Sprintf(`\b(?:%d|%d)\b`, now.Year(), now.Year()-1))
	for _, pattern := range freshnessPhrasePatterns {
		if pattern.MatchString(text) {
			return true, ReasonRecentIndicator
		}
	}
	if yearPattern.MatchString(text) {
		return true, ReasonRecentIndicator
	}

	if countValidRecentArticles(doc) >= 3 {
		return true, ReasonMultipleValid
	}

	feeds := feedLinks(doc)
	if feeds.Length() > 0 {
		recent := false
		feeds.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			title, _ := sel.Attr("title")
			lower := strings.ToLower(title)
			for _, term := range []string{"latest", "recent", "new"} {
				if strings.Contains(lower, term) {
					recent = true
					return false
				}
			}
			return true
		})
		if recent {
			return true, ReasonRecentFeed
		}
		return true, ReasonFeedPresent
	}

	for _, pattern := range lastUpdatedPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			for _, d := range ExtractDates(m[1], now) {
				if !d.Before(now.AddDate(0, 0, -180)) {
					return true, ReasonRecentUpdate
				}
			}
		}
	}

	return false, ReasonNoRecent
}

// countValidRecentArticles counts article-like elements with real
// content, a heading, and publishing vocabulary.
func countValidRecentArticles(doc *goquery.Document) int {
	indicators := []string{"read more", "continue", "posted", "published"}
	valid := 0
	checked := 0
	doc.Find("article, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		if goquery.NodeName(sel) != "article" && !postListingClasses.MatchString(class) {
			return true
		}
		checked++
		text := sel.Text()
		if len(strings.Fields(text)) >= 50 && sel.Find("h1, h2, h3").Length() > 0 {
			lower := strings.ToLower(text)
			for _, ind := range indicators {
				if strings.Contains(lower, ind) {
					valid++
					break
				}
			}
		}
		return checked < 10
	})
	return valid
}

// WithClock returns a classifier pinned to a fixed time, for tests and
// reproducible replays.
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	return &Classifier{now: now}
}
