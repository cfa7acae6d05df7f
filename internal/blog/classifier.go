// Package blog decides whether a page is an active blog worth pitching:
// a weighted-signal classifier plus a recency detector, both operating on
// parsed HTML.
package blog

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// BlogScoreThreshold is the minimum weighted-signal score for a page to
// count as a blog.
const BlogScoreThreshold = 8

var (
	strongURLPatterns = []string{"/blog/", "/blogs/", "/articles/", "/posts/", "/news/", "/journal/"}
	mediumURLPrefixes = []string{"blog.", "news.", "articles."}
	weakURLPatterns   = []string{"blog", "article", "post", "journal", "magazine"}

	specificBlogClasses = regexp.MustCompile(`(?i)post-content|blog-post|entry-content|article-content|post-body|blog-entry|single-post|blog-article`)
	genericBlogClasses  = regexp.MustCompile(`(?i)post|entry|article`)
	postListingClasses  = regexp.MustCompile(`(?i)post|entry|blog`)
	dateClasses         = regexp.MustCompile(`(?i)date|time|published`)
	titleClasses        = regexp.MustCompile(`(?i)title|heading`)
	navClasses          = regexp.MustCompile(`(?i)nav|menu`)
	articleSchema       = regexp.MustCompile(`(?i)schema\.org/Article`)
	feedLinkTypes       = regexp.MustCompile(`(?i)application/(?:rss|atom)\+xml`)

	structuredDatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bpublished\s+(?:on\s+)?(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\bposted\s+(?:on\s+)?(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}`),
		regexp.MustCompile(`(?i)\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}\s*[-–—]\s*by\b`),
	}

	elementValidationPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:posted|published|written)\s+(?:on|by)`),
		regexp.MustCompile(`(?i)\b(?:read more|continue reading|full post)\b`),
		regexp.MustCompile(`(?i)\b(?:comments?|reply|share)\b`),
	}

	commentPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bcomment\s*(?:form|section|area)\b`),
		regexp.MustCompile(`(?i)\bleave\s+a?\s*comment\b`),
		regexp.MustCompile(`(?i)\bpost\s+comment\b`),
		regexp.MustCompile(`(?i)\b\d+\s+comments?\b`),
	}
)

var strongBlogKeywords = []string{
	"posted by", "written by", "published by", "author:", "by author",
	"read more", "continue reading", "full article", "view comments",
	"leave a comment", "post comment", "share this post",
}

var ecommercePhrases = []string{
	"add to cart", "buy now", "shopping cart", "checkout", "product price",
	"add to basket", "purchase", "order now", "price:", "$", "€", "£",
}

var landingPhrases = []string{
	"sign up now", "get started", "free trial", "download now",
	"contact us", "request demo", "learn more",
}

var docPhrases = []string{"api documentation", "getting started", "installation", "configuration"}

var commentSystems = []string{
	"disqus", "facebook-comments", "wordpress-comments",
	"livefyre", "intensedebate", "commentluv",
}

// Classification is the outcome of blog detection for one page.
type Classification struct {
	IsBlog     bool     `json:"is_blog"`
	Score      int      `json:"blog_score"`
	Indicators []string `json:"blog_indicators"`
}

// Classifier scores pages for blog-ness. The clock is injectable so
// year-sensitive recency checks stay testable.
type Classifier struct {
	now func() time.Time
}

// NewClassifier builds a classifier on the system clock.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// Classify runs exclusion rules first, then accumulates capped weighted
// signals; pages scoring at least BlogScoreThreshold count as blogs.
func (c *Classifier) Classify(doc *goquery.Document, url string) Classification {
	if isNonBlogPage(doc, url) {
		return Classification{Score: -10, Indicators: []string{"non_blog_detected"}}
	}

	score := 0
	var indicators []string
	add := func(points int, indicator string) {
		if points > 0 {
			score += points
			indicators = append(indicators, indicator)
		}
	}

	urlLower := strings.ToLower(url)
	urlHost := strings.TrimPrefix(strings.ToLower(hostOf(url)), "www.")
	if containsAny(urlLower, strongURLPatterns) {
		add(8, "strong_url_pattern")
	}
	for _, prefix := range mediumURLPrefixes {
		if strings.HasPrefix(urlHost, prefix) {
			add(5, "medium_url_pattern")
			break
		}
	}
	if containsAny(urlLower, weakURLPatterns) {
		add(2, "weak_url_pattern")
	}

	if n := countBlogLikeArticles(doc); n > 0 {
		add(minInt(n*3, 8), "semantic_articles")
	}

	if hasClassMatch(doc, "*", specificBlogClasses) {
		add(4, "specific_blog_classes")
	} else if hasValidatedGenericElement(doc) {
		add(2, "validated_generic_classes")
	}

	text := strings.ToLower(collapsedText(doc))
	strongCount := 0
	for _, kw := range strongBlogKeywords {
		if strings.Contains(text, kw) {
			strongCount++
		}
	}
	add(minInt(strongCount*2, 6), "strong_blog_keywords")

	add(detectPublicationDates(doc, text), "publication_dates")
	add(detectBlogListing(doc), "blog_listing")
	add(analyzeNavigation(doc, text), "blog_navigation")
	add(analyzeMetadata(doc), "blog_metadata")
	add(detectCommentSystem(doc, text), "comment_system")
	add(detectFeeds(doc), "rss_feeds")

	return Classification{IsBlog: score >= BlogScoreThreshold, Score: score, Indicators: indicators}
}

// isNonBlogPage applies the exclusion rules: storefronts, thin landing
// pages, documentation, and short boilerplate pages are never blogs.
func isNonBlogPage(doc *goquery.Document, url string) bool {
	urlLower := strings.ToLower(url)
	text := strings.ToLower(collapsedText(doc))
	wordCount := len(strings.Fields(text))

	ecommerceCount := 0
	for _, phrase := range ecommercePhrases {
		if strings.Contains(text, phrase) {
			ecommerceCount++
		}
	}
	if ecommerceCount >= 3 {
		return true
	}

	if containsAny(text, landingPhrases) && wordCount < 500 {
		return true
	}
	if containsAny(text, docPhrases) {
		return true
	}

	for _, path := range []string{"/about", "/home", "/contact", "/services"} {
		if strings.Contains(urlLower, path) && wordCount < 300 {
			return true
		}
	}
	return false
}

func countBlogLikeArticles(doc *goquery.Document) int {
	indicators := []string{
		"posted", "published", "written by", "author", "read more",
		"continue reading", "comments", "share",
	}
	count := 0
	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Text()
		if len(strings.Fields(text)) < 100 {
			return
		}
		lower := strings.ToLower(text)
		for _, ind := range indicators {
			if strings.Contains(lower, ind) {
				count++
				return
			}
		}
	})
	return count
}

func hasValidatedGenericElement(doc *goquery.Document) bool {
	found := false
	doc.Find("div, section").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		if class == "" || !genericBlogClasses.MatchString(class) {
			return true
		}
		text := sel.Text()
		if len(strings.Fields(text)) < 50 {
			return true
		}
		for _, pattern := range elementValidationPatterns {
			if pattern.MatchString(text) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func detectPublicationDates(doc *goquery.Document, text string) int {
	score := 0
	if hasClassMatch(doc, "time, span, div", dateClasses) {
		score += 3
	}
	for _, pattern := range structuredDatePatterns {
		if pattern.MatchString(text) {
			score += 2
			break
		}
	}
	return minInt(score, 4)
}

func detectBlogListing(doc *goquery.Document) int {
	validPosts := 0
	checked := 0
	doc.Find("article, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		if goquery.NodeName(sel) != "article" && !postListingClasses.MatchString(class) {
			return true
		}
		checked++
		if len(strings.Fields(sel.Text())) >= 20 {
			if sel.Find("h1, h2, h3, h4").Length() > 0 || classMatchWithin(sel, titleClasses) {
				validPosts++
			}
		}
		return checked < 10
	})
	if validPosts >= 3 {
		return 5
	}
	if validPosts >= 2 {
		return 3
	}
	return 0
}

func analyzeNavigation(doc *goquery.Document, pageText string) int {
	score := 0
	terms := []string{"blog", "articles", "posts"}
	doc.Find("nav, ul, div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		class, _ := sel.Attr("class")
		if goquery.NodeName(sel) != "nav" && !navClasses.MatchString(class) {
			return true
		}
		navText := strings.ToLower(sel.Text())
		matches := 0
		for _, term := range terms {
			if strings.Contains(navText, term) {
				matches++
			}
		}
		if matches >= 2 {
			score += 3
			return false
		}
		if matches == 1 {
			score++
		}
		return true
	})

	for _, ind := range []string{"previous", "next", "page", "older posts", "newer posts"} {
		if strings.Contains(pageText, ind) {
			score += 2
			break
		}
	}
	return minInt(score, 4)
}

func analyzeMetadata(doc *goquery.Document) int {
	score := 0
	doc.Find(`meta[property="og:type"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if content, _ := sel.Attr("content"); strings.EqualFold(content, "article") {
			score += 4
		}
		return false
	})
	doc.Find("[itemtype]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if itemtype, _ := sel.Attr("itemtype"); articleSchema.MatchString(itemtype) {
			score += 3
			return false
		}
		return true
	})
	doc.Find(`meta[name="keywords"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		content, _ := sel.Attr("content")
		lower := strings.ToLower(content)
		for _, term := range []string{"blog", "article", "post"} {
			if strings.Contains(lower, term) {
				score += 2
				break
			}
		}
		return false
	})
	return score
}

func detectCommentSystem(doc *goquery.Document, text string) int {
	score := 0
	rawHTML, err := doc.Html()
	if err == nil {
		lower := strings.ToLower(rawHTML)
		for _, system := range commentSystems {
			if strings.Contains(lower, system) {
				score += 3
				break
			}
		}
	}
	for _, pattern := range commentPatterns {
		if pattern.MatchString(text) {
			score += 2
			break
		}
	}
	return minInt(score, 4)
}

func detectFeeds(doc *goquery.Document) int {
	score := 0
	if feedLinks(doc).Length() > 0 {
		score += 2
	}
	hints := []string{"rss", "atom", "feed", "subscribe"}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		linkText := strings.ToLower(sel.Text())
		hrefLower := strings.ToLower(href)
		for _, hint := range hints {
			if strings.Contains(linkText, hint) || strings.Contains(hrefLower, hint) {
				score++
				return false
			}
		}
		return true
	})
	return minInt(score, 2)
}

func feedLinks(doc *goquery.Document) *goquery.Selection {
	return doc.Find("link[type]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		typ, _ := sel.Attr("type")
		return feedLinkTypes.MatchString(typ)
	})
}

// hasClassMatch reports whether any element in the selector set has a
// class attribute matching the pattern.
func hasClassMatch(doc *goquery.Document, selector string, pattern *regexp.Regexp) bool {
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if class, ok := sel.Attr("class"); ok && pattern.MatchString(class) {
			found = true
			return false
		}
		return true
	})
	return found
}

func classMatchWithin(sel *goquery.Selection, pattern *regexp.Regexp) bool {
	found := false
	sel.Find("[class]").EachWithBreak(func(_ int, inner *goquery.Selection) bool {
		if class, ok := inner.Attr("class"); ok && pattern.MatchString(class) {
			found = true
			return false
		}
		return true
	})
	return found
}

func collapsedText(doc *goquery.Document) string {
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func hostOf(url string) string {
	trimmed := url
	if idx := strings.Index(trimmed, "://"); idx >= 0 {
		trimmed = trimmed[idx+3:]
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
