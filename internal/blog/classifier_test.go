package blog

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func filler(words int) string {
	return strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet ", (words/5)+1))
}

func TestClassifyEcommerceExcluded(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<p>Add to cart today. Buy now before checkout closes.</p>
	</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://shop.example.com/blog/")
	require.False(t, got.IsBlog)
	require.Equal(t, -10, got.Score)
	require.Equal(t, []string{"non_blog_detected"}, got.Indicators)
}

func TestClassifyThinLandingPageExcluded(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<h1>Sign up now for a free trial</h1>
	</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://example.com")
	require.False(t, got.IsBlog)
	require.Equal(t, -10, got.Score)
}

func TestClassifyStrongURLPattern(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body></body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://example.com/blog/how-we-ship")
	// Strong path match plus the weak keyword overlap.
	require.Equal(t, 10, got.Score)
	require.True(t, got.IsBlog)
	require.Contains(t, got.Indicators, "strong_url_pattern")
	require.Contains(t, got.Indicators, "weak_url_pattern")
}

func TestClassifyMediumHostBelowThreshold(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body></body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://blog.example.com/")
	require.Equal(t, 7, got.Score)
	require.False(t, got.IsBlog)
	require.Contains(t, got.Indicators, "medium_url_pattern")
}

func TestClassifyContentSignals(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<article class="post-content">
			<h2>Shipping season</h2>
			<p>Posted by Ada. `+filler(120)+` Read more below.</p>
		</article>
	</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://example.com/")
	require.True(t, got.IsBlog)
	require.Contains(t, got.Indicators, "semantic_articles")
	require.Contains(t, got.Indicators, "specific_blog_classes")
	require.Contains(t, got.Indicators, "strong_blog_keywords")
}

func TestClassifyMetadataSignals(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><head>
		<meta property="og:type" content="article">
		<meta name="keywords" content="blog, engineering">
	</head><body>
		<div itemscope itemtype="https://schema.org/Article"></div>
	</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://example.com/")
	require.True(t, got.IsBlog)
	require.Contains(t, got.Indicators, "blog_metadata")
	require.Equal(t, 9, got.Score)
}

func TestClassifyBlogListing(t *testing.T) {
	t.Parallel()

	post := `<div class="post-card"><h3>Title</h3><p>` + filler(25) + `</p></div>`
	doc := parseDoc(t, `<html><body>`+post+post+post+`</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://example.com/")
	require.Contains(t, got.Indicators, "blog_listing")
}

func TestClassifyPlainCorporatePage(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<h1>Acme Consulting</h1>
		<p>`+filler(600)+`</p>
	</body></html>`)
	c := NewClassifier()

	got := c.Classify(doc, "https://acme.example.com/")
	require.False(t, got.IsBlog)
	require.Less(t, got.Score, BlogScoreThreshold)
}
