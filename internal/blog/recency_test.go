package blog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func pinnedClassifier() *Classifier {
	fixed := time.Date(2025, time.June, 15, 12, 0, 0, 0, time.UTC)
	return NewClassifier().WithClock(func() time.Time { return fixed })
}

func TestRecencyContextualDate(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<p>Published on June 1, 2025 by the editorial desk.</p>
	</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.True(t, ok)
	require.Equal(t, ReasonContextualDate, reason)
}

func TestRecencyBareDate(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<p>Archive entry 2025-06-01 covers the spring roundup.</p>
	</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.True(t, ok)
	require.Equal(t, ReasonDateFound, reason)
}

func TestRecencyFreshnessPhrase(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<p>Check out our latest post on sourdough starters.</p>
	</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.True(t, ok)
	require.Equal(t, ReasonRecentIndicator, reason)
}

func TestRecencyCurrentYearMention(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<footer>Copyright 2025 Acme Bakery</footer>
	</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.True(t, ok)
	require.Equal(t, ReasonRecentIndicator, reason)
}

func TestRecencyMultipleValidArticles(t *testing.T) {
	t.Parallel()

	article := `<article><h2>Field notes</h2><p>` + filler(60) + ` Read more</p></article>`
	doc := parseDoc(t, `<html><body>`+article+article+article+`</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.True(t, ok)
	require.Equal(t, ReasonMultipleValid, reason)
}

func TestRecencyFeeds(t *testing.T) {
	t.Parallel()

	recent := parseDoc(t, `<html><head>
		<link rel="alternate" type="application/rss+xml" title="Latest posts feed">
	</head><body></body></html>`)
	ok, reason := pinnedClassifier().Recency(recent)
	require.True(t, ok)
	require.Equal(t, ReasonRecentFeed, reason)

	plain := parseDoc(t, `<html><head>
		<link rel="alternate" type="application/atom+xml" title="Feed">
	</head><body></body></html>`)
	ok, reason = pinnedClassifier().Recency(plain)
	require.True(t, ok)
	require.Equal(t, ReasonFeedPresent, reason)
}

func TestRecencyStaleContent(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, `<html><body>
		<p>Published on March 10, 2020. Nothing since.</p>
	</body></html>`)

	ok, reason := pinnedClassifier().Recency(doc)
	require.False(t, ok)
	require.Equal(t, ReasonNoRecent, reason)
}
