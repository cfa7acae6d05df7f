package scrape

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outreachkit/prospector/internal/snapshot"
)

// fakeFetcher serves canned pages by URL.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	fetched []string
}

func (f *fakeFetcher) FetchWithFallback(_ context.Context, url string) (FetchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	body, ok := f.pages[url]
	if !ok {
		return FetchResponse{URL: url, StatusCode: 404}, errors.New("not found")
	}
	return FetchResponse{URL: url, StatusCode: 200, Body: []byte(body)}, nil
}

func TestScrapeSiteAggregatesPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": `<html><body>
			<a href="mailto:editor@example.com">editor</a>
			<a href="https://linkedin.com/company/acme">LI</a>
		</body></html>`,
		"https://example.com/contact": `<html><body>
			<a href="mailto:info@example.com">info</a>
			<a href="tel:+1-212-555-0187">call</a>
		</body></html>`,
		"https://example.com/about": `<html><body>
			<p>Write for us</p>
			<a href="mailto:press@example.com">press</a>
		</body></html>`,
	}}
	s := newScraper(fetcher, nil, 3, nil)

	res := s.ScrapeSite(context.Background(), "example.com")
	require.Equal(t, "example.com", res.SiteHost)
	require.Len(t, res.Emails, 3)
	require.Equal(t, "editor@example.com", res.Emails[0].Email)
	require.Contains(t, res.Phones, "+12125550187")
	require.Equal(t, "https://linkedin.com/company/acme", res.Social.LinkedIn)
	require.Empty(t, res.FailedPages)
}

func TestScrapeSiteStopsEarlyAtMaxEmails(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com": `<html><body>
			<a href="mailto:editor@example.com">a</a>
			<a href="mailto:info@example.com">b</a>
		</body></html>`,
		"https://example.com/contact": `<html><body></body></html>`,
		"https://example.com/about":   `<html><body></body></html>`,
	}}
	s := newScraper(fetcher, nil, 2, nil)

	res := s.ScrapeSite(context.Background(), "https://example.com")
	require.Len(t, res.Emails, 2)
	// The home page already satisfied the cap; no other page is fetched.
	require.Equal(t, []string{"https://example.com"}, fetcher.fetched)
}

func TestScrapeSiteRecordsFailedPages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com/contact": `<html><body><a href="mailto:info@example.com">x</a></body></html>`,
	}}
	s := newScraper(fetcher, nil, 3, nil)

	res := s.ScrapeSite(context.Background(), "example.com")
	require.Contains(t, res.FailedPages, "https://example.com")
	require.Contains(t, res.FailedPages, "https://example.com/about")
	require.Len(t, res.Emails, 1)
	require.Equal(t, "info@example.com", res.Emails[0].Email)
}

func TestScrapeSiteArchivesSnapshots(t *testing.T) {
	t.Parallel()

	store := snapshot.NewMemoryStore()
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://example.com":         `<html><body></body></html>`,
		"https://example.com/contact": `<html><body></body></html>`,
		"https://example.com/about":   `<html><body></body></html>`,
	}}
	s := newScraper(fetcher, store, 3, nil)

	s.ScrapeSite(context.Background(), "example.com")
	require.Equal(t, 3, store.Len())
	_, ok := store.Get("example.com/home.html")
	require.True(t, ok)
}

func TestSiteHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "example.com", SiteHost("https://www.example.com/path"))
	require.Equal(t, "example.com", SiteHost("example.com"))
	require.Equal(t, "", SiteHost("://"))
}
