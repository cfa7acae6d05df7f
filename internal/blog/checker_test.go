package blog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outreachkit/prospector/internal/headless"
	"github.com/outreachkit/prospector/internal/scrape"
)

type fakePageFetcher struct {
	resp scrape.FetchResponse
	err  error
}

func (f *fakePageFetcher) FetchWithFallback(context.Context, string) (scrape.FetchResponse, error) {
	return f.resp, f.err
}

type fakeRenderer struct {
	page   headless.RenderedPage
	err    error
	called int
}

func (r *fakeRenderer) Render(context.Context, string) (headless.RenderedPage, error) {
	r.called++
	return r.page, r.err
}

func TestCheckURLClassifiesBlog(t *testing.T) {
	t.Parallel()

	body := `<html><body>
		<article class="post-content">
			<h2>Release notes</h2>
			<p>Posted by Ada. ` + filler(120) + ` Read more soon.</p>
		</article>
	</body></html>`
	fetcher := &fakePageFetcher{resp: scrape.FetchResponse{
		URL:        "https://example.com/blog/",
		StatusCode: 200,
		Body:       []byte(body),
	}}
	c := newChecker(fetcher, nil)

	got := c.CheckURL(context.Background(), "example.com")
	require.True(t, got.IsBlog)
	require.Equal(t, 200, got.StatusCode)
	require.Empty(t, got.Error)
	require.False(t, got.UsedHeadless)
}

func TestCheckURLFetchFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakePageFetcher{err: errors.New("connection refused")}
	c := newChecker(fetcher, nil)

	got := c.CheckURL(context.Background(), "https://down.example.com")
	require.False(t, got.IsBlog)
	require.Equal(t, "connection refused", got.Error)
	require.Equal(t, ReasonNoRecent, got.RecentReason)
}

func TestCheckURLPromotesToHeadless(t *testing.T) {
	t.Parallel()

	fetcher := &fakePageFetcher{resp: scrape.FetchResponse{
		URL:        "https://spa.example.com",
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"></div></body></html>`),
	}}
	renderer := &fakeRenderer{page: headless.RenderedPage{
		URL:        "https://spa.example.com",
		StatusCode: 200,
		Body: []byte(`<html><body>
			<article class="blog-post">
				<h2>Rendered post</h2>
				<p>Posted by the team. ` + filler(120) + ` Read more here.</p>
			</article>
		</body></html>`),
	}}
	c := newChecker(fetcher, nil).WithHeadless(headless.NewDefaultDetector(), renderer)

	got := c.CheckURL(context.Background(), "spa.example.com")
	require.Equal(t, 1, renderer.called)
	require.True(t, got.UsedHeadless)
	require.True(t, got.IsBlog)
}

func TestCheckURLHeadlessFailureFallsBack(t *testing.T) {
	t.Parallel()

	fetcher := &fakePageFetcher{resp: scrape.FetchResponse{
		URL:        "https://spa.example.com",
		StatusCode: 200,
		Body:       []byte(`<html><body><div id="root"></div></body></html>`),
	}}
	renderer := &fakeRenderer{err: errors.New("browser crashed")}
	c := newChecker(fetcher, nil).WithHeadless(headless.NewDefaultDetector(), renderer)

	got := c.CheckURL(context.Background(), "spa.example.com")
	require.Equal(t, 1, renderer.called)
	require.False(t, got.UsedHeadless)
	require.False(t, got.IsBlog)
	require.Empty(t, got.Error)
}
