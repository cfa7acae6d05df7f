// Package scrape finds outreach contacts on target sites: it fetches a
// small page set per site and extracts emails, phone numbers, and social
// links, then ranks the addresses for guest-posting suitability.
package scrape

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/metrics"
	"github.com/outreachkit/prospector/internal/retry"
)

// FetcherConfig controls collector behavior.
type FetcherConfig struct {
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
}

// FetchResponse is a fetched page.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher issues single-page HTTP GETs through a Colly collector, with a
// bounded retry on 429/5xx and an HTTPS-to-HTTP downgrade when the secure
// attempt fails outright.
type Fetcher struct {
	cfg           FetcherConfig
	baseCollector *colly.Collector
	policy        *retry.Policy
	logger        *zap.Logger
}

// NewFetcher builds a Fetcher.
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		// 2 retries after the initial attempt.
		policy: retry.NewPolicyWith(3, 200*time.Millisecond, 2*time.Second),
		logger: logger,
	}
}

// Fetch gets one URL, retrying transient failures (429 and 5xx statuses,
// network errors) within the policy's attempt budget.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	var lastRes FetchResponse
	var lastErr error
	for attempt := 0; attempt < f.policy.MaxAttempts(); attempt++ {
		if attempt > 0 {
			if err := f.policy.Sleep(ctx, attempt-1); err != nil {
				return lastRes, err
			}
		}
		res, err := f.fetchOnce(ctx, url)
		if err == nil && !retryableStatus(res.StatusCode) {
			metrics.ObserveScrapePage(url, "ok")
			return res, nil
		}
		lastRes, lastErr = res, err
		if err != nil && !f.policy.ShouldRetry(err, attempt+1) {
			break
		}
	}
	metrics.ObserveScrapePage(url, "error")
	if lastErr != nil {
		return lastRes, lastErr
	}
	return lastRes, fmt.Errorf("fetch %s: status %d", url, lastRes.StatusCode)
}

// FetchWithFallback tries HTTPS first and downgrades to plain HTTP when
// the secure attempt errors or answers with a 4xx/5xx.
func (f *Fetcher) FetchWithFallback(ctx context.Context, url string) (FetchResponse, error) {
	url = EnsureScheme(url)
	res, err := f.Fetch(ctx, url)
	if (err != nil || res.StatusCode >= 400) && strings.HasPrefix(url, "https://") {
		httpURL := "http://" + strings.TrimPrefix(url, "https://")
		f.logger.Debug("https fetch failed, trying http", zap.String("url", url), zap.Error(err))
		if downgraded, derr := f.Fetch(ctx, httpURL); derr == nil && downgraded.StatusCode < 400 {
			return downgraded, nil
		}
	}
	return res, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (FetchResponse, error) {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	var (
		result   FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector.OnResponse(func(r *colly.Response) {
		result = FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.URL = url
			result.StatusCode = r.StatusCode
			result.Duration = time.Since(start)
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return FetchResponse{}, fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil && fetchErr == nil {
			fetchErr = err
		}
	}
	if fetchErr != nil {
		// A served error page still carries a status worth reporting.
		if result.StatusCode >= 400 {
			return result, nil
		}
		return result, fmt.Errorf("visit %s: %w", url, fetchErr)
	}
	return result, nil
}

// EnsureScheme prefixes bare hosts with https://.
func EnsureScheme(url string) string {
	if strings.Contains(url, "://") {
		return url
	}
	return "https://" + url
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
