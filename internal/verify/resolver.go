package verify

import (
	"context"
	"net"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/cache"
	"github.com/outreachkit/prospector/internal/metrics"
)

// MX resolution note tags surfaced in verification diagnostics.
const (
	NoteMXOK        = "mx_ok"
	NoteMXFallbackA = "mx_fallback_a"
	NoteNoMX        = "no_mx"
)

// lookuper is the slice of net.Resolver the resolver depends on.
type lookuper interface {
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// MXResult is a cached resolution outcome. Failures cache too, so a dead
// domain costs one lookup per process.
type MXResult struct {
	Hosts []string
	Note  string
}

// Resolver resolves and caches MX hosts per domain. Concurrent first
// lookups of the same domain share a single DNS query.
type Resolver struct {
	lookup  lookuper
	cache   *cache.Cache[MXResult]
	timeout time.Duration
	logger  *zap.Logger
}

// NewResolver builds a resolver backed by the system DNS resolver.
func NewResolver(logger *zap.Logger) *Resolver {
	return newResolver(net.DefaultResolver, logger)
}

func newResolver(lookup lookuper, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup:  lookup,
		cache:   cache.New[MXResult](),
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// Resolve returns the MX hosts for a domain sorted by preference, with a
// note describing how they were obtained. Domains without MX records but
// with an A record fall back to the domain itself (NoteMXFallbackA);
// unresolvable domains return no hosts and NoteNoMX.
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]string, string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return nil, NoteNoMX
	}
	res, err := r.cache.GetOrCompute(ctx, domain, func(ctx context.Context) (MXResult, error) {
		out := r.resolveUncached(ctx, domain)
		metrics.ObserveDNSLookup(out.Note)
		return out, nil
	})
	if err != nil {
		// resolveUncached never errors; this guards the cache contract only.
		return nil, NoteNoMX
	}
	return res.Hosts, res.Note
}

func (r *Resolver) resolveUncached(ctx context.Context, domain string) MXResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	records, err := r.lookup.LookupMX(ctx, domain)
	if err == nil && len(records) > 0 {
		sort.SliceStable(records, func(i, j int) bool { return records[i].Pref < records[j].Pref })
		hosts := make([]string, 0, len(records))
		for _, rec := range records {
			host := strings.TrimSuffix(rec.Host, ".")
			if host != "" {
				hosts = append(hosts, host)
			}
		}
		if len(hosts) > 0 {
			return MXResult{Hosts: hosts, Note: NoteMXOK}
		}
	}

	// Some domains accept mail on a bare A record.
	if addrs, aerr := r.lookup.LookupHost(ctx, domain); aerr == nil && len(addrs) > 0 {
		r.logger.Debug("mx fallback to A record", zap.String("domain", domain))
		return MXResult{Hosts: []string{domain}, Note: NoteMXFallbackA}
	}

	r.logger.Debug("no mx for domain", zap.String("domain", domain), zap.Error(err))
	return MXResult{Note: NoteNoMX}
}
