package verify

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/outreachkit/prospector/internal/cache"
	"github.com/outreachkit/prospector/internal/metrics"
	"github.com/outreachkit/prospector/internal/retry"
)

// Verification statuses. Status is a deterministic function of the
// quality band and the diagnostic trail.
const (
	StatusInvalid       = "invalid"
	StatusNoMX          = "no_mx"
	StatusDeliverable   = "deliverable"
	StatusCatchAll      = "catchall_suspected"
	StatusRejected      = "rejected"
	StatusTempFail      = "temporary_fail_retry"
	StatusNeutral       = "unverifiable_provider_neutral"
	StatusDomainOK      = "domain_ok"
	StatusDomainHighRep = "domain_ok_highrep"
	StatusError         = "error"
)

// Quality thresholds. Deliverable is the strict SMTP-backed boundary;
// Advisory is the looser CRM-facing one. Some call sites intentionally
// use one, some the other; they are distinct on purpose.
const (
	QualityDeliverableMin = 85
	QualityAdvisoryMin    = 70
)

const (
	maxMXHostsPerCheck = 3
	maxCatchAllMX      = 2
	maxNotesRetained   = 8
)

// highRepDomains are consumer inbox providers that get a reputation bump
// in simple mode.
var highRepDomains = map[string]struct{}{
	"gmail.com": {}, "googlemail.com": {},
	"outlook.com": {}, "hotmail.com": {}, "live.com": {}, "msn.com": {},
	"yahoo.com": {}, "ymail.com": {}, "rocketmail.com": {},
	"icloud.com": {}, "me.com": {}, "mac.com": {},
	"proton.me": {}, "protonmail.com": {}, "aol.com": {}, "zoho.com": {},
}

// guardedHints are hosted-MX signatures whose gateways accept or defer
// everything; a probe against them says nothing about the mailbox.
var guardedHints = []string{
	"aspmx", ".l.google.com", "googlemail.com",
	".protection.outlook.com", "yahoodns.net",
	"mimecast.com", "stackmail.com", "ionos.co.uk", "gandi.net",
}

// Result is a structured verification outcome for one address.
type Result struct {
	Email   string `json:"email"`
	Valid   bool   `json:"valid"`
	Quality int    `json:"quality"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

// Options configures a Verifier.
type Options struct {
	// EnableSMTP switches between simple (MX-presence) and full SMTP
	// verification.
	EnableSMTP bool
	// Quick limits SMTP verification to one attempt per MX host and
	// skips the catch-all probe.
	Quick bool
	// Workers bounds VerifyBulk fan-out.
	Workers int
	// HeloDomain overrides the probe EHLO identity.
	HeloDomain string
	// ProbeTimeout bounds each SMTP conversation.
	ProbeTimeout time.Duration
}

// prober abstracts the SMTP conversation for tests.
type prober interface {
	Check(ctx context.Context, mxHost, rcpt string) ProbeResult
}

// Verifier scores email deliverability. Results are cached per normalized
// address for the verifier's lifetime.
type Verifier struct {
	resolver *Resolver
	probe    prober
	backoff  *retry.Policy
	results  *cache.Cache[Result]
	opts     Options
	logger   *zap.Logger

	// sleep is swapped out in tests to keep tempfail retries fast.
	sleep func(ctx context.Context, attempt int) error
}

// NewVerifier builds a verifier with the system resolver and a live probe.
func NewVerifier(opts Options, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newVerifier(NewResolver(logger), NewProbe(opts.HeloDomain, opts.ProbeTimeout, logger), opts, logger)
}

func newVerifier(resolver *Resolver, probe prober, opts Options, logger *zap.Logger) *Verifier {
	if opts.Workers <= 0 {
		opts.Workers = 25
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	backoff := retry.NewPolicyWith(3, 400*time.Millisecond, 2*time.Second)
	return &Verifier{
		resolver: resolver,
		probe:    probe,
		backoff:  backoff,
		results:  cache.New[Result](),
		opts:     opts,
		logger:   logger,
		sleep:    backoff.Sleep,
	}
}

// Verify normalizes and verifies a single address in the configured mode.
func (v *Verifier) Verify(ctx context.Context, raw string) Result {
	normalized := NormalizeEmail(raw)
	if normalized == "" {
		return Result{Email: raw, Status: StatusInvalid, Notes: "empty_email"}
	}
	res, err := v.results.GetOrCompute(ctx, normalized, func(ctx context.Context) (Result, error) {
		if v.opts.EnableSMTP {
			return v.verifySMTP(ctx, normalized), nil
		}
		return v.verifySimple(ctx, normalized), nil
	})
	if err != nil {
		return Result{Email: normalized, Status: StatusError, Notes: err.Error()}
	}
	metrics.ObserveVerification(res.Status)
	return res
}

// VerifyBulk fans verification out across a bounded worker pool and
// returns one result per input, in no particular order. Per-address
// failures are captured in the result, never propagated.
func (v *Verifier) VerifyBulk(ctx context.Context, addresses []string) []Result {
	results := make([]Result, len(addresses))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)
	for i, addr := range addresses {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					v.logger.Error("verification panic", zap.String("email", addr), zap.Any("panic", r))
					results[i] = Result{Email: addr, Status: StatusError, Notes: fmt.Sprint(r)}
				}
			}()
			results[i] = v.Verify(ctx, addr)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// verifySimple scores on MX presence alone: 70 baseline, 80 for
// high-reputation consumer providers, 30 when no MX resolves.
func (v *Verifier) verifySimple(ctx context.Context, email string) Result {
	if !IsPlausible(email) {
		return Result{Email: email, Status: StatusInvalid, Notes: "format_or_asset"}
	}
	domain := Domain(email)
	hosts, note := v.resolver.Resolve(ctx, domain)
	if len(hosts) == 0 {
		return Result{Email: email, Quality: 30, Status: StatusNoMX, Notes: note}
	}
	quality, status := 70, StatusDomainOK
	if _, ok := highRepDomains[domain]; ok {
		quality, status = 80, StatusDomainHighRep
	}
	shown := hosts
	if len(shown) > maxMXHostsPerCheck {
		shown = shown[:maxMXHostsPerCheck]
	}
	return Result{
		Email:   email,
		Valid:   quality >= QualityDeliverableMin,
		Quality: quality,
		Status:  status,
		Notes:   "mx=" + strings.Join(shown, ","),
	}
}

func (v *Verifier) verifySMTP(ctx context.Context, email string) Result {
	if !IsPlausible(email) {
		return Result{Email: email, Status: StatusInvalid, Notes: "format_or_asset"}
	}
	domain := Domain(email)
	if domain == "" {
		return Result{Email: email, Status: StatusInvalid, Notes: "no_domain"}
	}

	hosts, mxNote := v.resolver.Resolve(ctx, domain)
	if len(hosts) == 0 {
		return Result{Email: email, Quality: 30, Status: StatusNoMX, Notes: mxNote}
	}

	accepted := false
	tempSeen := false
	notes := []string{mxNote}

	attempts := 3
	if v.opts.Quick {
		attempts = 1
	}
	candidates := hosts
	if len(candidates) > maxMXHostsPerCheck {
		candidates = candidates[:maxMXHostsPerCheck]
	}

hostLoop:
	for _, mx := range candidates {
		for attempt := 0; attempt < attempts; attempt++ {
			res := v.probe.Check(ctx, mx, email)
			notes = append(notes, mx+":"+res.Note)
			tempSeen = tempSeen || res.TempFail
			if res.Accepted {
				accepted = true
				break hostLoop
			}
			if !v.opts.Quick && res.TempFail && attempt+1 < attempts {
				if err := v.sleep(ctx, attempt); err != nil {
					break hostLoop
				}
				continue
			}
			break
		}
	}

	catchall := false
	if accepted && !v.opts.Quick {
		probeAddr := fmt.Sprintf("catchall_probe_%d@%s", rand.Intn(900000)+100000, domain)
		probeMX := candidates
		if len(probeMX) > maxCatchAllMX {
			probeMX = probeMX[:maxCatchAllMX]
		}
		for _, mx := range probeMX {
			res := v.probe.Check(ctx, mx, probeAddr)
			notes = append(notes, "probe:"+res.Note)
			if res.Accepted && !res.TempFail {
				catchall = true
				break
			}
		}
	}

	// Classification must see the whole trail: a hard reject can land
	// late, after several tempfail retries. Only the stored Notes string
	// is capped.
	quality, status := classify(accepted, catchall, tempSeen, v.opts.Quick, notes, strings.Join(notes, "; "))
	stored := notes
	if len(stored) > maxNotesRetained {
		stored = stored[:maxNotesRetained]
	}
	return Result{
		Email:   email,
		Valid:   quality >= QualityDeliverableMin,
		Quality: quality,
		Status:  status,
		Notes:   strings.Join(stored, "; "),
	}
}

// classify maps the probe trail onto the quality/status table.
func classify(accepted, catchall, tempSeen, quick bool, notes []string, joined string) (int, string) {
	switch {
	case accepted && !catchall:
		if quick {
			return 85, StatusDeliverable
		}
		return 90, StatusDeliverable
	case accepted && catchall:
		return 75, StatusCatchAll
	}
	for _, n := range notes {
		if strings.Contains(n, "rcpt_550") || strings.Contains(n, "rcpt_551") {
			return 40, StatusRejected
		}
	}
	if tempSeen || providerIsGuarded(joined) {
		return 70, StatusTempFail
	}
	if strings.Contains(joined, NoteNoMX) {
		return 30, StatusNoMX
	}
	return 55, StatusNeutral
}

func providerIsGuarded(mxJoined string) bool {
	lower := strings.ToLower(mxJoined)
	for _, hint := range guardedHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
