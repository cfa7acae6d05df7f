package verify

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProber scripts probe outcomes per MX host, with a separate outcome
// for catch-all probe addresses.
type fakeProber struct {
	mu       sync.Mutex
	byHost   map[string]ProbeResult
	catchAll *ProbeResult
	calls    []string
}

func (f *fakeProber) Check(_ context.Context, mxHost, rcpt string) ProbeResult {
	f.mu.Lock()
	f.calls = append(f.calls, mxHost+"/"+rcpt)
	f.mu.Unlock()
	if strings.HasPrefix(rcpt, "catchall_probe_") && f.catchAll != nil {
		return *f.catchAll
	}
	if res, ok := f.byHost[mxHost]; ok {
		return res
	}
	return ProbeResult{Note: NoteSMTPError, TempFail: true}
}

func (f *fakeProber) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeProber) sawCatchAllProbe() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if strings.Contains(c, "catchall_probe_") {
			return true
		}
	}
	return false
}

func mxLookup(domain string, hosts ...string) *fakeLookup {
	recs := make([]*net.MX, len(hosts))
	for i, h := range hosts {
		recs[i] = &net.MX{Host: h + ".", Pref: uint16(10 * (i + 1))}
	}
	return &fakeLookup{mx: map[string][]*net.MX{domain: recs}}
}

func testVerifier(lookup *fakeLookup, probe prober, opts Options) *Verifier {
	opts.EnableSMTP = true
	v := newVerifier(newResolver(lookup, nil), probe, opts, nil)
	v.sleep = func(context.Context, int) error { return nil }
	return v
}

func TestVerifyDeliverableThorough(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{
		byHost:   map[string]ProbeResult{"mx1.example.com": {Accepted: true, Note: NoteRcptAccepted}},
		catchAll: &ProbeResult{Note: "rcpt_550"},
	}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{})

	res := v.Verify(context.Background(), "User@Example.com")
	require.Equal(t, "user@example.com", res.Email)
	require.Equal(t, 90, res.Quality)
	require.Equal(t, StatusDeliverable, res.Status)
	require.True(t, res.Valid)
	require.Contains(t, res.Notes, "mx_ok")
	require.Contains(t, res.Notes, "mx1.example.com:rcpt_250")
	require.Contains(t, res.Notes, "probe:rcpt_550")
}

func TestVerifyQuickSkipsCatchAllProbe(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{
		byHost:   map[string]ProbeResult{"mx1.example.com": {Accepted: true, Note: NoteRcptAccepted}},
		catchAll: &ProbeResult{Accepted: true, Note: NoteRcptAccepted},
	}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{Quick: true})

	res := v.Verify(context.Background(), "user@example.com")
	require.Equal(t, 85, res.Quality)
	require.Equal(t, StatusDeliverable, res.Status)
	require.False(t, probe.sawCatchAllProbe())
}

func TestVerifyCatchAllSuspected(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{
		byHost:   map[string]ProbeResult{"mx1.example.com": {Accepted: true, Note: NoteRcptAccepted}},
		catchAll: &ProbeResult{Accepted: true, Note: NoteRcptAccepted},
	}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{})

	res := v.Verify(context.Background(), "user@example.com")
	require.Equal(t, 75, res.Quality)
	require.Equal(t, StatusCatchAll, res.Status)
	require.False(t, res.Valid)
	require.True(t, probe.sawCatchAllProbe())
}

func TestVerifyHardReject(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"mx1.example.com": {Note: "rcpt_550"},
	}}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{})

	res := v.Verify(context.Background(), "ghost@example.com")
	require.Equal(t, 40, res.Quality)
	require.Equal(t, StatusRejected, res.Status)
	require.False(t, res.Valid)
}

// lateRejectProber tempfails until rejectAfter calls have been made,
// then hard-rejects.
type lateRejectProber struct {
	mu          sync.Mutex
	rejectAfter int
	calls       int
}

func (p *lateRejectProber) Check(_ context.Context, _, _ string) ProbeResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls > p.rejectAfter {
		return ProbeResult{Note: "rcpt_550"}
	}
	return ProbeResult{Note: "rcpt_451", TempFail: true}
}

func TestVerifyLateHardRejectAfterRetries(t *testing.T) {
	t.Parallel()

	// Two tempfailing MX hosts plus a third that rejects only on its
	// final retry push the reject past the stored-notes cap. The reject
	// must still win over the earlier tempfails.
	probe := &lateRejectProber{rejectAfter: 8}
	lookup := mxLookup("example.com", "mx1.example.com", "mx2.example.com", "mx3.example.com")
	v := testVerifier(lookup, probe, Options{})

	res := v.Verify(context.Background(), "ghost@example.com")
	require.Equal(t, 40, res.Quality)
	require.Equal(t, StatusRejected, res.Status)
	require.False(t, res.Valid)

	// Stored notes stay capped even though classification saw the tail.
	require.Len(t, strings.Split(res.Notes, "; "), maxNotesRetained)
	require.NotContains(t, res.Notes, "rcpt_550")
}

func TestVerifyTempFailRetries(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"mx1.example.com": {Note: "rcpt_451", TempFail: true},
	}}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{})

	res := v.Verify(context.Background(), "user@example.com")
	require.Equal(t, 70, res.Quality)
	require.Equal(t, StatusTempFail, res.Status)
	require.Equal(t, 3, probe.callCount())
}

func TestVerifyGuardedProviderNeutralizedToTempFail(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"aspmx.l.google.com": {Note: "rcpt_554"},
	}}
	v := testVerifier(mxLookup("example.com", "aspmx.l.google.com"), probe, Options{})

	res := v.Verify(context.Background(), "user@example.com")
	require.Equal(t, 70, res.Quality)
	require.Equal(t, StatusTempFail, res.Status)
}

func TestVerifyNeutralOtherwise(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"mail.example.com": {Note: "rcpt_554"},
	}}
	v := testVerifier(mxLookup("example.com", "mail.example.com"), probe, Options{})

	res := v.Verify(context.Background(), "user@example.com")
	require.Equal(t, 55, res.Quality)
	require.Equal(t, StatusNeutral, res.Status)
}

func TestVerifyNoMX(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeLookup{}, &fakeProber{}, Options{})
	res := v.Verify(context.Background(), "user@dead.invalid")
	require.Equal(t, 30, res.Quality)
	require.Equal(t, StatusNoMX, res.Status)
}

func TestVerifyInvalidInputs(t *testing.T) {
	t.Parallel()

	v := testVerifier(&fakeLookup{}, &fakeProber{}, Options{})

	res := v.Verify(context.Background(), "   ")
	require.Equal(t, StatusInvalid, res.Status)
	require.Equal(t, 0, res.Quality)

	res = v.Verify(context.Background(), "globe@2x.webp")
	require.Equal(t, StatusInvalid, res.Status)
}

func TestVerifyQualityDeliverableInvariant(t *testing.T) {
	t.Parallel()

	// Every classification outcome must satisfy q >= 85 <=> deliverable.
	outcomes := []struct {
		accepted, catchall, tempSeen, quick bool
		notes                               []string
	}{
		{accepted: true},
		{accepted: true, quick: true},
		{accepted: true, catchall: true},
		{tempSeen: true},
		{notes: []string{"mx:rcpt_550"}},
		{notes: []string{"mx:rcpt_554"}},
	}
	for _, o := range outcomes {
		q, s := classify(o.accepted, o.catchall, o.tempSeen, o.quick, o.notes, strings.Join(o.notes, "; "))
		require.GreaterOrEqual(t, q, 0)
		require.LessOrEqual(t, q, 100)
		require.Equal(t, q >= QualityDeliverableMin, s == StatusDeliverable)
	}
}

func TestVerifyCachesPerAddress(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"mx1.example.com": {Accepted: true, Note: NoteRcptAccepted},
	}}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{Quick: true})

	first := v.Verify(context.Background(), "user@example.com")
	calls := probe.callCount()
	second := v.Verify(context.Background(), "USER@example.com")
	require.Equal(t, first, second)
	require.Equal(t, calls, probe.callCount())
}

func TestVerifySimpleMode(t *testing.T) {
	t.Parallel()

	lookup := &fakeLookup{mx: map[string][]*net.MX{
		"gmail.com":   {{Host: "gmail-smtp-in.l.google.com.", Pref: 5}},
		"example.com": {{Host: "mx.example.com.", Pref: 10}},
	}}
	v := newVerifier(newResolver(lookup, nil), &fakeProber{}, Options{}, nil)

	res := v.Verify(context.Background(), "someone@gmail.com")
	require.Equal(t, 80, res.Quality)
	require.Equal(t, StatusDomainHighRep, res.Status)

	res = v.Verify(context.Background(), "someone@example.com")
	require.Equal(t, 70, res.Quality)
	require.Equal(t, StatusDomainOK, res.Status)
	require.Contains(t, res.Notes, "mx=mx.example.com")

	res = v.Verify(context.Background(), "someone@dead.invalid")
	require.Equal(t, 30, res.Quality)
	require.Equal(t, StatusNoMX, res.Status)
}

func TestVerifyBulkReturnsOneResultPerInput(t *testing.T) {
	t.Parallel()

	probe := &fakeProber{byHost: map[string]ProbeResult{
		"mx1.example.com": {Accepted: true, Note: NoteRcptAccepted},
	}}
	v := testVerifier(mxLookup("example.com", "mx1.example.com"), probe, Options{Quick: true, Workers: 4})

	inputs := []string{"a@example.com", "b@example.com", "not-an-email", "c@dead.invalid"}
	results := v.VerifyBulk(context.Background(), inputs)
	require.Len(t, results, len(inputs))

	byEmail := map[string]Result{}
	for _, r := range results {
		byEmail[r.Email] = r
	}
	require.Equal(t, StatusDeliverable, byEmail["a@example.com"].Status)
	require.Equal(t, StatusDeliverable, byEmail["b@example.com"].Status)
	require.Equal(t, StatusInvalid, byEmail["not-an-email"].Status)
	require.Equal(t, StatusNoMX, byEmail["c@dead.invalid"].Status)
}
