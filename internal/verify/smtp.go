package verify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/outreachkit/prospector/internal/metrics"
)

// Probe note tags. Hard-reject detection scans the diagnostic trail for
// rcpt_550/rcpt_551, so RCPT notes must carry the reply code verbatim.
const (
	NoteRcptAccepted = "rcpt_250"
	NoteTimeout      = "timeout"
	NoteConnectFail  = "connect_fail"
	NoteHeloError    = "helo_error"
	NoteSMTPError    = "smtp_error"
)

// softTempCodes are SMTP reply codes treated as retryable deferrals.
var softTempCodes = map[int]struct{}{421: {}, 450: {}, 451: {}, 452: {}}

// softTempText marks greylisting-style deferrals that hide behind 5xx or
// nonstandard codes.
var softTempText = []string{
	"temporarily deferred", "try again later", "greylist", "rate limit", "temporarily unavailable",
}

// DialFunc dials a TCP connection; injectable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ProbeResult is the outcome of one RCPT conversation against one MX host.
type ProbeResult struct {
	Accepted bool
	Note     string
	TempFail bool
}

// Probe performs a single SMTP mailbox check: connect, EHLO (HELO
// fallback), opportunistic STARTTLS, MAIL FROM, RCPT TO, QUIT. The whole
// conversation shares one deadline. No message data is ever sent.
type Probe struct {
	HeloDomain string
	MailFrom   string
	Port       int
	Timeout    time.Duration
	Dial       DialFunc
	Logger     *zap.Logger
}

// NewProbe builds a probe with the given HELO identity. An empty helo
// falls back to the host FQDN or a neutral placeholder.
func NewProbe(helo string, timeout time.Duration, logger *zap.Logger) *Probe {
	if helo == "" {
		helo = defaultHeloDomain()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		HeloDomain: helo,
		MailFrom:   "probe@" + helo,
		Port:       25,
		Timeout:    timeout,
		Logger:     logger,
	}
}

// Check runs the probe conversation for rcpt against mxHost.
func (p *Probe) Check(ctx context.Context, mxHost, rcpt string) ProbeResult {
	metrics.IncSMTPProbes()
	defer metrics.DecSMTPProbes()

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dial := p.Dial
	if dial == nil {
		dialer := &net.Dialer{Timeout: timeout}
		dial = dialer.DialContext
	}
	port := p.Port
	if port == 0 {
		port = 25
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(dialCtx, "tcp", net.JoinHostPort(mxHost, strconv.Itoa(port)))
	if err != nil {
		return ProbeResult{Note: classifyDialError(err), TempFail: true}
	}
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, mxHost)
	if err != nil {
		_ = conn.Close()
		return ProbeResult{Note: classifyConversationError(err), TempFail: true}
	}
	defer p.quit(client)

	// net/smtp Hello sends EHLO and retries with HELO on rejection.
	if err := client.Hello(p.HeloDomain); err != nil {
		return ProbeResult{Note: NoteHeloError}
	}

	// Opportunistic STARTTLS; failures are swallowed and the probe
	// continues in the clear where the server allows it.
	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: mxHost}); err != nil {
			p.Logger.Debug("starttls failed", zap.String("mx", mxHost), zap.Error(err))
		}
	}

	from := p.MailFrom
	if from == "" {
		from = "probe@" + p.HeloDomain
	}
	if err := client.Mail(from); err != nil {
		code, _ := smtpReply(err)
		if code == 0 {
			return ProbeResult{Note: classifyConversationError(err), TempFail: true}
		}
		_, soft := softTempCodes[code]
		return ProbeResult{Note: fmt.Sprintf("mailfrom_%d", code), TempFail: soft}
	}

	err = client.Rcpt(rcpt)
	if err == nil {
		return ProbeResult{Accepted: true, Note: NoteRcptAccepted}
	}
	code, msg := smtpReply(err)
	if code == 0 {
		return ProbeResult{Note: classifyConversationError(err), TempFail: true}
	}
	_, soft := softTempCodes[code]
	return ProbeResult{
		Accepted: code == 250 || code == 251,
		Note:     fmt.Sprintf("rcpt_%d", code),
		TempFail: soft || containsSoftTempText(msg),
	}
}

// quit attempts a clean QUIT and falls back to closing the socket.
func (p *Probe) quit(client *smtp.Client) {
	if err := client.Quit(); err != nil {
		_ = client.Close()
	}
}

func smtpReply(err error) (int, string) {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code, protoErr.Msg
	}
	return 0, ""
}

func containsSoftTempText(msg string) bool {
	lower := strings.ToLower(msg)
	for _, hint := range softTempText {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

func classifyDialError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NoteTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NoteTimeout
	}
	return NoteConnectFail
}

func classifyConversationError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NoteTimeout
	}
	return NoteSMTPError
}

// defaultHeloDomain picks an identity for EHLO. A fully-qualified host
// name wins; otherwise a neutral reserved name keeps us honest without
// leaking a LAN hostname.
func defaultHeloDomain() string {
	host, err := os.Hostname()
	if err == nil && strings.Contains(host, ".") && !looksLocalHostname(host) {
		return host
	}
	return "verifier.invalid"
}

func looksLocalHostname(host string) bool {
	lower := strings.ToLower(host)
	for _, marker := range []string{"local", "desktop-", "laptop-", "internal"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
