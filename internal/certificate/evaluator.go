package certificate

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultPort is the port checked when none is configured.
const DefaultPort = "443"

// ContextDialer opens the raw connection the handshake runs over.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Evaluator performs a single TLS handshake against a domain and reports on
// the certificate it was offered.
//
// Trust is never enforced during the handshake itself. The peer chain is
// verified afterwards so that untrusted, expired or mismatched certificates
// are reported rather than refused.
type Evaluator struct {
	port   string
	dialer ContextDialer
	roots  *x509.CertPool
	clock  clockwork.Clock
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPort overrides the TLS port.
func WithPort(port string) Option {
	return func(e *Evaluator) { e.port = port }
}

// WithDialer overrides how the TCP connection is opened.
func WithDialer(d ContextDialer) Option {
	return func(e *Evaluator) { e.dialer = d }
}

// WithRoots verifies against the given pool instead of the system roots.
func WithRoots(pool *x509.CertPool) Option {
	return func(e *Evaluator) { e.roots = pool }
}

// WithClock sets the clock that supplies the verification instant.
func WithClock(c clockwork.Clock) Option {
	return func(e *Evaluator) { e.clock = c }
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		port:   DefaultPort,
		dialer: &net.Dialer{},
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks domain and returns either its certificate or the reason it
// could not be obtained or trusted. Network and verification failures are
// reported in the Result and never as errors. The connection is closed
// before Evaluate returns.
func (e *Evaluator) Evaluate(ctx context.Context, domain string) Result {
	addr := net.JoinHostPort(domain, e.port)

	raw, err := e.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		slog.Debug("dial failed", "domain", domain, "err", err)
		return FailureResult(NewErrorResult(domain, Rejected, dialErrorCode(err)))
	}
	conn := tls.Client(raw, &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         serverName(domain),
	})
	defer func() {
		if err := conn.Close(); err != nil {
			slog.Debug("failed to close tls connection", "domain", domain, "err", err)
		}
	}()

	if err := conn.HandshakeContext(ctx); err != nil {
		slog.Debug("handshake failed", "domain", domain, "err", err)
		return FailureResult(NewErrorResult(domain, Rejected, handshakeErrorCode(err)))
	}

	chain := conn.ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return FailureResult(NewErrorResult(domain, Unauthorized, codeUnspecified))
	}

	now := e.clock.Now()
	if err := e.verify(chain, domain, now); err != nil {
		slog.Debug("certificate not authorized", "domain", domain, "err", err)
		return FailureResult(NewErrorResult(domain, Unauthorized, verificationErrorCode(err, chain, domain, now)))
	}

	leaf := chain[0]
	return CertificateResult(Certificate{
		Domain:    domain,
		Subject:   nameFrom(leaf.Subject),
		Issuer:    nameFrom(leaf.Issuer),
		ValidFrom: leaf.NotBefore,
		ValidTo:   leaf.NotAfter,
	})
}

func (e *Evaluator) verify(chain []*x509.Certificate, domain string, now time.Time) error {
	opts := x509.VerifyOptions{
		DNSName:       domain,
		Roots:         e.roots,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   now,
	}
	for _, ic := range chain[1:] {
		opts.Intermediates.AddCert(ic)
	}
	_, err := chain[0].Verify(opts)
	return err
}

// serverName omits SNI for IP literals.
func serverName(domain string) string {
	if net.ParseIP(domain) != nil {
		return ""
	}
	return domain
}
