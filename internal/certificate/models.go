package certificate

import (
	"crypto/x509/pkix"
	"encoding/json"
	"strings"
	"time"
)

// ErrorType classifies why a check did not produce a certificate.
type ErrorType string

const (
	// Unauthorized means the handshake completed but the certificate failed verification.
	Unauthorized ErrorType = "unauthorized"
	// Rejected means the connection or handshake itself failed.
	Rejected ErrorType = "rejected"
)

// WarningDays is the number of days before expiry at which a certificate
// counts as expiring soon.
const WarningDays = 7

// Name is a distinguished name keyed by short attribute names (CN, O, C, ...).
type Name map[string]string

func nameFrom(n pkix.Name) Name {
	out := Name{}
	add := func(key string, values []string) {
		if len(values) > 0 {
			out[key] = strings.Join(values, ", ")
		}
	}
	add("C", n.Country)
	add("ST", n.Province)
	add("L", n.Locality)
	add("O", n.Organization)
	add("OU", n.OrganizationalUnit)
	if n.CommonName != "" {
		out["CN"] = n.CommonName
	}
	return out
}

// Certificate is the peer certificate of a completed, authorized handshake.
type Certificate struct {
	Domain    string    `json:"domain"`
	Subject   Name      `json:"subject"`
	Issuer    Name      `json:"issuer"`
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// HasExpired reports whether ValidTo is already in the past.
func (c Certificate) HasExpired() bool {
	return c.HasExpiredAt(time.Now())
}

// HasExpiredAt reports whether ValidTo is strictly before now.
func (c Certificate) HasExpiredAt(now time.Time) bool {
	return !c.ValidTo.IsZero() && c.ValidTo.Before(now)
}

// DaysToExpire returns the whole days left until ValidTo, negative once expired.
func (c Certificate) DaysToExpire() int {
	return c.DaysToExpireAt(time.Now())
}

// DaysToExpireAt is DaysToExpire evaluated at now. Partial days are truncated toward zero.
func (c Certificate) DaysToExpireAt(now time.Time) int {
	// whole seconds, since Sub saturates for certificates valid past year 2262
	return int((c.ValidTo.Unix() - now.Unix()) / 86400)
}

// ErrorResult describes a check that failed to connect or to verify.
type ErrorResult struct {
	Domain    string    `json:"domain"`
	ErrorType ErrorType `json:"error_type"`
	ErrorCode string    `json:"error_code"`
	Msg       string    `json:"msg"`
}

// NewErrorResult builds an ErrorResult with its message translated from type and code.
func NewErrorResult(domain string, errorType ErrorType, errorCode string) ErrorResult {
	return ErrorResult{
		Domain:    domain,
		ErrorType: errorType,
		ErrorCode: errorCode,
		Msg:       Translate(errorType, errorCode),
	}
}

// Result holds exactly one of a Certificate or an ErrorResult.
type Result struct {
	cert    *Certificate
	failure *ErrorResult
}

// CertificateResult wraps a successful check.
func CertificateResult(c Certificate) Result {
	return Result{cert: &c}
}

// FailureResult wraps a failed check.
func FailureResult(e ErrorResult) Result {
	return Result{failure: &e}
}

// Domain returns the checked domain whichever variant is held.
func (r Result) Domain() string {
	if r.cert != nil {
		return r.cert.Domain
	}
	if r.failure != nil {
		return r.failure.Domain
	}
	return ""
}

// Certificate returns the certificate variant.
func (r Result) Certificate() (Certificate, bool) {
	if r.cert == nil {
		return Certificate{}, false
	}
	return *r.cert, true
}

// Failure returns the error variant.
func (r Result) Failure() (ErrorResult, bool) {
	if r.failure == nil {
		return ErrorResult{}, false
	}
	return *r.failure, true
}

// Match calls exactly one of the handlers depending on the variant held.
func (r Result) Match(onCertificate func(Certificate), onFailure func(ErrorResult)) {
	switch {
	case r.cert != nil:
		onCertificate(*r.cert)
	case r.failure != nil:
		onFailure(*r.failure)
	default:
		panic("certificate: empty Result")
	}
}

// MarshalJSON renders the held variant tagged with its kind.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.cert == nil && r.failure == nil {
		return []byte("null"), nil
	}
	var v any
	r.Match(func(c Certificate) {
		v = struct {
			Kind string `json:"kind"`
			Certificate
		}{"certificate", c}
	}, func(e ErrorResult) {
		v = struct {
			Kind string `json:"kind"`
			ErrorResult
		}{"error", e}
	})
	return json.Marshal(v)
}
