package certificate

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// Connection error codes use the errno names operators already know from
// other TLS tooling.
const (
	codeNotFound      = "ENOTFOUND"
	codeDNSAgain      = "EAI_AGAIN"
	codeProto         = "EPROTO"
	codeTimedOut      = "ETIMEDOUT"
	codeAborted       = "ECONNABORTED"
	codeReset         = "ECONNRESET"
	codeUnknownConn   = "UNKNOWN"
	codeUnspecified   = "UNSPECIFIED"
	codeSelfSigned    = "DEPTH_ZERO_SELF_SIGNED_CERT"
	codeSelfInChain   = "SELF_SIGNED_CERT_IN_CHAIN"
	codeLeafUnverify  = "UNABLE_TO_VERIFY_LEAF_SIGNATURE"
	codeNoLocalIssuer = "UNABLE_TO_GET_ISSUER_CERT_LOCALLY"
)

var errnoCodes = []struct {
	errno syscall.Errno
	code  string
}{
	{syscall.ECONNREFUSED, "ECONNREFUSED"},
	{syscall.ECONNRESET, "ECONNRESET"},
	{syscall.EHOSTUNREACH, "EHOSTUNREACH"},
	{syscall.ENETUNREACH, "ENETUNREACH"},
	{syscall.EPIPE, "EPIPE"},
}

// dialErrorCode classifies a failure to open the TCP connection.
func dialErrorCode(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTemporary && !dnsErr.IsNotFound {
			return codeDNSAgain
		}
		return codeNotFound
	}
	if code, ok := commonErrorCode(err); ok {
		return code
	}
	return codeUnknownConn
}

// handshakeErrorCode classifies a failure after the TCP connection was open.
// Anything that is not a transport fault is a protocol negotiation failure.
func handshakeErrorCode(err error) string {
	if code, ok := commonErrorCode(err); ok {
		return code
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return codeReset
	}
	return codeProto
}

func commonErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, context.Canceled):
		return codeAborted, true
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimedOut, true
	}
	for _, e := range errnoCodes {
		if errors.Is(err, e.errno) {
			return e.code, true
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return codeTimedOut, true
	}
	return "", false
}

// verificationErrorCode maps an x509 verification error onto the OpenSSL code
// vocabulary understood by Translate.
func verificationErrorCode(err error, chain []*x509.Certificate, host string, now time.Time) string {
	var (
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
		authErr     x509.UnknownAuthorityError
		rootsErr    x509.SystemRootsError
		criticalErr x509.UnhandledCriticalExtension
		usageErr    x509.ConstraintViolationError
		algErr      x509.InsecureAlgorithmError
	)
	switch {
	case errors.As(err, &hostErr):
		if net.ParseIP(host) != nil {
			return "IP_ADDRESS_MISMATCH"
		}
		return "HOSTNAME_MISMATCH"
	case errors.As(err, &invalidErr):
		return invalidReasonCode(invalidErr, now)
	case errors.As(err, &authErr):
		return unknownAuthorityCode(chain)
	case errors.As(err, &rootsErr):
		return codeNoLocalIssuer
	case errors.As(err, &criticalErr):
		return "UNHANDLED_CRITICAL_EXTENSION"
	case errors.As(err, &usageErr):
		return "KEYUSAGE_NO_CERTSIGN"
	case errors.As(err, &algErr):
		return "CA_MD_TOO_WEAK"
	case errors.Is(err, x509.ErrUnsupportedAlgorithm):
		return "CERT_SIGNATURE_FAILURE"
	}
	return codeUnspecified
}

func invalidReasonCode(err x509.CertificateInvalidError, now time.Time) string {
	switch err.Reason {
	case x509.Expired:
		if err.Cert != nil && now.Before(err.Cert.NotBefore) {
			return "CERT_NOT_YET_VALID"
		}
		return "CERT_HAS_EXPIRED"
	case x509.NotAuthorizedToSign:
		return "INVALID_CA"
	case x509.TooManyIntermediates:
		return "PATH_LENGTH_EXCEEDED"
	case x509.IncompatibleUsage, x509.CANotAuthorizedForExtKeyUsage:
		return "INVALID_PURPOSE"
	case x509.NameMismatch:
		return "SUBJECT_ISSUER_MISMATCH"
	case x509.CANotAuthorizedForThisName:
		return "PERMITTED_VIOLATION"
	case x509.UnconstrainedName:
		return "UNSUPPORTED_CONSTRAINT_TYPE"
	case x509.TooManyConstraints:
		return "UNSUPPORTED_CONSTRAINT_SYNTAX"
	case x509.NameConstraintsWithoutSANs:
		return "UNSUPPORTED_NAME_SYNTAX"
	}
	return codeUnspecified
}

func unknownAuthorityCode(chain []*x509.Certificate) string {
	if len(chain) == 0 {
		return codeNoLocalIssuer
	}
	if len(chain) == 1 {
		if isSelfSigned(chain[0]) {
			return codeSelfSigned
		}
		return codeLeafUnverify
	}
	for _, c := range chain[1:] {
		if isSelfSigned(c) {
			return codeSelfInChain
		}
	}
	return codeNoLocalIssuer
}

func isSelfSigned(c *x509.Certificate) bool {
	if !bytes.Equal(c.RawSubject, c.RawIssuer) {
		return false
	}
	return c.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature) == nil
}
