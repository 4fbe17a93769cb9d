package certificate

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testCert struct {
	cert *x509.Certificate
	key  crypto.Signer
}

var serialNumber int64 = 1

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func sign(t *testing.T, template *x509.Certificate, key crypto.Signer, parent *testCert) testCert {
	t.Helper()
	serialNumber++
	template.SerialNumber = big.NewInt(serialNumber)

	parentCert, parentKey := template, key
	if parent != nil {
		parentCert, parentKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parentCert, key.Public(), parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return testCert{cert: cert, key: key}
}

// newCA creates a self-signed root.
func newCA(t *testing.T, name string, notBefore, notAfter time.Time) testCert {
	t.Helper()
	return sign(t, &x509.Certificate{
		Subject:               pkix.Name{CommonName: name, Organization: []string{"Certcheck Test"}, Country: []string{"GB"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}, newKey(t), nil)
}

// newLeaf creates a server certificate for dnsNames, self-signed when parent is nil.
func newLeaf(t *testing.T, parent *testCert, notBefore, notAfter time.Time, dnsNames ...string) testCert {
	t.Helper()
	cn := "leaf"
	if len(dnsNames) > 0 {
		cn = dnsNames[0]
	}
	return sign(t, &x509.Certificate{
		Subject:     pkix.Name{CommonName: cn},
		DNSNames:    dnsNames,
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}, newKey(t), parent)
}

func pool(certs ...testCert) *x509.CertPool {
	p := x509.NewCertPool()
	for _, c := range certs {
		p.AddCert(c.cert)
	}
	return p
}

// serveTLS starts a TLS server presenting leaf followed by chain.
func serveTLS(t *testing.T, leaf testCert, chain ...testCert) string {
	t.Helper()
	tlsCert := tls.Certificate{
		Certificate: [][]byte{leaf.cert.Raw},
		PrivateKey:  leaf.key,
		Leaf:        leaf.cert,
	}
	for _, c := range chain {
		tlsCert.Certificate = append(tlsCert.Certificate, c.cert.Raw)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.TLS = &tls.Config{Certificates: []tls.Certificate{tlsCert}}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv.Listener.Addr().String()
}

// redirectDialer sends every dial to a fixed address so tests can check
// arbitrary hostnames against a local server.
type redirectDialer struct {
	addr  string
	dials int
}

func (d *redirectDialer) DialContext(ctx context.Context, network, _ string) (net.Conn, error) {
	d.dials++
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, d.addr)
}

type failingDialer struct {
	err error
}

func (d failingDialer) DialContext(context.Context, string, string) (net.Conn, error) {
	return nil, d.err
}
