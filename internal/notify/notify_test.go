package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/certcheck/internal/certificate"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func certExpiringIn(d time.Duration) certificate.Result {
	return certificate.CertificateResult(certificate.Certificate{
		Domain:    "example.com",
		Subject:   certificate.Name{"CN": "example.com"},
		Issuer:    certificate.Name{"CN": "Example CA", "O": "Example"},
		ValidFrom: now.Add(-30 * 24 * time.Hour),
		ValidTo:   now.Add(d),
	})
}

func Test_Select(t *testing.T) {
	var tests = map[string]struct {
		result   certificate.Result
		expected Kind
	}{
		"far future": {
			result:   certExpiringIn(90 * 24 * time.Hour),
			expected: KindOK,
		},
		"just over threshold": {
			result:   certExpiringIn(8 * 24 * time.Hour),
			expected: KindOK,
		},
		"7.9 days truncates to 7": {
			result:   certExpiringIn(7*24*time.Hour + 21*time.Hour),
			expected: KindExpiringSoon,
		},
		"exactly 7 days": {
			result:   certExpiringIn(7 * 24 * time.Hour),
			expected: KindExpiringSoon,
		},
		"hours left": {
			result:   certExpiringIn(3 * time.Hour),
			expected: KindExpiringSoon,
		},
		"expired yesterday": {
			result:   certExpiringIn(-24 * time.Hour),
			expected: KindExpired,
		},
		"error": {
			result:   certificate.FailureResult(certificate.NewErrorResult("example.com", certificate.Rejected, "ENOTFOUND")),
			expected: KindError,
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expected, Select(test.result, now))
		})
	}
}

func Test_Compose(t *testing.T) {
	var tests = map[string]struct {
		result   certificate.Result
		subject  string
		contains []string
	}{
		"ok": {
			result:   certExpiringIn(90 * 24 * time.Hour),
			subject:  "CERT_CHECK - example.com is valid",
			contains: []string{"example.com is valid<br>", "(days: 90)", "&#34;CN&#34;:&#34;Example CA&#34;", "Expiry: Thu May 30 2024"},
		},
		"expiring": {
			result:   certExpiringIn(5 * 24 * time.Hour),
			subject:  "CERT_CHECK - example.com expires in 5 days",
			contains: []string{"example.com expires in 5 days<br>"},
		},
		"expired": {
			result:   certExpiringIn(-2 * 24 * time.Hour),
			subject:  "CERT_CHECK - example.com - has expired!",
			contains: []string{"example.com has expired!<br>"},
		},
		"error": {
			result:   certificate.FailureResult(certificate.NewErrorResult("example.com", certificate.Unauthorized, "HOSTNAME_MISMATCH")),
			subject:  "CERT_CHECK - example.com - Error - Hostname mismatch",
			contains: []string{"error checking domain.  Hostname mismatch", "type: unauthorized", "code: HOSTNAME_MISMATCH"},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			email, err := Compose(Select(test.result, now), test.result, now)
			require.NoError(t, err)
			assert.Equal(t, test.subject, email.Subject)
			for _, s := range test.contains {
				assert.Contains(t, email.HTML, s)
			}
		})
	}
}

func Test_ComposeMismatchedKind(t *testing.T) {
	_, err := Compose(KindError, certExpiringIn(90*24*time.Hour), now)
	assert.Error(t, err)

	failure := certificate.FailureResult(certificate.NewErrorResult("example.com", certificate.Rejected, "EPROTO"))
	_, err = Compose(KindOK, failure, now)
	assert.Error(t, err)
}

type recordingSender struct {
	sent []Email
	err  error
}

func (r *recordingSender) Send(_ context.Context, email Email) error {
	r.sent = append(r.sent, email)
	return r.err
}

func Test_DispatcherSendsOneEmail(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, "monitor@example.net", WithDispatcherClock(clockwork.NewFakeClockAt(now)))

	kind, err := d.Notify(context.Background(), "ops@example.net", certExpiringIn(3*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, string(KindExpiringSoon), kind)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "monitor@example.net", sender.sent[0].From)
	assert.Equal(t, "ops@example.net", sender.sent[0].To)
	assert.Equal(t, "CERT_CHECK - example.com expires in 3 days", sender.sent[0].Subject)
}

func Test_DispatcherReturnsSendError(t *testing.T) {
	sender := &recordingSender{err: errors.New("401 unauthorized")}
	d := NewDispatcher(sender, "monitor@example.net")

	failure := certificate.FailureResult(certificate.NewErrorResult("example.com", certificate.Rejected, "ECONNREFUSED"))
	kind, err := d.Notify(context.Background(), "ops@example.net", failure)
	require.Error(t, err)
	assert.Equal(t, string(KindError), kind)
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, "CERT_CHECK - example.com - Error - Unknown error - ECONNREFUSED", sender.sent[0].Subject)
}

func Test_DispatcherFollowsClock(t *testing.T) {
	sender := &recordingSender{}
	clock := clockwork.NewFakeClockAt(now)
	d := NewDispatcher(sender, "monitor@example.net", WithDispatcherClock(clock))
	res := certExpiringIn(certificate.WarningDays*24*time.Hour + time.Hour)

	var tests = []struct {
		advance  time.Duration
		expected Kind
		subject  string
	}{
		{advance: 0, expected: KindExpiringSoon, subject: "CERT_CHECK - example.com expires in 7 days"},
		{advance: 2 * time.Hour, expected: KindExpiringSoon, subject: "CERT_CHECK - example.com expires in 6 days"},
		{advance: 7 * 24 * time.Hour, expected: KindExpired, subject: "CERT_CHECK - example.com - has expired!"},
	}
	for _, test := range tests {
		clock.Advance(test.advance)
		kind, err := d.Notify(context.Background(), "ops@example.net", res)
		require.NoError(t, err)
		assert.Equal(t, string(test.expected), kind)
		assert.Equal(t, test.subject, sender.sent[len(sender.sent)-1].Subject)
	}
}

func Test_LogSender(t *testing.T) {
	assert.NoError(t, LogSender{}.Send(context.Background(), Email{Subject: "s"}))
}
