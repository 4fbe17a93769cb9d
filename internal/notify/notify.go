// Package notify turns check results into operator emails.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/gateway-fm/certcheck/internal/certificate"
)

// Kind identifies which notification a result produces.
type Kind string

const (
	KindOK           Kind = "ok"
	KindExpiringSoon Kind = "expiring"
	KindExpired      Kind = "expired"
	KindError        Kind = "error"
)

// Email is a composed message ready to be sent.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a composed email.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Select picks the notification for a result. Expiry is checked before the
// warning threshold.
func Select(res certificate.Result, now time.Time) Kind {
	kind := KindError
	res.Match(func(c certificate.Certificate) {
		switch {
		case c.HasExpiredAt(now):
			kind = KindExpired
		case c.DaysToExpireAt(now) <= certificate.WarningDays:
			kind = KindExpiringSoon
		default:
			kind = KindOK
		}
	}, func(certificate.ErrorResult) {
		kind = KindError
	})
	return kind
}

const timeLayout = "Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"

var bodies = map[Kind]*template.Template{
	KindOK: template.Must(template.New("ok").Parse(
		`{{.Domain}} is valid<br>
subject: {{.Subject}}<br>
issuer: {{.Issuer}}<br>
Expiry: {{.Expiry}} (days: {{.Days}})`)),
	KindExpiringSoon: template.Must(template.New("expiring").Parse(
		`{{.Domain}} expires in {{.Days}} days<br>
subject: {{.Subject}}<br>
issuer: {{.Issuer}}<br>
Expiry: {{.Expiry}}`)),
	KindExpired: template.Must(template.New("expired").Parse(
		`{{.Domain}} has expired!<br>
subject: {{.Subject}}<br>
issuer: {{.Issuer}}<br>
Expiry: {{.Expiry}}`)),
	KindError: template.Must(template.New("error").Parse(
		`{{.Domain}} - error checking domain.  {{.Msg}}<br>
type: {{.ErrorType}}<br>
code: {{.ErrorCode}}`)),
}

type certView struct {
	Domain  string
	Subject string
	Issuer  string
	Expiry  string
	Days    int
}

type errorView struct {
	Domain    string
	Msg       string
	ErrorType string
	ErrorCode string
}

// Compose renders the email for a result. The kind must come from Select
// for the same result.
func Compose(kind Kind, res certificate.Result, now time.Time) (Email, error) {
	var (
		subject string
		data    any
		err     error
	)
	res.Match(func(c certificate.Certificate) {
		view := certView{
			Domain: c.Domain,
			Expiry: c.ValidTo.Format(timeLayout),
			Days:   c.DaysToExpireAt(now),
		}
		if view.Subject, err = jsonString(c.Subject); err != nil {
			return
		}
		if view.Issuer, err = jsonString(c.Issuer); err != nil {
			return
		}
		switch kind {
		case KindOK:
			subject = fmt.Sprintf("CERT_CHECK - %s is valid", c.Domain)
		case KindExpiringSoon:
			subject = fmt.Sprintf("CERT_CHECK - %s expires in %d days", c.Domain, view.Days)
		case KindExpired:
			subject = fmt.Sprintf("CERT_CHECK - %s - has expired!", c.Domain)
		default:
			err = fmt.Errorf("notification %q does not apply to a certificate", kind)
		}
		data = view
	}, func(e certificate.ErrorResult) {
		if kind != KindError {
			err = fmt.Errorf("notification %q does not apply to an error result", kind)
			return
		}
		subject = fmt.Sprintf("CERT_CHECK - %s - Error - %s", e.Domain, e.Msg)
		data = errorView{
			Domain:    e.Domain,
			Msg:       e.Msg,
			ErrorType: string(e.ErrorType),
			ErrorCode: e.ErrorCode,
		}
	})
	if err != nil {
		return Email{}, err
	}

	var buf bytes.Buffer
	if err := bodies[kind].Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("failed to render %s email: %w", kind, err)
	}
	return Email{Subject: subject, HTML: buf.String()}, nil
}

func jsonString(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Dispatcher selects, composes and sends exactly one email per result.
type Dispatcher struct {
	sender Sender
	from   string
	clock  clockwork.Clock
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherClock sets the clock Select and Compose are evaluated at.
func WithDispatcherClock(c clockwork.Clock) DispatcherOption {
	return func(d *Dispatcher) { d.clock = c }
}

// NewDispatcher creates a Dispatcher sending from the given address.
func NewDispatcher(sender Sender, from string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{sender: sender, from: from, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Notify emails the result to the recipient and returns the kind that was sent.
func (d *Dispatcher) Notify(ctx context.Context, to string, res certificate.Result) (string, error) {
	now := d.clock.Now()
	kind := Select(res, now)
	email, err := Compose(kind, res, now)
	if err != nil {
		return string(kind), err
	}
	email.From = d.from
	email.To = to

	slog.Info("sending notification", "kind", kind, "to", to, "subject", email.Subject)
	if err := d.sender.Send(ctx, email); err != nil {
		return string(kind), fmt.Errorf("failed to send %s email to %s: %w", kind, to, err)
	}
	return string(kind), nil
}
