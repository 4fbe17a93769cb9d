package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gateway-fm/certcheck/internal/certificate"
	"github.com/gateway-fm/certcheck/internal/config"
)

type stubChecker struct {
	mu      sync.Mutex
	domains []string
}

func (c *stubChecker) Evaluate(_ context.Context, domain string) certificate.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.domains = append(c.domains, domain)
	return certificate.FailureResult(certificate.NewErrorResult(domain, certificate.Rejected, "ENOTFOUND"))
}

func (c *stubChecker) checked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.domains...)
}

func useStubChecker(t *testing.T) *stubChecker {
	t.Helper()
	stub := &stubChecker{}
	prev := newChecker
	newChecker = func() certificate.Checker { return stub }
	t.Cleanup(func() { newChecker = prev })
	return stub
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// keep the working directory free of a stray local.settings.json
	wd, wdErr := os.Getwd()
	require.NoError(t, wdErr)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func Test_CheckCommandPrintsResult(t *testing.T) {
	stub := useStubChecker(t)

	out, err := execute(t, "check", "--no-email", "nope.invalid")
	require.NoError(t, err)
	assert.Equal(t, []string{"nope.invalid"}, stub.checked())

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "error", body["kind"])
	assert.Equal(t, "ENOTFOUND", body["error_code"])
	assert.Equal(t, "Unable to find requested domain", body["msg"])
}

func Test_CheckCommandUsesConfiguredDomain(t *testing.T) {
	stub := useStubChecker(t)
	t.Setenv("CheckDomain", "configured.example.com")
	t.Setenv("CheckToEmail", "ops@example.com")

	// without mailgun credentials the email is only logged
	_, err := execute(t, "check")
	require.NoError(t, err)
	assert.Equal(t, []string{"configured.example.com"}, stub.checked())
}

func Test_CheckCommandErrors(t *testing.T) {
	var tests = map[string]struct {
		args []string
	}{
		"no domain": {
			args: []string{"check", "--no-email"},
		},
		"no recipient": {
			args: []string{"check", "example.com"},
		},
		"too many domains": {
			args: []string{"check", "--no-email", "a.example.com", "b.example.com"},
		},
		"bad log level": {
			args: []string{"check", "--no-email", "--log-level", "loud", "example.com"},
		},
		"missing config file": {
			args: []string{"check", "--no-email", "--config", "/does/not/exist.yaml", "example.com"},
		},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			stub := useStubChecker(t)
			_, err := execute(t, test.args...)
			assert.Error(t, err)
			assert.Empty(t, stub.checked())
		})
	}
}

func Test_ServeRunsAndShutsDown(t *testing.T) {
	stub := useStubChecker(t)
	cfg := config.Config{
		Domain:            "example.com",
		To:                "ops@example.com",
		Interval:          time.Hour,
		RunOnStart:        true,
		DBPath:            filepath.Join(t.TempDir(), "certcheck.db"),
		HTTPAddr:          "127.0.0.1:0",
		GRPCAddr:          "127.0.0.1:0",
		KillSwitchAPIKey:  "kill",
		KillRestartAPIKey: "restart",
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cfg) }()

	require.Eventually(t, func() bool { return len(stub.checked()) == 1 }, 10*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
	assert.Equal(t, []string{"example.com"}, stub.checked())
}
