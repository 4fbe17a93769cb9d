// Package config loads certcheck settings from flags, environment and an
// optional settings file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load.
const (
	KeyDomain            = "domain"
	KeyTo                = "to"
	KeyMailgunAPIKey     = "mailgun.api_key"
	KeyMailgunDomain     = "mailgun.domain"
	KeyMailgunFrom       = "mailgun.from"
	KeyMailgunAPIBase    = "mailgun.api_base"
	KeyScheduleCron      = "schedule.cron"
	KeyScheduleInterval  = "schedule.interval"
	KeyRunOnStart        = "schedule.run_on_start"
	KeyCheckTimeout      = "check.timeout"
	KeyDBPath            = "db"
	KeyHTTPAddr          = "http"
	KeyGRPCAddr          = "grpc"
	KeyKillSwitchAPIKey  = "kill_switch_api_key"
	KeyKillRestartAPIKey = "kill_restart_api_key"
	KeyLogLevel          = "log.level"
	KeyLogFormat         = "log.format"
)

// envNames are the environment variables each key is read from.
var envNames = map[string]string{
	KeyDomain:            "CheckDomain",
	KeyTo:                "CheckToEmail",
	KeyMailgunAPIKey:     "MailgunApiKey",
	KeyMailgunDomain:     "MailgunDomain",
	KeyMailgunFrom:       "MailgunFromEmail",
	KeyMailgunAPIBase:    "MailgunApiBase",
	KeyScheduleCron:      "CheckSchedule",
	KeyScheduleInterval:  "CheckInterval",
	KeyRunOnStart:        "CheckRunOnStart",
	KeyCheckTimeout:      "CheckTimeout",
	KeyDBPath:            "CERTCHECK_DB",
	KeyHTTPAddr:          "CERTCHECK_HTTP",
	KeyGRPCAddr:          "CERTCHECK_GRPC",
	KeyKillSwitchAPIKey:  "CERTCHECK_KILL_SWITCH_API_KEY",
	KeyKillRestartAPIKey: "CERTCHECK_KILL_RESTART_API_KEY",
	KeyLogLevel:          "CERTCHECK_LOG_LEVEL",
	KeyLogFormat:         "CERTCHECK_LOG_FORMAT",
}

// Mailgun holds the mail API credentials.
type Mailgun struct {
	APIKey  string
	Domain  string
	From    string
	APIBase string
}

// Configured reports whether enough is set to send mail.
func (m Mailgun) Configured() bool {
	return m.APIKey != "" && m.Domain != "" && m.From != ""
}

type Config struct {
	Domain string
	To     string

	Mailgun Mailgun

	Cron         string
	Interval     time.Duration
	RunOnStart   bool
	CheckTimeout time.Duration

	DBPath   string
	HTTPAddr string
	GRPCAddr string

	KillSwitchAPIKey  string
	KillRestartAPIKey string

	LogLevel  string
	LogFormat string
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) error {
	v.SetDefault(KeyScheduleInterval, 24*time.Hour)
	v.SetDefault(KeyDBPath, "certcheck.db")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyGRPCAddr, ":50051")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("binding %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Load reads the configuration out of v. Values missing under their own key
// fall back to the "Values" section of a local.settings.json style file.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Domain: str(v, KeyDomain),
		To:     str(v, KeyTo),
		Mailgun: Mailgun{
			APIKey:  str(v, KeyMailgunAPIKey),
			Domain:  str(v, KeyMailgunDomain),
			From:    str(v, KeyMailgunFrom),
			APIBase: str(v, KeyMailgunAPIBase),
		},
		Cron:              str(v, KeyScheduleCron),
		Interval:          v.GetDuration(KeyScheduleInterval),
		RunOnStart:        v.GetBool(KeyRunOnStart),
		CheckTimeout:      v.GetDuration(KeyCheckTimeout),
		DBPath:            v.GetString(KeyDBPath),
		HTTPAddr:          v.GetString(KeyHTTPAddr),
		GRPCAddr:          v.GetString(KeyGRPCAddr),
		KillSwitchAPIKey:  str(v, KeyKillSwitchAPIKey),
		KillRestartAPIKey: str(v, KeyKillRestartAPIKey),
		LogLevel:          v.GetString(KeyLogLevel),
		LogFormat:         v.GetString(KeyLogFormat),
	}

	if cfg.Cron == "" && cfg.Interval <= 0 {
		return cfg, fmt.Errorf("%s must be positive when no %s is set", KeyScheduleInterval, KeyScheduleCron)
	}
	if cfg.CheckTimeout < 0 {
		return cfg, fmt.Errorf("%s must not be negative", KeyCheckTimeout)
	}
	return cfg, nil
}

// ValidateServe checks the settings the long-running service cannot start without.
func (c Config) ValidateServe() error {
	var errs []error
	if c.Domain == "" {
		errs = append(errs, fmt.Errorf("no domain to check (set %s or --domain)", envNames[KeyDomain]))
	}
	if c.To == "" {
		errs = append(errs, fmt.Errorf("no recipient (set %s or --to)", envNames[KeyTo]))
	}
	if c.KillSwitchAPIKey == "" {
		errs = append(errs, errors.New("no kill switch API key provided"))
	}
	if c.KillRestartAPIKey == "" {
		errs = append(errs, errors.New("no kill restart API key provided"))
	}
	return errors.Join(errs...)
}

func str(v *viper.Viper, key string) string {
	if s := v.GetString(key); s != "" {
		return s
	}
	if env, ok := envNames[key]; ok {
		return v.GetString("values." + strings.ToLower(env))
	}
	return ""
}
