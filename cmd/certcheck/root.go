package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gateway-fm/certcheck/internal/certificate"
	"github.com/gateway-fm/certcheck/internal/config"
	"github.com/gateway-fm/certcheck/internal/notify"
)

// newChecker builds the evaluator used by both commands.
var newChecker = func() certificate.Checker {
	return certificate.NewEvaluator()
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:          "certcheck",
		Short:        "Checks a domain's TLS certificate and emails the outcome",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := initConfig(v, cfgFile); err != nil {
				return err
			}
			logger, err := config.NewLogger(cmd.ErrOrStderr(), v.GetString(config.KeyLogLevel), v.GetString(config.KeyLogFormat))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			if used := v.ConfigFileUsed(); used != "" {
				slog.Info("using config file", "path", used)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML, JSON or local.settings.json; default ./local.settings.json if present)")
	flags.String("log-level", "info", "log level (debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")
	flags.String("domain", "", "domain to check")
	flags.String("to", "", "address notified of the result")
	flags.Duration("timeout", 0, "per-check timeout, 0 for none")

	if err := bindFlags(v, flags, map[string]string{
		config.KeyLogLevel:     "log-level",
		config.KeyLogFormat:    "log-format",
		config.KeyDomain:       "domain",
		config.KeyTo:           "to",
		config.KeyCheckTimeout: "timeout",
	}); err != nil {
		panic(err)
	}

	root.AddCommand(newServeCmd(v), newCheckCmd(v))
	return root
}

// initConfig reads the settings file and binds environment variables.
func initConfig(v *viper.Viper, cfgFile string) error {
	if err := config.SetDefaults(v); err != nil {
		return err
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
		return nil
	}

	v.SetConfigName("local.settings")
	v.SetConfigType("json")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading local.settings.json: %w", err)
		}
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// newSender sends through Mailgun when it is configured and logs otherwise.
func newSender(m config.Mailgun) notify.Sender {
	if !m.Configured() {
		slog.Warn("mailgun is not configured, notifications will only be logged")
		return notify.LogSender{}
	}
	return notify.NewMailgunSender(m.Domain, m.APIKey, m.APIBase)
}
