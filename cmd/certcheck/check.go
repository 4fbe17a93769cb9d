package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gateway-fm/certcheck/internal/config"
	"github.com/gateway-fm/certcheck/internal/notify"
)

func newCheckCmd(v *viper.Viper) *cobra.Command {
	var noEmail bool
	cmd := &cobra.Command{
		Use:   "check [domain]",
		Short: "Check a domain once, print the result and send the notification",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			domain := cfg.Domain
			if len(args) == 1 {
				domain = args[0]
			}
			if domain == "" {
				return errors.New("no domain to check: pass one as an argument or set CheckDomain")
			}
			if !noEmail && cfg.To == "" {
				return errors.New("no recipient: set CheckToEmail or --to, or pass --no-email")
			}
			return runCheck(cmd.Context(), cmd.OutOrStdout(), cfg, domain, noEmail)
		},
	}
	cmd.Flags().BoolVar(&noEmail, "no-email", false, "print the result without sending a notification")
	return cmd
}

func runCheck(ctx context.Context, out io.Writer, cfg config.Config, domain string, noEmail bool) error {
	checkCtx := ctx
	if cfg.CheckTimeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, cfg.CheckTimeout)
		defer cancel()
	}
	res := newChecker().Evaluate(checkCtx, domain)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	if noEmail {
		return nil
	}
	kind, err := newDispatcher(cfg, clockwork.NewRealClock()).Notify(ctx, cfg.To, res)
	if err != nil {
		return err
	}
	slog.Info("notification sent", "kind", kind, "to", cfg.To)
	return nil
}

func newDispatcher(cfg config.Config, clock clockwork.Clock) *notify.Dispatcher {
	return notify.NewDispatcher(newSender(cfg.Mailgun), cfg.Mailgun.From, notify.WithDispatcherClock(clock))
}
