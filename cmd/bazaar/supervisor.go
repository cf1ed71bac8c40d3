package main

import (
	"io"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/config"
	"github.com/bhandras/bazaar/internal/credential"
	"github.com/bhandras/bazaar/internal/notify"
	"github.com/bhandras/bazaar/internal/realtime"
	"github.com/bhandras/bazaar/pkg/logger"
)

// supervisorOptions are the per-command pieces of the supervisor wiring.
type supervisorOptions struct {
	View  realtime.ViewContext
	Out   io.Writer
	Hooks actor.Hooks[realtime.State]
	// Quiet disables platform notifications and toasts.
	Quiet bool
}

// newSupervisor builds a stopped supervisor from the client configuration.
func newSupervisor(cfg *config.Config, creds credential.Source, opts supervisorOptions) (*realtime.Supervisor, error) {
	var (
		notifier notify.Notifier = notify.Nop{}
		toaster  notify.Toaster  = notify.Nop{}
	)
	if !opts.Quiet {
		notifiers := notify.Multi{notify.LogNotifier{}}
		pcfg := notify.PushoverConfig{
			Token:    cfg.Pushover.Token,
			UserKey:  cfg.Pushover.UserKey,
			Cooldown: cfg.Pushover.Cooldown.Std(),
		}
		if pcfg.Enabled() {
			p, err := notify.NewPushoverNotifier(pcfg)
			if err != nil {
				return nil, err
			}
			notifiers = append(notifiers, p)
			logger.Debugf("pushover notifications enabled")
		}
		notifier = notifiers
		toaster = notify.NewTerminalToaster(opts.Out)
	}

	return realtime.NewSupervisor(realtime.Config{
		Credentials: creds,
		Dialer: realtime.SocketIODialer{
			URL:  cfg.ServerURL,
			Path: cfg.SocketPath,
		},
		Notifier: notifier,
		Toaster:  toaster,
		View:     opts.View,
		Backoff: realtime.BackoffPolicy{
			Floor:   cfg.Backoff.Floor.Std(),
			Factor:  cfg.Backoff.Factor,
			Ceiling: cfg.Backoff.Ceiling.Std(),
		},
		PollInterval: cfg.CredentialPoll.Std(),
		Hooks:        opts.Hooks,
	})
}
