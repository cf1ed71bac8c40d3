package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/actor"
	"github.com/bhandras/bazaar/internal/credential"
	"github.com/bhandras/bazaar/internal/realtime"
	"github.com/bhandras/bazaar/pkg/logger"
)

func init() {
	watchCmd.Flags().String("thread", "", "peer id of the conversation being viewed; its messages do not count as unread")
	watchCmd.Flags().Bool("quiet", false, "disable notifications and toasts")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and print incoming messages and notifications",
	Long: "Keep the realtime connection alive for the signed-in user. The connection\n" +
		"follows the stored credential: logging in connects, logging out disconnects.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		thread, _ := cmd.Flags().GetString("thread")
		quiet, _ := cmd.Flags().GetBool("quiet")

		out := cmd.OutOrStdout()
		printer := newFeed(out)
		creds := credentialStore(cfg)

		sup, err := newSupervisor(cfg, creds, supervisorOptions{
			View:  realtime.ThreadView{Peer: thread},
			Out:   out,
			Quiet: quiet,
			Hooks: actor.Hooks[realtime.State]{OnTransition: printer.transition},
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Storage events complement the supervisor's own credential poll.
		watcher, err := credential.Watch(creds.Path())
		if err != nil {
			logger.Warnf("credential watch unavailable, relying on polling: %v", err)
		} else {
			defer watcher.Close()
		}

		var changes <-chan struct{}
		if watcher != nil {
			changes = watcher.Changes()
		}

		fmt.Fprintf(out, "Watching %s (Ctrl+C to exit)\n", cfg.ServerURL)
		return follow(ctx, sup, changes, out)
	},
}

// follow starts sup and relays credential changes and status updates until
// ctx ends or the supervisor dies.
func follow(ctx context.Context, sup *realtime.Supervisor, changes <-chan struct{}, out io.Writer) error {
	statuses, cancel := sup.Subscribe()
	defer cancel()

	sup.Start()
	for {
		select {
		case <-ctx.Done():
			stopCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return sup.Stop(stopCtx)

		case <-sup.Done():
			if err := sup.Err(); err != nil {
				return err
			}
			return errors.New("realtime supervisor exited unexpectedly")

		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			sup.CredentialChanged()

		case st := <-statuses:
			line := st.Label()
			if st == realtime.StatusConnected {
				line = fmt.Sprintf("%s as %s", line, sup.UserID())
			}
			fmt.Fprintf(out, "● %s\n", line)
		}
	}
}
