package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/realtime"
)

func init() {
	statusCmd.Flags().Duration("timeout", 10*time.Second, "how long to wait for the connection to settle")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential and try to connect",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		out := cmd.OutOrStdout()
		creds := credentialStore(cfg)

		fmt.Fprintln(out, "Configuration:")
		fmt.Fprintf(out, "  Server:     %s\n", cfg.ServerURL)
		fmt.Fprintf(out, "  Home:       %s\n", cfg.Home)

		token := creds.Token()
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Credential:")
		if token == "" {
			fmt.Fprintln(out, "  Token:      (not signed in)")
		} else {
			fmt.Fprintf(out, "  Token:      %s\n", describeToken(token, time.Now()))
		}

		sup, err := newSupervisor(cfg, creds, supervisorOptions{Out: out, Quiet: true})
		if err != nil {
			return err
		}
		statuses, cancel := sup.Subscribe()
		defer cancel()
		sup.Start()

		ctx, done := context.WithTimeout(cmd.Context(), timeout)
		defer done()
		final := waitSettled(ctx, statuses)

		stopCtx, stopDone := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopDone()
		if err := sup.Stop(stopCtx); err != nil {
			return err
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, "Connection:")
		fmt.Fprintf(out, "  Status:     %s (%s)\n", final.Label(), final)
		return nil
	},
}

// waitSettled reads statuses until one that will not change on its own
// arrives or ctx ends, and returns the last one seen.
func waitSettled(ctx context.Context, statuses <-chan realtime.Status) realtime.Status {
	last := realtime.StatusNotAuthenticated
	for {
		select {
		case <-ctx.Done():
			return last
		case st, ok := <-statuses:
			if !ok {
				return last
			}
			last = st
			switch st {
			case realtime.StatusConnected, realtime.StatusError:
				return st
			}
		}
	}
}

func describeToken(token string, now time.Time) string {
	info, ok := auth.Inspect(token)
	if !ok {
		return "present (not a JWT)"
	}
	subject := info.Subject
	if subject == "" {
		subject = "unknown user"
	}
	switch {
	case !info.HasExpiry:
		return fmt.Sprintf("%s (no expiry)", subject)
	case info.Expired(now):
		return fmt.Sprintf("%s (EXPIRED %s)", subject, info.ExpiresAt.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s (valid until %s)", subject, info.ExpiresAt.Format(time.RFC3339))
	}
}
