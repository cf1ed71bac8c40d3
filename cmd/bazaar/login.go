package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/auth"
)

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, qrCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login TOKEN",
	Short: "Store an access token",
	Long: "Store the access token used to authenticate the realtime connection.\n" +
		"A running `bazaar watch` picks it up without a restart.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		token := strings.TrimSpace(args[0])
		if info, ok := auth.Inspect(token); ok && info.Expired(time.Now()) {
			return errors.New("token has already expired")
		}

		creds := credentialStore(cfg)
		if err := creds.Save(token); err != nil {
			return err
		}

		who := auth.SubjectOf(token)
		if who == "" {
			who = "opaque token"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in (%s). Credential saved to %s\n", who, creds.Path())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := credentialStore(cfg).Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

var qrCmd = &cobra.Command{
	Use:   "qr",
	Short: "Show a QR code that signs another device in with this credential",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		token := credentialStore(cfg).Token()
		if token == "" {
			return errors.New("not signed in; run `bazaar login TOKEN` first")
		}

		qr, err := qrcode.New(pairingURL(cfg.ServerURL, token), qrcode.Medium)
		if err != nil {
			return fmt.Errorf("failed to generate QR code: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Scan this QR code with the Bazaar app:")
		fmt.Fprintln(out)
		fmt.Fprintln(out, qr.ToSmallString(false))
		return nil
	},
}

// pairingURL is the payload scanned by the mobile app.
func pairingURL(server, token string) string {
	q := url.Values{}
	q.Set("server", server)
	q.Set("token", token)
	return (&url.URL{Scheme: "bazaar", Host: "login", RawQuery: q.Encode()}).String()
}
