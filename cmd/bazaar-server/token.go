package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bhandras/bazaar/internal/auth"
	"github.com/bhandras/bazaar/internal/config"
)

func init() {
	tokenCmd.Flags().Duration("ttl", 30*24*time.Hour, "token lifetime")
	tokenCmd.Flags().String("name", "", "display name claim")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Mint an access token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(config.ServerOverrides{})
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		name, _ := cmd.Flags().GetString("name")

		jwtManager, err := auth.NewJWTManager(cfg.MasterSecret)
		if err != nil {
			return err
		}
		token, err := jwtManager.CreateToken(args[0], name, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}
