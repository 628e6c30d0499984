package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/doodlesbykumbi/opsagent/pkg/config"
	"github.com/doodlesbykumbi/opsagent/pkg/server/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
	Long:  `Manage bearer tokens for the /agent and /sessions endpoints.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("error: Command 'token' requires a subcommand (issue)")
		fmt.Println()
		_ = cmd.Help()
		os.Exit(1)
	},
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed bearer token",
	Long: `Issue an HS256 bearer token signed with OPSAGENT_JWT_SECRET.

Example:
  opsagentctl token issue --subject reporting-bot --ttl 24h`,
	Run: func(cmd *cobra.Command, args []string) {
		subject, _ := cmd.Flags().GetString("subject")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := issueToken(subject, ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().StringP("subject", "s", "", "Token subject (required)")
	tokenIssueCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	_ = tokenIssueCmd.MarkFlagRequired("subject")
}

func issueToken(subject string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	if cfg.JWTSecret == "" {
		return "", errors.New("OPSAGENT_JWT_SECRET is not set")
	}
	return middleware.IssueToken(cfg.JWTSecret, subject, ttl)
}
