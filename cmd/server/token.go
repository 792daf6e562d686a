package main

import (
	"errors"
	"fmt"
	"time"

	"metarest/internal/auth"

	"github.com/spf13/cobra"
)

var (
	tokenUser  int64
	tokenPerms []string
	tokenRoles string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token signed with the configured secret",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cfg.AuthSecret == "" {
			return errors.New("auth secret is not configured")
		}
		claims := auth.Claims{UserID: tokenUser, Roles: tokenRoles}
		for i, p := range tokenPerms {
			claims.Permissions = append(claims.Permissions, auth.Permission{PermissionID: int64(i + 1), Title: p})
		}
		tok, err := auth.NewTokenService(cfg.AuthSecret).Issue(claims, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().Int64Var(&tokenUser, "user", 1, "user id carried by the token")
	tokenCmd.Flags().StringSliceVar(&tokenPerms, "perm", nil, `permission titles, e.g. "READ CUSTOMER"`)
	tokenCmd.Flags().StringVar(&tokenRoles, "roles", "", "roles claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	rootCmd.AddCommand(tokenCmd)
}
