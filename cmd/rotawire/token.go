package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/rotawire/internal/auth"
)

var (
	tokenRole string
	tokenTTL  string
)

// tokenCmd mints a signed access token for an employee
var tokenCmd = &cobra.Command{
	Use:   "token <employee-id>",
	Short: "Mint a signed access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jwtConfig := &auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			TTL:      cfg.JWTTTL,
		}
		if cmd.Flags().Changed("ttl") {
			ttl, err := parseDuration(tokenTTL)
			if err != nil {
				return err
			}
			jwtConfig.TTL = ttl
		}

		token, err := auth.GenerateToken(jwtConfig, args[0], tokenRole)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", "", "Role claim")
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime (default: jwt_ttl from config)")
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}
