package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/javajoker/imi-ownership/internal/config"
	"github.com/javajoker/imi-ownership/internal/utils"
)

var tokenFlags struct {
	user     string
	userType string
	ttl      int
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Sign a bearer token for local testing",
	RunE:  runToken,
}

func init() {
	f := tokenCmd.Flags()
	f.StringVar(&tokenFlags.user, "user", "", "User id (default a random id)")
	f.StringVar(&tokenFlags.userType, "type", utils.UserTypeCreator, "User type: creator or admin")
	f.IntVar(&tokenFlags.ttl, "ttl", 1, "Lifetime in hours")
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Environment == "production" {
		return fmt.Errorf("refusing to sign tokens in production")
	}

	userID := uuid.New()
	if tokenFlags.user != "" {
		if userID, err = uuid.Parse(tokenFlags.user); err != nil {
			return fmt.Errorf("invalid user id %q: %w", tokenFlags.user, err)
		}
	}
	switch tokenFlags.userType {
	case utils.UserTypeCreator, utils.UserTypeAdmin:
	default:
		return fmt.Errorf("unknown user type %q", tokenFlags.userType)
	}

	utils.SetJWTConfig(cfg.JWT.SecretKey, cfg.JWT.Issuer)
	token, err := utils.GenerateJWT(userID, tokenFlags.userType, tokenFlags.ttl)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "user: %s\n%s\n", userID, token)
	return nil
}
