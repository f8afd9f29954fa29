package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metacurate/curation-engine/internal/config"
	"github.com/metacurate/curation-engine/internal/server"
)

var tokenCurator string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a curator bearer token",
	Long:  `Generate a signed JWT for a curator, using JWT_SECRET from the environment. The token is printed to stdout.`,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenCurator, "curator", "", "Curator identity to embed in the token")
	_ = tokenCmd.MarkFlagRequired("curator")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(_ *cobra.Command, _ []string) error {
	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return err
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(tokenCurator)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Println(token)
	return nil
}
