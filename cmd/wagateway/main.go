package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatcrm/wagateway/internal/auth"
	"github.com/chatcrm/wagateway/internal/config"
	"github.com/chatcrm/wagateway/internal/db"
)

func main() {
	root := &cobra.Command{
		Use:          "wagateway",
		Short:        "WhatsApp Business integration gateway",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), tokenCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway and the outbox sweeper",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := db.Migrate(cfg.Postgres); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	var account string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for one business account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			signed, expiresAt, err := auth.GenerateToken(account, cfg.Auth.JWTSecret,
				cfg.Auth.Issuer, cfg.Auth.Audience, ttl)
			if err != nil {
				return err
			}
			fmt.Printf("%s\nexpires %s\n", signed, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "business account")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}
