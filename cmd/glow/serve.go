package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/daryaKuto/glowrange/internal/dashboard"
	"github.com/daryaKuto/glowrange/internal/db"
	"github.com/daryaKuto/glowrange/internal/notify"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the range dashboard",
		Long: `Serves the session history and device roster over HTTP, and fires the
periodic practice digest when one is configured.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Glow Range config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port <= 0 {
		port = cfg.Dashboard.Port
	}

	gdb, err := db.Connect(cfg.DB)
	if err != nil {
		return fmt.Errorf("connect to history db: %w", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	_, client, err := newCloudClient(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Notify.DigestCron != "" {
		notifier := newNotifier(cfg)
		if err := notifier.Connect(ctx); err != nil {
			fmt.Fprintf(out, "Warning: %v\n", err)
		} else {
			defer notifier.Close()
			digest, err := notify.NewDigest(notify.DigestOpts{
				DB:       gdb,
				Notifier: notifier,
				Expr:     cfg.Notify.DigestCron,
			})
			if err != nil {
				return err
			}
			go digest.Run(ctx)
			fmt.Fprintf(out, "Practice digest scheduled (%s)\n", cfg.Notify.DigestCron)
		}
	}

	return dashboard.Start(ctx, dashboard.StartOpts{
		DB:     gdb,
		Port:   port,
		Out:    out,
		Roster: client,
	})
}
