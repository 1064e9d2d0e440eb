package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List registered target devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDevices(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Glow Range config file")
	return cmd
}

func runDevices(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	_, client, err := newCloudClient(cfg)
	if err != nil {
		return err
	}

	devices, err := client.ListDevices(cmd.Context())
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tLAST SEEN")
	for _, d := range devices {
		status := "offline"
		if d.Online {
			status = "online"
		}
		lastSeen := "never"
		if !d.LastSeen.IsZero() {
			lastSeen = formatAgo(time.Since(d.LastSeen))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, status, lastSeen)
	}
	return w.Flush()
}

// formatAgo renders a duration as a compact "Ns/Nm/Nh ago" string.
func formatAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}
