package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/daryaKuto/glowrange/internal/config"
	"github.com/daryaKuto/glowrange/internal/dashboard"
	"github.com/daryaKuto/glowrange/internal/db"
	"github.com/daryaKuto/glowrange/internal/dispatch"
	"github.com/daryaKuto/glowrange/internal/models"
	"github.com/daryaKuto/glowrange/internal/notify"
	"github.com/daryaKuto/glowrange/internal/session"
	"github.com/daryaKuto/glowrange/internal/targets"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		deviceCSV  string
		duration   int
		serve      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a practice session",
		Long: `Arms the selected targets, streams live hits, and prints the summary
when the session ends. Stop with Ctrl-C, or set --duration for auto-stop.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd, configPath, deviceCSV, duration, serve)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Glow Range config file")
	cmd.Flags().StringVarP(&deviceCSV, "devices", "d", "", "comma-separated device ids (default: all online devices)")
	cmd.Flags().IntVar(&duration, "duration", -1, "session length in seconds, 0 disables auto-stop (default from config)")
	cmd.Flags().BoolVar(&serve, "serve", false, "serve the live dashboard during the session")
	return cmd
}

func runSession(cmd *cobra.Command, configPath, deviceCSV string, duration int, serve bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if duration < 0 {
		duration = cfg.Session.DefaultDurationSeconds
	}

	provider, client, err := newCloudClient(cfg)
	if err != nil {
		return err
	}

	// History persistence degrades to a warning: a broken database never
	// blocks shooting.
	var recorder session.Recorder
	gdb, dbErr := db.Connect(cfg.DB)
	if dbErr != nil {
		fmt.Fprintf(out, "Warning: history database unavailable, summaries will not be saved: %v\n", dbErr)
	} else {
		if err := db.AutoMigrate(gdb); err != nil {
			return err
		}
		recorder = historyRecorder{db: gdb}
	}

	notifier := newNotifier(cfg)
	if err := notifier.Connect(cmd.Context()); err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
	}
	defer notifier.Close()

	roster, err := pickRoster(cmd.Context(), client, deviceCSV)
	if err != nil {
		return err
	}

	dispatcher, err := dispatch.New(dispatch.Opts{
		Commander: client,
		Auth:      provider,
		Timeout:   time.Duration(cfg.Session.CommandTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	finished := make(chan *models.SessionRecord, 1)
	var ctrl *session.Controller
	ctrl, err = session.New(session.Opts{
		Dispatcher:     dispatcher,
		Subscribe:      newSubscribeFunc(cfg, provider),
		Recorder:       recorder,
		ConfirmTimeout: time.Duration(cfg.Session.ConfirmTimeoutSeconds) * time.Second,
		OnWarning: func(msg string) {
			notifier.Publish(context.Background(), notify.FormatWarning(ctrl.GameID(), msg))
		},
		OnFinished: func(rec *models.SessionRecord) {
			notifier.Publish(context.Background(), notify.FormatSummary(rec))
			select {
			case finished <- rec:
			default:
			}
		},
	})
	if err != nil {
		return err
	}

	if serve && gdb != nil {
		go func() {
			if err := dashboard.Start(cmd.Context(), dashboard.StartOpts{
				DB:     gdb,
				Port:   cfg.Dashboard.Port,
				Out:    out,
				Status: ctrl.Status,
				Roster: client,
			}); err != nil {
				fmt.Fprintf(out, "Warning: dashboard: %v\n", err)
			}
		}()
	}

	if err := ctrl.Select(roster); err != nil {
		return err
	}
	if err := ctrl.Launch(cmd.Context(), duration); err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s launched with %d targets. Waiting for first hit...\n", ctrl.GameID(), len(roster))
	if duration > 0 {
		fmt.Fprintf(out, "Auto-stop after %ds. Ctrl-C stops early.\n", duration)
	} else {
		fmt.Fprintln(out, "Ctrl-C stops the session.")
	}

	sigCtx, cancelSig := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancelSig()

	select {
	case rec := <-finished:
		printSummary(out, rec)
		return nil
	case <-sigCtx.Done():
		fmt.Fprintln(out, "\nStopping session...")
		rec, err := ctrl.Stop(context.Background())
		if err != nil {
			// Nothing confirmed yet: discard instead of summarizing.
			if cerr := ctrl.Cancel(); cerr != nil {
				return cerr
			}
			fmt.Fprintln(out, "Session cancelled before any hits were recorded.")
			return nil
		}
		printSummary(out, rec)
		return nil
	}
}

// pickRoster resolves the requested device ids against the cloud roster.
// An empty request selects every online device.
func pickRoster(ctx context.Context, client *targets.Client, deviceCSV string) ([]targets.Device, error) {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	if deviceCSV == "" {
		var online []targets.Device
		for _, d := range devices {
			if d.Online {
				online = append(online, d)
			}
		}
		if len(online) == 0 {
			return nil, fmt.Errorf("no online devices; check target power and connectivity")
		}
		return online, nil
	}

	byID := make(map[string]targets.Device, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
	}
	var roster []targets.Device
	for _, id := range strings.Split(deviceCSV, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("device %s is not registered", id)
		}
		roster = append(roster, d)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("no devices selected")
	}
	return roster, nil
}

// printSummary renders a finished session to the terminal.
func printSummary(out io.Writer, rec *models.SessionRecord) {
	fmt.Fprintf(out, "\nSession %s finished\n", rec.GameID)
	fmt.Fprintf(out, "  Duration:    %ds\n", rec.DurationSeconds)
	fmt.Fprintf(out, "  Total hits:  %d\n", rec.TotalHits)
	if rec.AvgHitInterval > 0 {
		fmt.Fprintf(out, "  Avg split:   %.2fs\n", rec.AvgHitInterval)
	}
	if rec.TransitionCount > 0 {
		fmt.Fprintf(out, "  Transitions: %d (avg %.2fs)\n", rec.TransitionCount, rec.AvgTransition)
	}
	if rec.Score > 0 {
		fmt.Fprintf(out, "  Score:       %.1f\n", rec.Score)
	}

	if len(rec.DeviceStats) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "  TARGET\tHITS\tAVG SPLIT")
		for _, st := range rec.DeviceStats {
			name := st.DeviceName
			if name == "" {
				name = st.DeviceID
			}
			avg := "-"
			if st.AvgInterval > 0 {
				avg = fmt.Sprintf("%.2fs", st.AvgInterval)
			}
			fmt.Fprintf(w, "  %s\t%d\t%s\n", name, st.HitCount, avg)
		}
		w.Flush()
	}
}
