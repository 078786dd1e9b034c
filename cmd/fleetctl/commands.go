package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/hochfrequenz/botfleet/internal/domain"
	"github.com/hochfrequenz/botfleet/internal/events"
	"github.com/hochfrequenz/botfleet/internal/manifest"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "fleetctl",
		Short: "botfleet - fleet registry and coordinated campaign dispatch",
		Long: `fleetctl manages a fleet of named bots and runs campaigns across them.
It keeps the fleet in SQLite, launches one simulated invocation per bot,
and streams aggregated progress to the terminal, the TUI and the HTTP API.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")

	cfgPath := func() string { return configPath }

	rootCmd.AddCommand(
		newListCmd(cfgPath),
		newAddCmd(cfgPath),
		newRemoveCmd(cfgPath),
		newSetStatusCmd(cfgPath, "start", "Bring one bot online", domain.BotOnline),
		newSetStatusCmd(cfgPath, "stop", "Take one bot offline", domain.BotOffline),
		newSetAllCmd(cfgPath, "start-all", "Bring every idle bot online", domain.BotOnline),
		newSetAllCmd(cfgPath, "stop-all", "Take every idle bot offline", domain.BotOffline),
		newRunCmd(cfgPath),
		newHistoryCmd(cfgPath),
		newImportCmd(cfgPath),
		newServeCmd(cfgPath),
		newTUICmd(cfgPath),
	)
	return rootCmd
}

// withApp opens the fleet, runs fn and always closes it
func withApp(configPath string, fn func(a *app) error) error {
	a, err := openApp(configPath)
	if err != nil {
		return err
	}
	ferr := fn(a)
	if cerr := a.Close(); cerr != nil && ferr == nil {
		return cerr
	}
	return ferr
}

func newListCmd(cfgPath func() string) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter domain.BotStatus
			if status != "" {
				s, err := domain.ParseBotStatus(status)
				if err != nil {
					return err
				}
				filter = s
			}

			return withApp(cfgPath(), func(a *app) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tPORT\tSTATUS\tREQUESTS\tUPTIME\tSPECIALTY")
				for _, b := range a.registry.List() {
					if filter != "" && b.Status != filter {
						continue
					}
					fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
						b.Name, b.Port, b.Status, humanize.Comma(int64(b.Requests)), b.Uptime, b.Specialty)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (online, offline, busy)")
	return cmd
}

func newAddCmd(cfgPath func() string) *cobra.Command {
	var (
		specialty string
		status    string
	)

	cmd := &cobra.Command{
		Use:   "add NAME PORT",
		Short: "Register a bot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var port int
			if _, err := fmt.Sscanf(args[1], "%d", &port); err != nil {
				return fmt.Errorf("invalid port %q", args[1])
			}
			s, err := domain.ParseBotStatus(status)
			if err != nil {
				return err
			}

			return withApp(cfgPath(), func(a *app) error {
				bot := domain.Bot{Name: args[0], Port: port, Specialty: specialty, Status: s}
				if err := a.registry.Add(bot); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s on port %d\n", bot.Name, bot.Port)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&specialty, "specialty", "", "specialty tag")
	cmd.Flags().StringVar(&status, "status", string(domain.BotOffline), "initial status (online or offline)")
	return cmd
}

func newRemoveCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfgPath(), func(a *app) error {
				if err := a.registry.Remove(args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newSetStatusCmd(cfgPath func() string, use, short string, status domain.BotStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfgPath(), func(a *app) error {
				if err := a.registry.SetStatus(args[0], status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[0], status)
				return nil
			})
		},
	}
}

func newSetAllCmd(cfgPath func() string, use, short string, status domain.BotStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfgPath(), func(a *app) error {
				changed, err := a.registry.SetAllStatus(status)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d bots now %s\n", len(changed), status)
				return nil
			})
		},
	}
}

// campaignFlags are shared by run and tui
type campaignFlags struct {
	target    string
	port      int
	operation string
	intensity int
	bots      []string
}

func (f *campaignFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.target, "target", "127.0.0.1", "target address")
	cmd.Flags().IntVar(&f.port, "port", 80, "target port")
	cmd.Flags().StringVar(&f.operation, "operation", string(domain.OpProbe), "operation (probe, load_test, scan, custom)")
	cmd.Flags().IntVar(&f.intensity, "intensity", 5, "intensity 1-10")
	cmd.Flags().StringSliceVar(&f.bots, "bots", nil, "participating bots (default: all online)")
}

func (f *campaignFlags) spec() (domain.CampaignSpec, error) {
	op, err := domain.ParseOperationKind(f.operation)
	if err != nil {
		return domain.CampaignSpec{}, err
	}
	spec := domain.CampaignSpec{
		TargetAddress: f.target,
		TargetPort:    f.port,
		Operation:     op,
		Intensity:     f.intensity,
		Participants:  f.bots,
	}
	return spec, spec.Validate()
}

func newRunCmd(cfgPath func() string) *cobra.Command {
	var flags campaignFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a campaign and stream its progress (Ctrl-C cancels)",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := flags.spec()
			if err != nil {
				return err
			}

			return withApp(cfgPath(), func(a *app) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return runCampaign(ctx, cmd, a, spec)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// runCampaign starts spec and prints events until the campaign finishes.
// Cancelling ctx cancels the campaign; the stream still runs to the end.
func runCampaign(ctx context.Context, cmd *cobra.Command, a *app, spec domain.CampaignSpec) error {
	out := cmd.OutOrStdout()

	sub := a.hub.Subscribe()
	defer sub.Close()

	id, err := a.orch.Start(spec)
	if err != nil {
		return err
	}

	cancelled := false
	for {
		select {
		case <-ctx.Done():
			if !cancelled {
				cancelled = true
				if err := a.orch.Cancel(); err == nil {
					fmt.Fprintln(out, "Cancelling...")
				}
			}
			ctx = context.Background()

		case e, ok := <-sub.C():
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			if e.CampaignID != id {
				continue
			}
			switch e.Type {
			case events.CampaignStarted:
				fmt.Fprintf(out, "Campaign %s: %s\n", id, e.Message)
			case events.Progress:
				fmt.Fprintf(out, "[%3d%%]\n", e.Progress)
			case events.BotFinished:
				fmt.Fprintf(out, "  %s\n", e.Message)
			case events.CampaignFinished:
				fmt.Fprintf(out, "%s\n", e.Message)
				sum, ok := a.orch.Last()
				if ok && sum.ID == id {
					fmt.Fprintf(out, "Finished in %s\n", sum.Duration().Round(time.Millisecond))
				}
				if e.Phase == domain.PhaseFailed {
					return fmt.Errorf("campaign %s failed", id)
				}
				return nil
			}
		}
	}
}

func newHistoryCmd(cfgPath func() string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show finished campaigns",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfgPath(), func(a *app) error {
				summaries, err := a.store.ListCampaigns(limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tOPERATION\tTARGET\tRESULT\tBOTS\tFAILED\tFINISHED")
				for _, s := range summaries {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
						s.ID, s.Spec.Operation, s.Spec.Target(), s.Phase,
						len(s.Participants), s.Count(domain.OutcomeFailed), humanize.Time(s.FinishedAt))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of campaigns to show")
	return cmd
}

func newImportCmd(cfgPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "import MANIFEST",
		Short: "Add bots from a YAML manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			return withApp(cfgPath(), func(a *app) error {
				rep, err := manifest.Apply(a.registry, m)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Added %d, skipped %d existing\n", len(rep.Added), len(rep.Skipped))
				for name, ferr := range rep.Failed {
					fmt.Fprintf(out, "  %s: %v\n", name, ferr)
				}
				if len(rep.Failed) > 0 {
					return fmt.Errorf("%d bots could not be added", len(rep.Failed))
				}
				return nil
			})
		},
	}
}
