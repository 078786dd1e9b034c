package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hochfrequenz/botfleet/internal/manifest"
	"github.com/hochfrequenz/botfleet/internal/notify"
	"github.com/hochfrequenz/botfleet/internal/schedule"
	"github.com/hochfrequenz/botfleet/tui"
	"github.com/hochfrequenz/botfleet/web/api"
)

func newServeCmd(cfgPath func() string) *cobra.Command {
	var (
		port         int
		manifestPath string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API with schedules, manifest watching and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cfgPath(), func(a *app) error {
				if port != 0 {
					a.cfg.Web.Port = port
				}
				if manifestPath != "" {
					a.cfg.General.ManifestPath = manifestPath
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				fmt.Fprintf(cmd.OutOrStdout(), "Serving API at http://%s\n", a.cfg.Web.Addr())
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default from config)")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "manifest to watch for new bots")
	return cmd
}

// serve runs the API server, scheduler, manifest watcher and notifier until
// ctx is done or one of them fails
func serve(ctx context.Context, a *app) error {
	server := api.NewServer(a.registry, a.orch, a.store, a.hub, a.cfg.Web.Addr(), a.logger)

	entries, err := schedule.EntriesFromConfig(a.cfg.Schedules)
	if err != nil {
		return err
	}
	scheduler, err := schedule.NewScheduler(entries, a.orch, a.logger, time.Now())
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Streaming handlers only end once the hub closes
		a.orch.Close()
		a.hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if len(entries) > 0 {
		g.Go(func() error { return scheduler.Run(ctx) })
		for _, name := range scheduler.Names() {
			a.logger.Infow("schedule registered", "schedule", name, "next", scheduler.NextRun(name))
		}
	}

	if notifier := buildNotifier(a); notifier != nil {
		sub := a.hub.Subscribe()
		g.Go(func() error {
			defer sub.Close()
			notify.Watch(ctx, sub, notifier, a.logger)
			return nil
		})
	}

	if path := a.cfg.General.ManifestPath; path != "" {
		w, err := watchManifest(path, a)
		if err != nil {
			return err
		}
		w.Start(ctx)
		g.Go(func() error {
			<-ctx.Done()
			w.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildNotifier(a *app) notify.Notifier {
	var fan notify.Fanout
	if a.cfg.Notifications.Desktop {
		fan = append(fan, notify.NewDesktop())
	}
	if a.cfg.Notifications.SlackWebhook != "" {
		fan = append(fan, notify.NewSlack(a.cfg.Notifications.SlackWebhook, nil))
	}
	if len(fan) == 0 {
		return nil
	}
	return fan
}

// watchManifest imports the manifest once and again after every edit
func watchManifest(path string, a *app) (*manifest.Watcher, error) {
	importManifest := func(p string) {
		m, err := manifest.Load(p)
		if err != nil {
			a.logger.Warnw("reading manifest", "path", p, "error", err)
			return
		}
		rep, err := manifest.Apply(a.registry, m)
		if err != nil {
			a.logger.Warnw("applying manifest", "path", p, "error", err)
			return
		}
		if len(rep.Added) > 0 || len(rep.Failed) > 0 {
			a.logger.Infow("manifest imported", "path", p, "added", rep.Added, "failed", len(rep.Failed))
		}
	}

	if _, err := os.Stat(path); err == nil {
		importManifest(path)
	}
	return manifest.NewWatcher(path, importManifest, a.logger)
}

func newTUICmd(cfgPath func() string) *cobra.Command {
	var flags campaignFlags

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Launch TUI dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := flags.spec()
			if err != nil {
				return err
			}

			return withApp(cfgPath(), func(a *app) error {
				sub := a.hub.Subscribe()
				defer sub.Close()

				model := tui.NewModel(tui.ModelConfig{
					Fleet:     a.registry,
					Campaigns: a.orch,
					History:   a.store,
					Events:    sub,
					Spec:      spec,
				})

				p := tea.NewProgram(model, tea.WithAltScreen())
				_, err := p.Run()
				return err
			})
		},
	}
	flags.register(cmd)
	return cmd
}
