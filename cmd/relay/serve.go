package main

import (
	"github.com/spf13/cobra"

	"github.com/jllopis/relay/pkg/config"
	"github.com/jllopis/relay/pkg/coordinator"
	"github.com/jllopis/relay/pkg/server"
	"github.com/jllopis/relay/pkg/session"
	"github.com/jllopis/relay/pkg/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP and websockets",
		Long: `Serve the session API. Sessions started over HTTP stream their
snapshots to websocket subscribers at /api/sessions/{id}/ws. When a config
file is given, changes to its log level apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			shutdown, err := telemetry.Setup(ctx, telemetry.Config{
				ServiceName:  "relay",
				Version:      version,
				Domains:      domainNames(),
				Exporter:     a.cfg.Telemetry.Exporter,
				OTLPEndpoint: a.cfg.Telemetry.OTLPEndpoint,
				OTLPInsecure: a.cfg.Telemetry.OTLPInsecure,
			})
			if err != nil {
				return NewConfigError(err, a.configPath)
			}
			defer shutdown(ctx)

			if a.configPath != "" {
				watcher, _, err := config.WatchProfile(ctx, a.configPath, a.profile,
					config.WithWatchLogger(a.logger),
					config.WithLoader(a.readConfig))
				if err != nil {
					return NewConfigError(err, a.configPath)
				}
				defer watcher.Stop()
				watcher.OnChange(func(c config.Change) {
					if c.Has("log") {
						telemetry.SetLevel(&a.level, c.New.Log.Level)
						a.logger.Info("log level reloaded", "level", c.New.Log.Level)
					}
					if pending := restartSections(c); len(pending) > 0 {
						a.logger.Warn("config changes need a restart", "sections", pending)
					}
				})
			}

			metrics, err := telemetry.NewPipelineMetrics()
			if err != nil {
				return err
			}

			hub := server.NewHub(a.logger)
			rt, err := a.newRuntime(ctx, hub, coordinator.WithMetrics(metrics))
			if err != nil {
				return err
			}
			defer rt.Close()

			a.logger.Info("relay configured",
				"addr", addr,
				"provider", a.cfg.LLM.Provider,
				"session_store", a.cfg.Session.Store,
				"domains", rt.catalog.Domains(),
			)
			return server.New(rt.manager, rt.catalog, hub, a.logger).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

// restartSections lists the changed sections a running server cannot apply.
func restartSections(c config.Change) []string {
	var out []string
	for _, s := range c.Sections {
		if s != "log" {
			out = append(out, s)
		}
	}
	return out
}

func domainNames() []string {
	out := make([]string, 0, len(session.Domains))
	for _, d := range session.Domains {
		out = append(out, string(d))
	}
	return out
}
