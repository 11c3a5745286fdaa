package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jllopis/relay/pkg/config"
	"github.com/jllopis/relay/pkg/present"
	"github.com/jllopis/relay/pkg/telemetry"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

// app carries the global flags and the state every command shares.
type app struct {
	configPath string
	profile    string
	sets       []string
	jsonOut    bool
	logLevel   string

	cfg    *config.Config
	level  slog.LevelVar
	logger *slog.Logger

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) (*cobra.Command, *app) {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "relay",
		Short:         "Multi-agent planning with structured handoffs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (YAML)")
	pf.StringVar(&a.profile, "profile", "", "config profile overlay, e.g. dev loads config.dev.yaml")
	pf.StringArrayVar(&a.sets, "set", nil, "override a config key, e.g. --set llm.provider=ollama")
	pf.BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newPlanCmd(a),
		newGameCmd(a),
		newCareerCmd(a),
		newConsultCmd(a),
		newShowCmd(a),
		newModifyCmd(a),
		newServeCmd(a),
		newGraphCmd(a),
		newAuditCmd(a),
		newVersionCmd(a),
	)
	return root, a
}

// load reads configuration and installs the logger. Logs go to errOut so
// that --json output stays parseable.
func (a *app) load() error {
	cfg, err := a.readConfig()
	if err != nil {
		return NewConfigError(err, a.configPath)
	}
	a.cfg = cfg
	telemetry.SetLevel(&a.level, cfg.Log.Level)
	a.logger = telemetry.ConfigureSlogVar(a.errOut, &a.level, cfg.Log.Format)
	return nil
}

// readConfig resolves the configuration with every command line override
// applied. The config watcher reuses it on reload.
func (a *app) readConfig() (*config.Config, error) {
	cfg, err := config.LoadWithOverrides(a.configPath, a.profile, a.sets)
	if err != nil {
		return nil, err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	return cfg, nil
}

// sink renders session progress for the terminal.
func (a *app) sink() present.Sink {
	if a.jsonOut {
		return present.NewJSON(a.out)
	}
	return present.NewConsole(a.out)
}

func execute(ctx context.Context, args []string) int {
	root, a := newRootCmd(os.Stdout, os.Stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		wrapError(err).PrintError(a.errOut, a.jsonOut)
		return 1
	}
	return 0
}
