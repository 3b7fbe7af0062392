package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/basekick-labs/databayes/internal/backend"
	"github.com/basekick-labs/databayes/internal/config"
	"github.com/basekick-labs/databayes/internal/logger"
	"github.com/basekick-labs/databayes/internal/metrics"
	"github.com/basekick-labs/databayes/internal/objcore"
	"github.com/basekick-labs/databayes/internal/registry"
	"github.com/basekick-labs/databayes/internal/shutdown"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

// app carries the state shared by every subcommand
type app struct {
	configFile string
	flags      globalFlags

	cfg      *config.Config
	registry *objcore.Registry
	out      io.Writer
	errOut   io.Writer
}

// globalFlags override the loaded configuration when set
type globalFlags struct {
	backendFile string
	section     string
	class       string
	logLevel    string
	metrics     bool
}

func main() {
	a := &app{registry: objcore.Default, out: os.Stdout, errOut: os.Stderr}
	if err := a.rootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "databayes",
		Short: "Uniform CRUD access to time-series and document stores",
		Long: `databayes builds a backend from a YAML document selected by its "cls" key
and runs one operation against it: put, get, update, delete, size or reset.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "Config file (default: search databayes.yaml)")
	pf.StringVarP(&a.flags.backendFile, "backend", "b", "", "Backend YAML document")
	pf.StringVar(&a.flags.section, "section", "", "Top-level section of the backend document")
	pf.StringVar(&a.flags.class, "class", "", "Force the backend type, ignoring the document's cls")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.BoolVar(&a.flags.metrics, "metrics", false, "Print operation metrics to stderr when done")

	root.AddCommand(
		a.putCommand(),
		a.getCommand(),
		a.updateCommand(),
		a.deleteCommand(),
		a.sizeCommand(),
		a.resetCommand(),
		a.typesCommand(),
		&cobra.Command{
			Use:   "version",
			Short: "Show version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(a.out, "databayes %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			},
		},
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}

	if a.flags.backendFile != "" {
		cfg.Backend.File = a.flags.backendFile
	}
	if a.flags.section != "" {
		cfg.Backend.Section = a.flags.section
	}
	if a.flags.class != "" {
		cfg.Backend.Class = a.flags.class
	}
	if a.flags.logLevel != "" {
		cfg.Log.Level = a.flags.logLevel
	}
	if a.flags.metrics {
		cfg.Metrics.Enabled = true
	}

	logger.SetupWriter(a.errOut, cfg.Log.Level, cfg.Log.Format)
	a.cfg = cfg
	return nil
}

// loadBackend builds the configured backend and applies the overrides
func (a *app) loadBackend() (backend.Backend, error) {
	var opts []objcore.LoadOption
	if a.cfg.Backend.Section != "" {
		opts = append(opts, objcore.WithSection(a.cfg.Backend.Section))
	}
	if a.cfg.Backend.Class != "" {
		opts = append(opts, objcore.WithDiscriminator(a.cfg.Backend.Class))
	}

	b, err := registry.LoadBackend(a.registry, a.cfg.Backend.File, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load backend from %s: %w", a.cfg.Backend.File, err)
	}
	if err := objcore.Update(b, a.cfg.Backend.Overrides); err != nil {
		return nil, fmt.Errorf("failed to apply backend overrides: %w", err)
	}
	return b, nil
}

// withBackend runs fn against a connected backend under the configured
// timeout and closes it afterwards.
func (a *app) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b backend.Backend) error) error {
	b, err := a.loadBackend()
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, watcher := shutdown.Watch(parent, log.Logger)
	defer watcher.Stop()
	if a.cfg.Backend.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Backend.Timeout)
		defer cancel()
	}

	name, _ := a.registry.NameOf(b)
	log.Debug().Str("backend", name).Str("file", a.cfg.Backend.File).Msg("Backend loaded")

	err = backend.Use(ctx, b, func(b backend.Backend) error { return fn(ctx, b) })

	if a.cfg.Metrics.Enabled {
		if merr := metrics.WriteText(a.errOut); merr != nil {
			log.Error().Err(merr).Msg("Failed to write metrics")
		}
	}
	return err
}
