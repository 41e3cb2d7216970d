package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"operatorkit/internal/app"
	"operatorkit/internal/config"
	"operatorkit/internal/operators"
	"operatorkit/internal/registry"
	"operatorkit/pkg/logging"
)

// runFlags are the command line overrides of the run command.
type runFlags struct {
	namespaces  []string
	crd         bool
	metrics     bool
	metricsPort int
	interval    time.Duration
	kubeconfig  string
	logLevel    string
	logFormat   string
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start every registered operator",
		Long: `Starts every registered and enabled operator in each watched namespace and
blocks until SIGINT or SIGTERM.

Configuration is layered: built-in defaults, then the --config file, then
environment variables (WATCH_NAMESPACE, FULL_RECONCILIATION_INTERVAL_S, CRD,
METRICS, METRICS_PORT, ...), then the flags of this command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadRunConfig(cmd.Flags(), flags)
			if err != nil {
				return err
			}
			return runOperators(cmd, cfg)
		},
	}

	addRunFlags(cmd.Flags(), flags)
	return cmd
}

func addRunFlags(f *pflag.FlagSet, flags *runFlags) {
	f.StringSliceVarP(&flags.namespaces, "namespace", "n", nil, `namespaces to watch ("~" current, "*" all)`)
	f.BoolVar(&flags.crd, "crd", false, "use custom resources for every operator")
	f.BoolVar(&flags.metrics, "metrics", false, "serve Prometheus metrics")
	f.IntVar(&flags.metricsPort, "metrics-port", config.DefaultMetricsPort, "port of the metrics endpoint")
	f.DurationVar(&flags.interval, "interval", config.DefaultInterval, "interval between full reconciliations")
	f.StringVar(&flags.kubeconfig, "kubeconfig", "", "path to the kubeconfig file")
	f.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")
}

// loadRunConfig loads the layered configuration and applies the flags that
// were set explicitly.
func loadRunConfig(fs *pflag.FlagSet, flags *runFlags) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		if err := config.LoadFile(configPath, &cfg); err != nil {
			return config.Config{}, err
		}
	}
	if err := config.ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return config.Config{}, err
	}

	if fs.Changed("namespace") {
		cfg.Namespaces = flags.namespaces
	}
	if fs.Changed("crd") {
		cfg.CRD = flags.crd
	}
	if fs.Changed("metrics") {
		cfg.Metrics.Enabled = flags.metrics
	}
	if fs.Changed("metrics-port") {
		cfg.Metrics.Port = flags.metricsPort
	}
	if fs.Changed("interval") {
		cfg.Reconciliation.Interval = flags.interval
	}
	if fs.Changed("kubeconfig") {
		cfg.Kubeconfig = flags.kubeconfig
	}
	if fs.Changed("log-level") {
		cfg.Log.Level = flags.logLevel
	}
	if fs.Changed("log-format") {
		cfg.Log.Format = flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func initLogging(cfg config.Config, cmd *cobra.Command) {
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logging.Init(logging.Format(cfg.Log.Format), level, cmd.ErrOrStderr())
}

func runOperators(cmd *cobra.Command, cfg config.Config) error {
	initLogging(cfg, cmd)

	r := registry.New()
	if err := operators.RegisterAll(r); err != nil {
		return err
	}

	application, err := app.NewApplication(cfg, app.Options{Registry: r, Version: GetVersion()})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}
