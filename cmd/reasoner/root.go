package main

import (
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/wbrown/janus-reasoner/datalog/annotations"
	"github.com/wbrown/janus-reasoner/datalog/metrics"
	"github.com/wbrown/janus-reasoner/datalog/planner"
)

const (
	configFlag       = "config"
	logFormatFlag    = "log-format"
	logLevelFlag     = "log-level"
	statsDBFlag      = "stats-db"
	verboseFlag      = "verbose"
	metricsFlag      = "metrics"
	plannerFlag      = "planner"
	maxOrderingsFlag = "max-orderings-warning"
)

// env is what every subcommand shares: resolved configuration, the logger
// and the metrics registry of this invocation.
type env struct {
	config   *viper.Viper
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	stderr   io.Writer
}

// newRootCommand reads settings from flags, then REASONER_* environment
// variables, then the --config file or reasoner.yaml in the working
// directory or ~/.reasoner.
func newRootCommand() *cobra.Command {
	config := viper.New()
	config.SetConfigName("reasoner")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")
	config.AddConfigPath("$HOME/.reasoner")
	config.SetEnvPrefix("REASONER")
	config.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	config.AutomaticEnv()

	e := &env{config: config, stderr: os.Stderr}

	root := &cobra.Command{
		Use:   "reasoner",
		Short: "Plan queries over recursive deductive programs",
		Long: `reasoner reads a program of stored relations, rules and queries in EDN
and chooses an execution order for each query, planning mutually recursive
rules jointly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return e.teardown(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String(configFlag, "", "config file (yaml, toml or json)")
	flags.String(logFormatFlag, "text", "log output format: text or json")
	flags.String(logLevelFlag, "none", "log level: none, debug, info, warn or error")
	flags.String(statsDBFlag, "", "badger directory with stored relation statistics")
	flags.BoolP(verboseFlag, "v", false, "print planner events to stderr")
	flags.Bool(metricsFlag, false, "print planner metrics after the command")
	flags.String(plannerFlag, planner.KindRecursive, "planner to use: recursive or greedy")
	flags.Int(maxOrderingsFlag, planner.DefaultOptions().MaxOrderingsWarning, "warn when a call mode has more orderings than this (0 disables)")
	mustBindPFlags(config, flags)

	root.AddCommand(newPlanCommand(e))
	root.AddCommand(newGraphCommand(e))
	root.AddCommand(newStatsCommand(e))
	return root
}

func mustBindPFlags(config *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if err := config.BindPFlag(f.Name, f); err != nil {
			panic("failed to bind pflag: " + err.Error())
		}
	})
}

func (e *env) setup(cmd *cobra.Command) error {
	if file := e.config.GetString(configFlag); file != "" {
		e.config.SetConfigFile(file)
	}
	if err := e.config.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing {
			return err
		}
	}
	e.stderr = cmd.ErrOrStderr()

	logger, err := newLogger(e.config.GetString(logFormatFlag), e.config.GetString(logLevelFlag))
	if err != nil {
		return err
	}
	e.logger = logger

	if e.config.GetBool(metricsFlag) {
		e.registry = prometheus.NewRegistry()
		e.metrics = metrics.New(e.registry)
	}
	return nil
}

func (e *env) teardown(cmd *cobra.Command) error {
	defer func() { _ = e.logger.Sync() }()
	if e.registry == nil {
		return nil
	}
	summary, err := metrics.Summary(e.registry)
	if err != nil {
		return err
	}
	if summary != "" {
		cmd.PrintErrln(summary)
	}
	return nil
}

// annotations returns the event handler the flags ask for, or nil
func (e *env) annotations() annotations.Handler {
	var console, counters annotations.Handler
	if e.config.GetBool(verboseFlag) {
		console = annotations.NewOutputFormatter(e.stderr).Handle
	}
	if e.metrics != nil {
		counters = e.metrics.Handle
	}
	return annotations.Fanout(console, counters)
}

func (e *env) plannerOptions() planner.Options {
	return planner.Options{
		Logger:              e.logger,
		Annotations:         e.annotations(),
		MaxOrderingsWarning: e.config.GetInt(maxOrderingsFlag),
	}
}
