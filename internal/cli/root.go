package cli

import (
	"fmt"
	"time"

	"github.com/armon/go-metrics"
	"github.com/misalcedo/fermentation/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	debug      bool
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "fermentation",
	Short: "Time-decayed aggregates and heavy hitters over streams",
	Long:  "Fermentation weighs stream items by their age using forward decay, tracks decayed aggregates, and finds decayed heavy hitters with Space-Saving.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error

		if debug {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}

		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the --config file, or returns the defaults when none was given.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}

	return config.Load(configPath)
}

func newMetrics() (*metrics.InmemSink, *metrics.Metrics, error) {
	sink := metrics.NewInmemSink(10*time.Second, time.Minute)

	metricsConfig := metrics.DefaultConfig("fermentation")
	metricsConfig.EnableHostname = false
	metricsConfig.EnableRuntimeMetrics = false

	m, err := metrics.NewGlobal(metricsConfig, sink)
	if err != nil {
		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return sink, m, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable development logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(topkCmd)
	rootCmd.AddCommand(aggregateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(clusterCmd)
}
