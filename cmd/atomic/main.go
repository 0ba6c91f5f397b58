package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/atomic-vcs/atomic/internal/config"
	"github.com/atomic-vcs/atomic/internal/logging"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "atomic",
	Short: "a distributed, patch-algebra version control system",
	Long: `atomic tracks changes as a commuting algebra of patches rather than
a linear sequence of snapshots: patches can be pulled, pushed, and
unrecorded in any order their dependencies allow.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("failed to load config, using defaults")
			cfg = config.Default()
		}

		level := logging.INFO
		if verbose {
			level = logging.DEBUG
		}
		if err := logging.Initialize(logging.Config{
			Level:      level,
			OutputFile: cfg.Log.OutputFile,
			JSONFormat: cfg.Log.JSONFormat,
		}); err != nil {
			logger.WithError(err).Warn("failed to initialize structured logging")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .atomic/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetVersionTemplate(`atomic {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(logCmd)
	rootCmd.AddCommand(unrecordCmd)
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(channelCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(cloneCmd)
}
