// Package cmd implements the facetex command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"facetex/internal/config"
	"facetex/internal/logger"
	"facetex/internal/version"
)

var (
	cfgPath  string
	logLevel string
	logFile  string

	// cfg is the loaded configuration shared by subcommands.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "facetex",
	Short:   "Project a photograph onto the UV texture of a 3D face mesh",
	Version: version.String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if logFile != "" {
			cfg.Logging.LogFile = logFile
		}
		logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("facetex %s\n", version.String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to yaml config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Optional log file with rotation")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
