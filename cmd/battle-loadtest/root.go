package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"battle-loadtest/internal/logger"
)

// errVerdictFailed は少なくとも1つのシナリオが FAIL だったことを表す
var errVerdictFailed = errors.New("one or more scenarios failed")

var (
	logLevel string
	noColor  bool
)

var rootCmd = &cobra.Command{
	Use:   "battle-loadtest",
	Short: "Load and chaos testing for the battle matchmaking service",
	Long: `battle-loadtest drives virtual players against a websocket battle server,
degrades their network on demand and judges each scenario PASS or FAIL.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.Default.SetLevel(level)
		logger.Default.SetOutput(os.Stderr)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errVerdictFailed) {
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "ログレベル (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "レポートの色付けを無効化")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(presetsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mockServerCmd)
}
