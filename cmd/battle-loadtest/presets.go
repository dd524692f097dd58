package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"battle-loadtest/internal/chaos"
	"battle-loadtest/internal/scenario"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List preset scenarios, suites and network profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		printPresets(cmd.OutOrStdout())
		return nil
	},
}

// printPresets は利用可能なプリセットを表示する
func printPresets(out io.Writer) {
	fmt.Fprintln(out, "利用可能なプリセットシナリオ:")
	fmt.Fprintln(out)
	for _, name := range scenario.ListPresets() {
		c, _ := scenario.GetPreset(name)
		fmt.Fprintf(out, "  %-22s %-12s %s\n", name, c.Kind, c.Description)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "スイート:")
	fmt.Fprintln(out)
	for _, name := range scenario.ListSuites() {
		configs, _ := scenario.GetSuite(name)
		fmt.Fprintf(out, "  %-14s %d scenarios\n", name, len(configs))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "ネットワークプロファイル:")
	fmt.Fprintln(out)
	for _, name := range chaos.ListProfiles() {
		p, _ := chaos.Preset(name)
		fmt.Fprintf(out, "  %s\n", p)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "使用例: battle-loadtest run --preset quick")
}
