package main

import (
	"os"

	"golang.org/x/term"

	"battle-loadtest/internal/scenario"
)

// reportOptions は出力先が端末なら幅と色を合わせる
func reportOptions(f *os.File, disableColor bool) scenario.ReportOptions {
	opts := scenario.ReportOptions{Width: scenario.DefaultReportWidth}

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return opts
	}
	if width, _, err := term.GetSize(fd); err == nil && width > 40 {
		opts.Width = min(width, 120)
	}
	opts.Color = !disableColor && os.Getenv("NO_COLOR") == ""
	return opts
}
