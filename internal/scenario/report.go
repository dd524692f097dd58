package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"battle-loadtest/internal/verdict"
)

// ReportOptions はレポートの表示設定
type ReportOptions struct {
	Width int  // 0 なら DefaultReportWidth
	Color bool // 端末向けに色を付ける
}

// DefaultReportWidth はレポートの既定の幅
const DefaultReportWidth = 80

const maxReportErrors = 10

type reportStyles struct {
	title   lipgloss.Style
	section lipgloss.Style
	label   lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
	dim     lipgloss.Style
}

func newReportStyles(color bool) reportStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return reportStyles{plain, plain, plain, plain, plain, plain}
	}
	return reportStyles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		section: lipgloss.NewStyle().Bold(true),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		pass:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		fail:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (s reportStyles) outcome(o verdict.Outcome) string {
	if o == verdict.Pass {
		return s.pass.Render(string(o))
	}
	return s.fail.Render(string(o))
}

type reportWriter struct {
	b      strings.Builder
	width  int
	styles reportStyles
}

func (w *reportWriter) rule(ch string) {
	w.b.WriteString(w.styles.dim.Render(strings.Repeat(ch, w.width)))
	w.b.WriteString("\n")
}

func (w *reportWriter) section(name string) {
	w.b.WriteString("\n")
	w.b.WriteString(w.styles.section.Render(name))
	w.b.WriteString("\n")
	w.b.WriteString(w.styles.dim.Render(strings.Repeat("-", len(name))))
	w.b.WriteString("\n")
}

func (w *reportWriter) field(label string, format string, args ...any) {
	line := fmt.Sprintf("  %-20s %s", label+":", fmt.Sprintf(format, args...))
	w.b.WriteString(truncate.StringWithTail(line, uint(w.width), "…"))
	w.b.WriteString("\n")
}

func (w *reportWriter) line(s string) {
	w.b.WriteString(truncate.StringWithTail("  "+s, uint(w.width), "…"))
	w.b.WriteString("\n")
}

func (w *reportWriter) text(s string) {
	for _, l := range strings.Split(wordwrap.String(s, w.width-2), "\n") {
		w.b.WriteString("  " + l + "\n")
	}
}

func newReportWriter(opts ReportOptions) *reportWriter {
	width := opts.Width
	if width <= 0 {
		width = DefaultReportWidth
	}
	return &reportWriter{width: width, styles: newReportStyles(opts.Color)}
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

// Report は結果を既定の設定でフォーマットして返す
func (r *Result) Report() string {
	return r.Render(ReportOptions{})
}

// Render は結果をフォーマットして返す
func (r *Result) Render(opts ReportOptions) string {
	w := newReportWriter(opts)
	m := r.Metrics

	w.rule("=")
	w.b.WriteString(w.styles.title.Render("SCENARIO REPORT: " + r.ScenarioName))
	w.b.WriteString("\n")
	w.rule("=")
	if r.Description != "" {
		w.text(r.Description)
	}

	w.section("EXECUTION SUMMARY")
	w.field("Run ID", "%s", r.RunID)
	w.field("Kind", "%s", r.Kind)
	w.field("Pattern", "%s", r.Pattern)
	w.field("Start Time", "%s", r.StartTime.Format("2006-01-02 15:04:05"))
	w.field("End Time", "%s", r.EndTime.Format("2006-01-02 15:04:05"))
	w.field("Duration", "%v", r.Duration.Round(time.Millisecond))

	w.section("PLAYER OUTCOMES")
	w.field("Attempted", "%d", m.Counts.Attempted)
	w.field("Connected", "%d", m.Counts.Connected)
	w.field("Connect Failed", "%d", m.Counts.ConnectFailed)
	w.field("Matched", "%d", m.Counts.Matched)
	w.field("Timed Out", "%d", m.Counts.TimedOut)
	w.field("Completed", "%d", m.Counts.Completed)
	w.field("Failed", "%d", m.Counts.Failed)
	w.field("Cancelled", "%d", m.Counts.Cancelled)
	if m.Counts.Errored > 0 {
		w.field("Errored", "%d", m.Counts.Errored)
	}
	if r.Sealed > 0 {
		w.field("Abandoned", "%d", r.Sealed)
	}
	w.field("Success Rate", "%s", percent(m.SuccessRate))
	w.field("Match Rate", "%s", percent(m.MatchRate))
	w.field("Queue Efficiency", "%s", percent(m.QueueEfficiency))

	w.section("LATENCY")
	w.field("Connect (mean)", "%.1f ms", m.ConnectLatencyMs.Mean)
	w.field("Connect (p99)", "%.1f ms", m.ConnectLatencyMs.P99)
	if m.MatchWaitMs.Count > 0 {
		w.field("Match Wait (mean)", "%.1f ms", m.MatchWaitMs.Mean)
		w.field("Match Wait (p99)", "%.1f ms", m.MatchWaitMs.P99)
	}

	if m.RatingDiff.Count > 0 {
		w.section("MATCHMAKING")
		w.field("Rating Pairs", "%d", m.RatingDiff.Count)
		w.field("Mean Difference", "%.1f", m.RatingDiff.Mean)
		w.field("Max Difference", "%.1f", m.RatingDiff.Max)
	}

	if len(m.Buckets) > 0 {
		w.section("RATING BUCKETS")
		for _, b := range m.Buckets {
			w.line(fmt.Sprintf("%-8s %4d players  %4d matched  %s", b.Bucket, b.Players, b.Matched, percent(b.MatchRate)))
		}
		w.field("Fairness Variance", "%.4f", m.FairnessVariance)
	}

	if len(m.Bursts) > 1 {
		w.section("BURSTS")
		for _, b := range m.Bursts {
			line := fmt.Sprintf("#%-3d %4d players  success %s  match %s", b.Index, b.Attempted, percent(b.SuccessRate), percent(b.MatchRate))
			if b.QuickExit > 0 {
				line += fmt.Sprintf("  normal %s (%d quick-exit)", percent(b.NormalMatchRate), b.QuickExit)
			}
			if b.Index < len(r.BurstProfiles) && r.BurstProfiles[b.Index] != "" {
				line += "  [" + r.BurstProfiles[b.Index] + "]"
			}
			w.line(line)
		}
		if m.AvgNormalMatchRate > 0 {
			w.field("Avg Normal Match", "%s", percent(m.AvgNormalMatchRate))
		}
	}

	if r.Kind == verdict.KindGame || r.Kind == verdict.KindRecovery || m.GamesCompleted > 0 {
		w.section("GAMES")
		w.field("Games Completed", "%d", m.GamesCompleted)
		w.field("Completion Rate", "%s", percent(m.GameCompletionRate))
		if r.Kind == verdict.KindRecovery || m.Reconnected > 0 {
			w.field("Reconnected", "%d", m.Reconnected)
			w.field("Recovery Rate", "%s", percent(m.RecoveryRate))
			w.field("Resumed Rounds", "%d", m.ResumedRounds)
		}
	}

	if len(m.Probes) > 0 {
		w.section("DIAGNOSTICS")
		for _, p := range m.Probes {
			line := fmt.Sprintf("%-14s %d/%d passed", p.Kind, p.Passed, p.Attempted)
			if p.Sent > 0 {
				line += fmt.Sprintf("  %d/%d acked", p.Acked, p.Sent)
			}
			w.line(line)
		}
		w.field("Pass Rate", "%s", percent(m.ProbePassRate))
	}

	w.section("NETWORK")
	if len(r.BurstProfiles) > 0 && len(m.Bursts) <= 1 {
		w.field("Profiles", "%s", strings.Join(r.BurstProfiles, ", "))
	}
	w.field("Profile Switches", "%d", r.ProfileSwitches)
	w.field("Simulated Drops", "%d", r.SimulatedDrops)
	w.field("Message Timeouts", "%d", m.MessageTimeouts)
	w.field("Connect Failures", "%d", m.ConnectFailures)
	w.field("Connection Drops", "%d", m.ConnectionDrops)
	w.field("Decode Errors", "%d", m.DecodeErrors)
	w.field("Queue Updates", "%d", m.QueueUpdates)

	w.section("VERDICT")
	w.field("Outcome", "%s", w.styles.outcome(r.Verdict.Outcome))
	if r.Verdict.Reason != "" {
		w.text(r.Verdict.Reason)
	}
	for _, c := range r.Verdict.Checks {
		mark := w.styles.pass.Render("✓")
		if !c.Passed {
			mark = w.styles.fail.Render("✗")
			if c.Advisory {
				mark = w.styles.dim.Render("!")
			}
		}
		w.line(mark + " " + c.String())
	}

	if len(m.Errors) > 0 {
		w.section("ERRORS")
		for i, e := range m.Errors {
			if i == maxReportErrors {
				w.line(fmt.Sprintf("... and %d more", len(m.Errors)-maxReportErrors))
				break
			}
			w.line(e)
		}
	}

	w.b.WriteString("\n")
	w.rule("=")
	return w.b.String()
}

// Summary は複数シナリオの結果を一覧にする
func Summary(results []*Result, opts ReportOptions) string {
	w := newReportWriter(opts)

	w.rule("=")
	w.b.WriteString(w.styles.title.Render("TEST SUMMARY"))
	w.b.WriteString("\n")
	w.rule("=")

	passed := 0
	for _, r := range results {
		if r.Passed() {
			passed++
		}
		line := fmt.Sprintf("%-22s %-12s %5d players  success %7s  %s",
			r.ScenarioName, r.Kind, r.Metrics.Counts.Attempted,
			percent(r.Metrics.SuccessRate), w.styles.outcome(r.Verdict.Outcome))
		w.line(line)
	}

	w.b.WriteString("\n")
	overall := w.styles.pass.Render("ALL PASSED")
	if len(results) == 0 || passed < len(results) {
		overall = w.styles.fail.Render("FAILED")
	}
	w.field("Scenarios", "%d/%d passed", passed, len(results))
	w.field("Overall", "%s", overall)
	w.rule("=")
	return w.b.String()
}
