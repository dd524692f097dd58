package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"battle-loadtest/internal/config"
	"battle-loadtest/internal/logger"
	"battle-loadtest/internal/metrics"
	"battle-loadtest/internal/scenario"
	"battle-loadtest/internal/verdict"
)

var (
	runConfigFile  string
	runPresets     []string
	runSuite       string
	runEndpoint    string
	runMetricsAddr string
	runPlayers     int
	runTimeout     time.Duration
	runJSON        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scenarios and print a report",
	Long: `run executes the selected scenarios one after another and prints a report for each.
The exit code is 0 only when every scenario passes.`,
	Example: `  # プリセットシナリオを実行
  battle-loadtest run --preset quick

  # スイートを実行
  battle-loadtest run --suite matchmaking --endpoint ws://localhost:3001

  # 設定ファイルから実行
  battle-loadtest run --config scenarios.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var file *config.FileConfig
		if runConfigFile != "" {
			var err error
			file, err = config.LoadFile(runConfigFile)
			if err != nil {
				return fmt.Errorf("設定ファイル読み込みエラー: %w", err)
			}
			if err := file.Validate(); err != nil {
				return fmt.Errorf("設定検証エラー: %w", err)
			}
		}

		configs, err := buildScenarioConfigs(file, runPresets, runSuite, runPlayers, runTimeout)
		if err != nil {
			return err
		}
		endpoint := config.ResolveEndpoint(runEndpoint, file)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var exporter *metrics.Exporter
		if runMetricsAddr != "" {
			exporter, err = serveMetrics(ctx, runMetricsAddr)
			if err != nil {
				return err
			}
		}

		opts := reportOptions(os.Stdout, noColor)
		results, err := runScenarios(ctx, configs, endpoint, exporter, os.Stdout, opts, runJSON)
		if err != nil {
			return err
		}
		return verdictError(results)
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigFile, "config", "", "設定ファイルパス (YAML/JSON)")
	runCmd.Flags().StringSliceVar(&runPresets, "preset", nil, "プリセットシナリオ名 (複数指定可)")
	runCmd.Flags().StringVar(&runSuite, "suite", "", "スイート名 (connectivity, load, matchmaking, game, network, smoke, all)")
	runCmd.Flags().StringVar(&runEndpoint, "endpoint", "", "接続先 (既定: $"+config.EnvEndpoint+" または "+scenario.DefaultEndpoint+")")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "Prometheus メトリクスを公開するアドレス (例: :9090)")
	runCmd.Flags().IntVar(&runPlayers, "players", 0, "各シナリオのプレイヤー数を上書き")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "各シナリオのタイムアウトを上書き")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "レポートの代わりに JSON を出力")
}

// buildScenarioConfigs は実行するシナリオを決める。
// 設定ファイル、スイート、プリセットの順に並べ、何も指定がなければ quick を実行する
func buildScenarioConfigs(file *config.FileConfig, presets []string, suite string, players int, timeout time.Duration) ([]scenario.Config, error) {
	var configs []scenario.Config

	if file != nil {
		fromFile, err := file.ToScenarioConfigs()
		if err != nil {
			return nil, fmt.Errorf("設定変換エラー: %w", err)
		}
		configs = append(configs, fromFile...)
	}
	if suite != "" {
		fromSuite, ok := scenario.GetSuite(suite)
		if !ok {
			return nil, fmt.Errorf("不明なスイート: %s (利用可能: %v)", suite, scenario.ListSuites())
		}
		configs = append(configs, fromSuite...)
	}
	for _, name := range presets {
		preset, ok := scenario.GetPreset(name)
		if !ok {
			return nil, fmt.Errorf("不明なプリセット: %s (利用可能: %v)", name, scenario.ListPresets())
		}
		configs = append(configs, preset)
	}
	if len(configs) == 0 {
		configs = append(configs, scenario.QuickScenario())
	}

	// フラグでオーバーライド
	for i := range configs {
		if players > 0 {
			configs[i].Load.Players = players
		}
		if timeout > 0 {
			configs[i].Load.Timeout = timeout
		}
		if err := configs[i].Validate(); err != nil {
			return nil, fmt.Errorf("シナリオ %s: %w", configs[i].Name, err)
		}
	}
	return configs, nil
}

// runScenarios はシナリオを順に実行してレポートを書き出す。
// 中断された場合はそこまでの結果を返す
func runScenarios(ctx context.Context, configs []scenario.Config, endpoint string, exporter *metrics.Exporter, out io.Writer, opts scenario.ReportOptions, asJSON bool) ([]*scenario.Result, error) {
	logger.Info("", "Running %d scenario(s) against %s", len(configs), endpoint)

	var results []*scenario.Result
	for _, cfg := range configs {
		if ctx.Err() != nil {
			logger.Warn("", "Interrupted, skipping remaining scenarios")
			break
		}

		engine := scenario.New(cfg, endpoint)
		engine.SetExporter(exporter)
		result, err := engine.Run(ctx)
		if err != nil {
			return results, fmt.Errorf("シナリオ %s の実行エラー: %w", cfg.Name, err)
		}
		results = append(results, result)

		if !asJSON {
			fmt.Fprintln(out, result.Render(opts))
		}
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return results, err
		}
	} else if len(results) > 1 {
		fmt.Fprintln(out, scenario.Summary(results, opts))
	}
	return results, nil
}

// verdictError は全シナリオが PASS でなければ errVerdictFailed を返す
func verdictError(results []*scenario.Result) error {
	verdicts := make([]verdict.Verdict, 0, len(results))
	for _, r := range results {
		verdicts = append(verdicts, r.Verdict)
	}
	if !verdict.All(verdicts) {
		return errVerdictFailed
	}
	return nil
}

// serveMetrics は Prometheus エクスポータを作り /metrics を公開する
func serveMetrics(ctx context.Context, addr string) (*metrics.Exporter, error) {
	registry := prometheus.NewRegistry()
	exporter, err := metrics.NewExporter(registry)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info("", "Metrics available on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("", "Metrics server failed: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return exporter, nil
}
