package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"battle-loadtest/internal/mockserver"
)

var (
	mockConfig = mockserver.DefaultConfig()
	mockAddr   string
)

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run a minimal in-process battle server for dry runs",
	Long: `mock-server pairs queued players in arrival order and plays scripted games.
It does not reproduce real matchmaking and exists for local dry runs of the harness.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return mockserver.New(mockConfig).ListenAndServe(ctx, mockAddr)
	},
}

func init() {
	f := mockServerCmd.Flags()
	f.StringVar(&mockAddr, "addr", "localhost:3001", "待ち受けアドレス")
	f.DurationVar(&mockConfig.QueueTimeout, "queue-timeout", mockConfig.QueueTimeout, "MATCHMAKING_TIMEOUT を送るまでの時間 (0で無効)")
	f.IntVar(&mockConfig.MaxRatingGap, "max-rating-gap", mockConfig.MaxRatingGap, "マッチさせるレーティング差の上限 (0で無制限)")
	f.IntVar(&mockConfig.Rounds, "rounds", mockConfig.Rounds, "1ゲームのラウンド数")
	f.DurationVar(&mockConfig.RoundTimeout, "round-timeout", mockConfig.RoundTimeout, "ラウンドの回答待ち時間")
	f.BoolVar(&mockConfig.Silent, "silent", mockConfig.Silent, "診断メッセージと ERROR を返さない")
}
