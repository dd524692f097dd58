package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"battle-loadtest/internal/api"
	"battle-loadtest/internal/config"
)

var (
	serveAddr     string
	serveEndpoint string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for launching scenarios",
	Long:  "serve exposes JSON endpoints to start presets and read results, a Prometheus /metrics endpoint and a /ws event stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint := config.ResolveEndpoint(serveEndpoint, nil)

		fmt.Println("battle-loadtest - API Server")
		fmt.Println("============================")
		fmt.Printf("Starting server on http://%s (target %s)\n", serveAddr, endpoint)
		fmt.Println("Press Ctrl+C to stop")
		fmt.Println()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server, err := api.NewServer(serveAddr, endpoint)
		if err != nil {
			return err
		}
		return server.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "サーバーアドレス (例: :8080, 0.0.0.0:3000)")
	serveCmd.Flags().StringVar(&serveEndpoint, "endpoint", "", "シナリオの接続先")
}
