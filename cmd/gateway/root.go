package main

import (
	"github.com/spf13/cobra"
)

// version はビルド時に -ldflags "-X main.version=..." で上書きする
var version = "dev"

var configFile string

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Caching HTTP gateway for the weather API and issue sentiment reports",
	Long: `gateway accepts HTTP requests, serves cached upstream responses and fetches
missing ones exactly once per key. Connections are scheduled by one of three
strategies: spawn (goroutine per connection), pool (bounded workers and queue)
or pipeline (ordered acceptor channel with asynchronous handlers).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("gateway version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Config file (default: ./gateway.yaml or ./configs/gateway.yaml)")
}
