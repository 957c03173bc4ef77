package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gateway/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the gateway configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration file",
	Long: `Write the default configuration as YAML. The weather API key is left empty;
set it in the file or through GATEWAY_WEATHER_API_KEY (a .env file is also read).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "gateway.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
