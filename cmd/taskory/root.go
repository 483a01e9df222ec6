package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "taskory",
		Short:         "Plan and execute user requests as task graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("provider", "claude", "LLM provider (claude, openai, gemini)")
	flags.String("model", "", "model name override")
	flags.String("workdir", ".", "root directory for the file capability")
	flags.String("snapshot-dir", "", "directory for session snapshots (disabled when empty)")
	flags.String("mode", "manual", "execution mode (manual, disabled)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("gcp-project", "", "Google Cloud project for the gemini provider")
	flags.String("gcp-location", "us-central1", "Google Cloud location for the gemini provider")

	cobra.CheckErr(viper.BindPFlags(flags))
	viper.SetEnvPrefix("taskory")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	cmd.AddCommand(chatCmd(), serveCmd())
	return cmd
}
