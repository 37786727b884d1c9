package main

import (
	"fmt"
	"os"
	"time"

	"exforge/internal/cli/config"
	httpclient "exforge/internal/cli/http"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/cli.yaml"

var rootFlags struct {
	configPath string
	baseURL    string
	user       string
	timeout    time.Duration
}

var (
	cliConfig config.Config
	client    *httpclient.Client
)

var rootCmd = &cobra.Command{
	Use:   "exercise-cli",
	Short: "Operate programming exercises on an exercise service",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rootFlags.configPath)
		if err != nil {
			return err
		}
		if rootFlags.baseURL != "" {
			cfg.BaseURL = rootFlags.baseURL
		}
		if rootFlags.user != "" {
			cfg.UserLogin = rootFlags.user
		}
		if rootFlags.timeout > 0 {
			cfg.Timeout = rootFlags.timeout
		}
		cliConfig = cfg
		client = httpclient.New(cfg.BaseURL, cfg.Timeout, cfg.UserLogin)
		return nil
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.configPath, "config", defaultConfigPath, "Path to config file")
	f.StringVar(&rootFlags.baseURL, "base", "", "Override base URL")
	f.StringVar(&rootFlags.user, "user", "", "Acting user login")
	f.DurationVar(&rootFlags.timeout, "timeout", 0, "Override HTTP timeout (e.g. 30s)")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(timingCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(decideCmd)
	rootCmd.AddCommand(statementCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
