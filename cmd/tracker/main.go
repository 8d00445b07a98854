// Package main provides the tracker command line client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuongbtq/application-tracker/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "tracker",
	Short:         "Track job applications",
	Long:          "tracker creates, lists, updates and deletes job applications against the tracker API and follows changes made elsewhere.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var configPath string

func init() {
	defaultConfigPath := os.Getenv("TRACKER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/tracker.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
}

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
