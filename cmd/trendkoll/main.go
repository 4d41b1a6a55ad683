package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elonfeng/trendkoll/internal/logging"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	err := rootCmd().Execute()
	logging.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trendkoll",
		Short:         "Pick today's Swedish trends and publish short explainers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default: from config)")

	root.AddCommand(runCmd())
	root.AddCommand(selectCmd())
	root.AddCommand(daemonCmd())
	root.AddCommand(postsCmd())

	return root
}

func runCmd() *cobra.Command {
	var (
		maxTrends int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Select trends and publish them once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context(), maxTrends, dryRun)
		},
	}

	cmd.Flags().IntVar(&maxTrends, "max", 0, "max posts to publish (default: from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "walk the shortlist without writing anything")
	return cmd
}

func selectCmd() *cobra.Command {
	var (
		jsonOutput bool
		maxTotal   int
	)

	cmd := &cobra.Command{
		Use:   "select",
		Short: "Show the ranked shortlist without publishing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(cmd.Context(), jsonOutput, maxTotal)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&maxTotal, "max", 0, "shortlist size (default: 3x max trends)")
	return cmd
}

func daemonCmd() *cobra.Command {
	var (
		every string
		port  int
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Publish on a schedule and serve the status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), every, port)
		},
	}

	cmd.Flags().StringVar(&every, "every", "", "run interval, e.g. 3h (default: from config)")
	cmd.Flags().IntVar(&port, "port", 8080, "status API port (0 disables)")
	return cmd
}

func postsCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "posts",
		Short: "List posts in the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPosts(cmd.Context(), jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 20, "max posts to show")
	return cmd
}
