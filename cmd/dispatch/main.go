package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/deusflow/dispatch/internal/app"
	"github.com/deusflow/dispatch/internal/config"
	"github.com/deusflow/dispatch/internal/logger"
	"github.com/deusflow/dispatch/internal/pipeline"
)

var (
	layoutPath string
	debugMode  bool
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Turn the day's news into branded, delivered social posts",
	Long: `dispatch gathers articles from the configured news providers, lets a
language model pick and rewrite one story per layout slot, composes a
branded image for each and hands the results to the automation webhooks.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one run and print the slot outcomes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		run, runErr := a.RunOnce(ctx)
		printSummary(run.Snapshot())
		if runErr != nil {
			return fmt.Errorf("run failed: %w", runErr)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP run trigger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		p := a.Config.HTTPPort
		if port > 0 {
			p = port
		}
		return a.Serve(ctx, p)
	},
}

func setup(ctx context.Context) (*app.App, error) {
	logger.Init(debugMode)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if layoutPath == "" {
		layoutPath = cfg.LayoutPath
	}
	layout, err := config.LoadLayout(layoutPath)
	if err != nil {
		return nil, err
	}
	logger.Info("configuration loaded",
		"ai_provider", cfg.AIProvider,
		"upload_provider", cfg.UploadProvider,
		"slots", len(layout.Slots),
		"history_backend", cfg.HistoryBackend,
	)
	return app.New(ctx, cfg, layout, logger.Logger)
}

func printSummary(s pipeline.Snapshot) {
	fmt.Printf("\nRun %s: %d articles gathered\n", s.ID, s.Articles)
	for _, slot := range s.Slots {
		switch {
		case slot.Status == pipeline.StatusDone && slot.Result != nil:
			fmt.Printf("  [done]  %-24s %s\n          %s\n", slot.Name, slot.Result.Headline, slot.Result.ImageURL)
		default:
			fmt.Printf("  [%s] %-24s %s\n", slot.Status, slot.Name, slot.Error)
		}
	}
	if s.FatalError != "" {
		fmt.Printf("Run failed: %s\n", s.FatalError)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&layoutPath, "layout", "", "Path to the slot layout YAML (default: built-in layout)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP port (default: HTTP_PORT)")

	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
