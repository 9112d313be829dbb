package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mgpai22/vaani/internal/logging"
	"github.com/mgpai22/vaani/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the upload page and HTTP API",
	Long: `Start an HTTP server with a page for uploading or recording a lecture
and a JSON API for runs.

  GET    /                           upload and microphone page
  POST   /api/runs                   multipart field "audio", returns run_id
  GET    /api/runs/:id               run status and report
  GET    /api/runs/:id/clips/:index  clip audio
  GET    /api/runs/:id/captions      captions (?format=vtt|srt&style=clips|words)
  DELETE /api/runs/:id               cancel the run and remove its files
  GET    /healthz, /metrics

Examples:
  vaani serve
  vaani serve --port 9000`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addTranscribeFlags(serveCmd)
	addSummarizeFlags(serveCmd)
	addSegmentFlags(serveCmd)
	serveCmd.Flags().
		String("port", "", "Port to listen on (default from PORT, 8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := applyTranscribeFlags(cmd, cfg); err != nil {
		return err
	}
	if err := applySummarizeFlags(cmd, cfg); err != nil {
		return err
	}
	applySegmentFlags(cmd, cfg)
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// the server logs JSON unless running interactively with -v
	if !verbose {
		jsonLogger, err := logging.NewJSONLogger(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
		logger = jsonLogger
	}
	defer logger.Sync()

	runner, err := newRunner(ctx, cfg, "")
	if err != nil {
		return err
	}

	srv := server.New(runner, server.Config{
		Addr:           ":" + cfg.Port,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		Retention:      cfg.RunRetention,
	}, logger.Named("server"))

	return srv.ListenAndServe(ctx)
}
