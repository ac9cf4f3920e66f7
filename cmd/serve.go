package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/api"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/ffmpeg"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/llm"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/server"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription HTTP API",
	Long: `Serve exposes the transcription pipeline over HTTP: upload endpoints for
media files and Teams transcripts, optional progress streaming over
Server-Sent Events, a health check, and Prometheus metrics.`,
	RunE: runServe,
}

var servePort string

func init() {
	serveCmd.Flags().StringVarP(&servePort, "port", "p", "", "listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if !ffmpeg.Available() {
		return fmt.Errorf("ffmpeg not found in PATH; install it to process media files")
	}
	if cfg.API.Key == "" {
		return fmt.Errorf("no API key configured; set OPENAI_API_KEY")
	}
	if servePort != "" {
		cfg.Server.Port = servePort
	}

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Model,
		cfg.Chunking.MaxRetries, cfg.Chunking.RetryBaseDelay())
	chat := llm.NewOpenAIChat(cfg.API.BaseURL, cfg.API.Key, cfg.LLM.Model)
	formatter := llm.NewFormatter(chat, cfg.LLM.Enabled, cfg.LLM.BatchSize)

	run := func(ctx context.Context, reporter *progress.Reporter, opts worker.Options) (*worker.RunResult, error) {
		return worker.NewRunner(cfg, client, formatter, reporter).Run(ctx, opts)
	}

	return server.New(cfg, run, formatter).ListenAndServe()
}
