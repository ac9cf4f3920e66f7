package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/api"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/ffmpeg"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/llm"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/worker"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <input-file>",
	Short: "Transcribe a recording into a diarized transcript",
	Long: `Transcribe an audio or video recording into a speaker-attributed transcript.
Long files are split into chunks, transcribed concurrently, and merged into
one global timeline. Artifacts are written to the output directory under an
incrementing output index.`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var (
	outputDir     string
	participants  string
	maxConcurrent int
	maxRetries    int
	rateLimitRPM  int
	chunkMinutes  int
	noAsync       bool
	noFormat      bool
)

func init() {
	transcribeCmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "artifact directory (default from config)")
	transcribeCmd.Flags().StringVar(&participants, "participants", "", "comma-separated participant names for speaker attribution")
	transcribeCmd.Flags().IntVarP(&maxConcurrent, "max-concurrent", "j", 0, "max concurrent chunk transcriptions")
	transcribeCmd.Flags().IntVar(&maxRetries, "max-retries", 0, "max retries per chunk")
	transcribeCmd.Flags().IntVar(&rateLimitRPM, "rate-limit", 0, "API requests per minute")
	transcribeCmd.Flags().IntVar(&chunkMinutes, "chunk-minutes", 0, "chunk duration ceiling in minutes")
	transcribeCmd.Flags().BoolVar(&noAsync, "no-async", false, "process chunks one at a time")
	transcribeCmd.Flags().BoolVar(&noFormat, "no-format", false, "skip the LLM formatting step")

	rootCmd.AddCommand(transcribeCmd)
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return fmt.Errorf("file not found: %s", args[0])
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !cfg.AllowedExtension(ext) {
		return fmt.Errorf("unsupported file type: %s", ext)
	}
	if !ffmpeg.Available() {
		return fmt.Errorf("ffmpeg not found in PATH; install it to process media files")
	}
	if cfg.API.Key == "" {
		return fmt.Errorf("no API key configured; set OPENAI_API_KEY")
	}

	// Flag overrides on top of config file and env.
	if outputDir != "" {
		cfg.Output.Dir = outputDir
	}
	if maxConcurrent > 0 {
		cfg.Chunking.MaxConcurrentChunks = maxConcurrent
	}
	if maxRetries > 0 {
		cfg.Chunking.MaxRetries = maxRetries
	}
	if rateLimitRPM > 0 {
		cfg.Chunking.APIRateLimitPerMin = rateLimitRPM
	}
	if chunkMinutes > 0 {
		cfg.Chunking.MaxChunkMinutes = chunkMinutes
	}
	if noAsync {
		cfg.Chunking.MaxConcurrentChunks = 1
	}
	if noFormat {
		cfg.LLM.Enabled = false
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.API.BaseURL, cfg.API.Key, cfg.API.Model,
		cfg.Chunking.MaxRetries, cfg.Chunking.RetryBaseDelay())
	chat := llm.NewOpenAIChat(cfg.API.BaseURL, cfg.API.Key, cfg.LLM.Model)
	formatter := llm.NewFormatter(chat, cfg.LLM.Enabled, cfg.LLM.BatchSize)

	reporter := progress.NewReporter(256)
	go logProgress(reporter)

	runner := worker.NewRunner(cfg, client, formatter, reporter)
	res, err := runner.Run(ctx, worker.Options{
		SourcePath:   absPath,
		Participants: participants,
	})
	reporter.Close()
	if err != nil {
		return err
	}

	if res.Partial {
		slog.Warn("run completed with failed chunks",
			"failed", res.FailedChunks, "chunks", res.TotalChunks)
	}
	if !quiet {
		fmt.Printf("Transcribed %d utterances across %d chunks\n", res.TotalSegments, res.TotalChunks)
		for kind, path := range res.Files {
			fmt.Printf("  %-11s %s\n", kind, path)
		}
	}
	return nil
}

// logProgress mirrors the run's event stream onto the logger so CLI users
// see the same milestones a streaming HTTP client would.
func logProgress(reporter *progress.Reporter) {
	for ev := range reporter.Events() {
		slog.Info(string(ev.Status), eventArgs(ev)...)
	}
}

func eventArgs(ev progress.Event) []any {
	args := make([]any, 0, len(ev.Payload)*2)
	for k, v := range ev.Payload {
		args = append(args, k, v)
	}
	return args
}
