// Package server exposes the transcription pipeline over HTTP. Uploads are
// spooled to a temporary file and handed to a worker run; clients can
// either wait for the final JSON result or subscribe to the run's progress
// stream over Server-Sent Events with ?stream=true.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/config"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/llm"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/progress"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/teams"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/worker"
)

// RunFunc executes one transcription run. Indirected so handler tests can
// substitute a fake pipeline.
type RunFunc func(ctx context.Context, reporter *progress.Reporter, opts worker.Options) (*worker.RunResult, error)

// Server routes HTTP requests into the pipeline.
type Server struct {
	cfg       *config.Config
	run       RunFunc
	formatter *llm.Formatter
	engine    *gin.Engine

	// download fetches a remote media URL to a local file, swappable in
	// tests.
	download func(ctx context.Context, rawURL, destPath string) error
}

// New builds a server around the given run function.
func New(cfg *config.Config, run RunFunc, formatter *llm.Formatter) *Server {
	if cfg.Server.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{
		cfg:       cfg,
		run:       run,
		formatter: formatter,
		engine:    gin.New(),
		download:  downloadFile,
	}
	s.engine.Use(gin.Recovery(), requestLogger())

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.engine.POST("/transcribe-with-diarization", s.handleTranscribe)
	s.engine.POST("/transcribe-from-url", s.handleTranscribeFromURL)
	s.engine.POST("/upload-teams-transcript", s.handleTeamsTranscript)
	return s
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe blocks serving HTTP until the listener fails.
func (s *Server) ListenAndServe() error {
	addr := ":" + s.cfg.Server.Port
	slog.Info("http server listening", "addr", addr, "env", s.cfg.Server.Env)
	return s.engine.Run(addr)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		slog.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(started).Round(time.Millisecond))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleTranscribe(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !s.cfg.AllowedExtension(ext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported file type %q", ext),
		})
		return
	}

	dir, err := os.MkdirTemp("", "upload-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spool upload"})
		return
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, sourcePath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spool upload"})
		return
	}

	s.execute(c, worker.Options{
		SourcePath:   sourcePath,
		Participants: c.PostForm("participants"),
	})
}

func (s *Server) handleTranscribeFromURL(c *gin.Context) {
	var req struct {
		URL          string `json:"url" binding:"required"`
		Participants string `json:"participants"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be http or https"})
		return
	}

	name := filepath.Base(parsed.Path)
	ext := strings.ToLower(filepath.Ext(name))
	if !s.cfg.AllowedExtension(ext) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("unsupported file type %q", ext),
		})
		return
	}

	dir, err := os.MkdirTemp("", "download-*")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "spool download"})
		return
	}
	defer os.RemoveAll(dir)

	sourcePath := filepath.Join(dir, name)
	if err := s.download(c.Request.Context(), req.URL, sourcePath); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": fmt.Sprintf("download failed: %v", err)})
		return
	}

	s.execute(c, worker.Options{
		SourcePath:   sourcePath,
		Participants: req.Participants,
	})
}

// execute dispatches a run in streaming or blocking mode.
func (s *Server) execute(c *gin.Context, opts worker.Options) {
	if c.Query("stream") == "true" {
		s.executeStream(c, opts)
		return
	}

	reporter := progress.NewReporter(1024)
	res, err := s.run(c.Request.Context(), reporter, opts)
	reporter.Close()
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  err.Error(),
			"run_id": reporter.RunID(),
		})
		return
	}
	c.JSON(http.StatusOK, runResponse(reporter.RunID(), res))
}

// executeStream runs the pipeline in the background and relays its progress
// events as SSE frames. The final frame carries the run result or error.
func (s *Server) executeStream(c *gin.Context, opts worker.Options) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	reporter := progress.NewReporter(256)

	type done struct {
		res *worker.RunResult
		err error
	}
	doneCh := make(chan done, 1)
	go func() {
		res, err := s.run(c.Request.Context(), reporter, opts)
		reporter.Close()
		doneCh <- done{res: res, err: err}
	}()

	for ev := range reporter.Events() {
		writeSSE(c, ev)
	}

	final := <-doneCh
	if final.err == nil {
		writeSSE(c, gin.H{
			"status": "result",
			"run_id": reporter.RunID(),
			"result": runResponse(reporter.RunID(), final.res),
		})
	}
}

func writeSSE(c *gin.Context, v any) {
	blob, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "data: %s\n\n", blob)
	c.Writer.Flush()
}

func runResponse(runID string, res *worker.RunResult) gin.H {
	return gin.H{
		"run_id":        runID,
		"output_index":  res.OutputIndex,
		"chunks":        res.TotalChunks,
		"utterances":    res.TotalSegments,
		"partial":       res.Partial,
		"failed_chunks": res.FailedChunks,
		"speakers":      res.Timeline.Speakers(),
		"duration_sec":  res.Timeline.Duration(),
		"files":         res.Files,
	}
}

func (s *Server) handleTeamsTranscript(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".vtt" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a .vtt transcript"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "read upload"})
		return
	}

	utterances, err := teams.ParseVTT(string(content))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	formatted, err := s.formatter.Format(c.Request.Context(), utterances, c.PostForm("participants"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"utterances":   len(utterances),
		"formatted":    formatted.Formatted,
		"summary":      formatted.Summary,
		"action_items": formatted.ActionItems,
	})
}

// downloadFile streams a remote media file to disk.
func downloadFile(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return out.Sync()
}
