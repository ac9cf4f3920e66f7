package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/metrics"
	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-transcribe-diarize"
	uploadTimeout  = 30 * time.Minute
)

// Transcriber is the boundary to the hosted diarization model: one chunk's
// audio in, chunk-local utterances out. The raw response body is returned
// alongside for the raw output artifact.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*pipeline.DiarizedResponse, json.RawMessage, error)
}

// ProgressFunc is called with (bytesRead, totalBytes) during upload.
type ProgressFunc func(bytesRead, totalBytes int64)

// Client uploads chunk audio to the diarization endpoint. It owns the retry
// policy: transient failures (rate limiting, 5xx, transport errors) are
// retried with exponential backoff up to MaxRetries attempts; anything else
// fails immediately.
type Client struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
	BaseDelay  time.Duration
	Progress   ProgressFunc

	httpClient *http.Client
}

// NewClient creates a transcription client. Zero-value fields fall back to
// the service defaults.
func NewClient(baseURL, apiKey, model string, maxRetries int, baseDelay time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if model == "" {
		model = defaultModel
	}
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if baseDelay <= 0 {
		baseDelay = 3 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		APIKey:     apiKey,
		Model:      model,
		MaxRetries: maxRetries,
		BaseDelay:  baseDelay,
		Progress:   logUploadProgress,
		httpClient: &http.Client{Timeout: uploadTimeout},
	}
}

// logUploadProgress is the default Progress callback.
func logUploadProgress(read, total int64) {
	pct := 0.0
	if total > 0 {
		pct = math.Min(float64(read)/float64(total)*100, 100)
	}
	slog.Debug("upload progress", "percent", fmt.Sprintf("%.1f%%", pct))
}

// Transcribe uploads one chunk and decodes the diarized response. A
// well-formed response with no segments is a valid zero-utterance result,
// not an error.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*pipeline.DiarizedResponse, json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= c.MaxRetries; attempt++ {
		resp, raw, err := c.transcribeOnce(ctx, audioPath)
		if err == nil {
			return resp, raw, nil
		}
		lastErr = err

		if !isTransient(err) {
			return nil, nil, err
		}
		if attempt == c.MaxRetries {
			break
		}

		metrics.RecordRetry()
		backoff := c.BaseDelay << uint(attempt-1)
		slog.Warn("transcription attempt failed, retrying",
			"file", filepath.Base(audioPath),
			"attempt", attempt,
			"backoff", backoff,
			"err", err)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, nil, fmt.Errorf("all %d attempts failed: %w", c.MaxRetries, lastErr)
}

// statusError marks an HTTP failure so isTransient can classify by code.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// isTransient reports whether a failure is worth retrying: rate limits,
// server-side errors, and transport-level resets. Client errors (4xx other
// than 429) are permanent.
func isTransient(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "broken pipe")
}

// progressReader wraps an io.Reader and reports upload progress.
type progressReader struct {
	reader   io.Reader
	total    int64
	read     int64
	callback ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.read += int64(n)
	if pr.callback != nil {
		pr.callback(pr.read, pr.total)
	}
	return n, err
}

// mimeFromExt returns the MIME type for common audio extensions.
func mimeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".mp3":
		return "audio/mp3"
	case ".m4a":
		return "audio/m4a"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".aac":
		return "audio/aac"
	case ".webm":
		return "audio/webm"
	default:
		return "application/octet-stream"
	}
}

func (c *Client) transcribeOnce(ctx context.Context, audioPath string) (*pipeline.DiarizedResponse, json.RawMessage, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat file: %w", err)
	}
	fileSize := stat.Size()

	// Build multipart form body using a pipe.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	errCh := make(chan error, 1)
	go func() {
		defer pw.Close()
		defer mw.Close()

		if err := mw.WriteField("model", c.Model); err != nil {
			errCh <- err
			return
		}
		if err := mw.WriteField("response_format", "diarized_json"); err != nil {
			errCh <- err
			return
		}
		if err := mw.WriteField("chunking_strategy", "auto"); err != nil {
			errCh <- err
			return
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(audioPath)))
		h.Set("Content-Type", mimeFromExt(filepath.Ext(audioPath)))
		part, err := mw.CreatePart(h)
		if err != nil {
			errCh <- err
			return
		}

		if _, err := io.Copy(part, f); err != nil {
			errCh <- err
			return
		}

		errCh <- nil
	}()

	// Estimate total size: file size + ~1KB form overhead.
	body := &progressReader{
		reader:   pr,
		total:    fileSize + 1024,
		callback: c.Progress,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if writeErr := <-errCh; writeErr != nil {
		return nil, nil, fmt.Errorf("multipart write error: %w", writeErr)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &statusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var diarized pipeline.DiarizedResponse
	if err := json.Unmarshal(raw, &diarized); err != nil {
		// Malformed model output counts as zero utterances for the
		// chunk, but the raw body is still kept for the archive.
		slog.Warn("malformed diarization response, treating as empty",
			"file", filepath.Base(audioPath), "err", err)
		return &pipeline.DiarizedResponse{}, raw, nil
	}

	return &diarized, raw, nil
}
