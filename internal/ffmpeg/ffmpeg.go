package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gunjan-ramp/transcription-with-speaker-diarization/internal/pipeline"
)

// MediaInfo holds duration and codec information from ffprobe.
type MediaInfo struct {
	Duration time.Duration
	Codec    string
}

// Available returns true if ffmpeg is on the PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// probeOutput mirrors ffprobe JSON structure.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// ProbeMedia uses ffprobe to get media duration and audio codec.
func ProbeMedia(ctx context.Context, path string) (*MediaInfo, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}

	cmd := exec.CommandContext(ctx,
		"ffprobe",
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name:format=duration",
		"-of", "json",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("ffprobe JSON parse error: %w", err)
	}

	dur, _ := strconv.ParseFloat(probe.Format.Duration, 64)

	codec := "N/A"
	if len(probe.Streams) > 0 && probe.Streams[0].CodecName != "" {
		codec = probe.Streams[0].CodecName
	}

	return &MediaInfo{
		Duration: time.Duration(dur * float64(time.Second)),
		Codec:    codec,
	}, nil
}

// ExtractAudio extracts the audio stream from a video file using ffmpeg -vn -c:a copy.
func ExtractAudio(ctx context.Context, videoPath, outputPath string) error {
	slog.Info("extracting audio", "input", filepath.Base(videoPath), "output", filepath.Base(outputPath))

	cmd := exec.CommandContext(ctx,
		"ffmpeg", "-i", videoPath,
		"-vn", "-c:a", "copy", "-y",
		outputPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract audio failed: %w\n%s", err, string(out))
	}
	return nil
}

// Extractor materializes planned chunk windows from a source file. A
// non-zero SeamOverlap widens the front of every window after the first by
// that amount, so the merger can de-duplicate utterances at the seam instead
// of losing words cut mid-boundary.
type Extractor struct {
	SeamOverlap time.Duration
}

// ExtractWindow re-encodes the audio for one window into destPath. The cut
// uses output seeking (-ss after -i) so boundaries land on the requested
// sample range, at the cost of decoding up to the seek point; chunk windows
// are long enough that accuracy matters more than the seek.
func (e Extractor) ExtractWindow(ctx context.Context, sourcePath, destPath string, window pipeline.ChunkWindow) error {
	info, err := ProbeMedia(ctx, sourcePath)
	if err != nil {
		return &pipeline.ExtractionError{Chunk: window.Index, Err: err}
	}
	// Metadata and real content can disagree; a window past the actual
	// duration means the plan was built from a lying header.
	if window.Start >= info.Duration+time.Second {
		return &pipeline.ExtractionError{
			Chunk: window.Index,
			Err:   fmt.Errorf("window starts at %s but source is only %s long", window.Start, info.Duration),
		}
	}

	start := window.Start
	if window.Index > 0 && e.SeamOverlap > 0 {
		start -= e.SeamOverlap
	}
	length := window.End - start

	cmd := exec.CommandContext(ctx,
		"ffmpeg", "-i", sourcePath,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(length),
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "192k",
		"-y",
		destPath,
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return &pipeline.ExtractionError{
			Chunk: window.Index,
			Err:   fmt.Errorf("ffmpeg cut failed: %w\n%s", err, string(out)),
		}
	}
	return nil
}

// ChunkPath returns the file path for one chunk of sourcePath in dir.
func ChunkPath(dir, sourcePath string, index int) string {
	base := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	return filepath.Join(dir, fmt.Sprintf("%s_chunk_%03d.mp3", base, index))
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// IsVideoExtension returns true for common video file extensions.
func IsVideoExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".mp4", ".mkv", ".mov", ".avi", ".flv", ".webm":
		return true
	}
	return false
}

// LogMediaInfo logs the source file size alongside its probed media info.
func LogMediaInfo(path string, info *MediaInfo) {
	msg := filepath.Base(path)
	if stat, err := os.Stat(path); err == nil {
		msg += fmt.Sprintf(" | size: %.2f MB", float64(stat.Size())/(1024*1024))
	}
	if info != nil {
		total := int(info.Duration.Seconds())
		msg += fmt.Sprintf(" | duration: %02d:%02d | codec: %s", total/60, total%60, info.Codec)
	}
	slog.Info(msg)
}
