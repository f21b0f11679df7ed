package client

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/scripttrimmer/api/internal/config"
)

// MediaProcessor defines the ffmpeg-backed operations the pipeline needs.
type MediaProcessor interface {
	ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error)
	ChunkAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error)
	CutSegment(ctx context.Context, videoPath, outPath string, start, duration float64) error
	ProbeDuration(ctx context.Context, mediaPath string) (float64, error)
}

// FFmpegClient implements MediaProcessor by shelling out to ffmpeg/ffprobe.
type FFmpegClient struct {
	ffmpegPath  string
	ffprobePath string
}

// NewFFmpegClient creates a new ffmpeg client
func NewFFmpegClient(cfg *config.FFmpegConfig) *FFmpegClient {
	return &FFmpegClient{
		ffmpegPath:  cfg.BinPath,
		ffprobePath: cfg.FFprobePath,
	}
}

// run executes a command and returns stdout; stderr is folded into the error.
func run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := strings.TrimSpace(stderr.String())
		if stderrStr != "" {
			return "", fmt.Errorf("command %q failed: %w: %s", name, err, stderrStr)
		}
		return "", fmt.Errorf("command %q failed: %w", name, err)
	}

	return stdout.String(), nil
}

// ExtractAudio pulls the audio track out of a video. AAC tracks are stream
// copied into .m4a; anything else is transcoded to 16 kHz mono MP3, the
// format Whisper handles best.
func (c *FFmpegClient) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	codec, err := c.probeAudioCodec(ctx, videoPath)
	if err != nil {
		return "", err
	}

	base := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))

	if codec == "aac" {
		audioPath := filepath.Join(outDir, base+".m4a")
		_, err := run(ctx, c.ffmpegPath,
			"-i", videoPath,
			"-vn",
			"-acodec", "copy",
			"-y",
			audioPath,
		)
		if err == nil {
			return audioPath, nil
		}
		// Stream copy can fail on odd containers; fall through to transcode.
	}

	audioPath := filepath.Join(outDir, base+".mp3")
	_, err = run(ctx, c.ffmpegPath,
		"-i", videoPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "64k",
		"-y",
		audioPath,
	)
	if err != nil {
		return "", fmt.Errorf("audio extraction failed: %w", err)
	}

	return audioPath, nil
}

// ChunkAudio splits an audio file into fixed-duration pieces so each stays
// under the transcription API's upload cap.
func (c *FFmpegClient) ChunkAudio(ctx context.Context, audioPath, outDir string, chunkSeconds int) ([]string, error) {
	ext := filepath.Ext(audioPath)
	base := strings.TrimSuffix(filepath.Base(audioPath), ext)
	pattern := filepath.Join(outDir, fmt.Sprintf("%s_chunk_%%03d%s", base, ext))

	_, err := run(ctx, c.ffmpegPath,
		"-i", audioPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(chunkSeconds),
		"-c", "copy",
		"-y",
		pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("audio chunking failed: %w", err)
	}

	glob := filepath.Join(outDir, fmt.Sprintf("%s_chunk_*%s", base, ext))
	chunks, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("failed to list audio chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no audio chunks produced")
	}

	sort.Strings(chunks)
	return chunks, nil
}

// CutSegment extracts [start, start+duration) from a video with stream copy.
// Cuts land on the nearest preceding keyframe, which is acceptable for
// topic-boundary precision.
func (c *FFmpegClient) CutSegment(ctx context.Context, videoPath, outPath string, start, duration float64) error {
	_, err := run(ctx, c.ffmpegPath,
		"-ss", formatSeconds(start),
		"-i", videoPath,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		outPath,
	)
	if err != nil {
		return fmt.Errorf("segment cut failed: %w", err)
	}
	return nil
}

// ProbeDuration returns a media file's duration in seconds.
func (c *FFmpegClient) ProbeDuration(ctx context.Context, mediaPath string) (float64, error) {
	out, err := run(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		mediaPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected ffprobe output %q: %w", out, err)
	}

	return duration, nil
}

func (c *FFmpegClient) probeAudioCodec(ctx context.Context, videoPath string) (string, error) {
	out, err := run(ctx, c.ffprobePath,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return "", fmt.Errorf("audio codec probe failed: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// formatSeconds renders a duration for ffmpeg argv as HH:MM:SS.mmm.
func formatSeconds(seconds float64) string {
	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := seconds - float64(hours*3600+minutes*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", hours, minutes, secs)
}
