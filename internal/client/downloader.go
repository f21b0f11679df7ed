package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scripttrimmer/api/internal/config"
)

// Reference kinds accepted as job input.
type ReferenceKind string

const (
	ReferenceYouTube ReferenceKind = "youtube"
	ReferenceHTTP    ReferenceKind = "http"
	ReferenceS3      ReferenceKind = "s3"
	ReferenceInvalid ReferenceKind = "invalid"
)

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/v/[\w-]+`),
}

// ClassifyReference decides how a job reference will be fetched. Anything
// that is neither a YouTube URL, an HTTP(S) URL, nor an s3:// object is
// rejected before a job is created.
func ClassifyReference(jobReference string) ReferenceKind {
	ref := strings.TrimSpace(jobReference)
	if ref == "" {
		return ReferenceInvalid
	}

	for _, p := range youtubePatterns {
		if p.MatchString(ref) {
			return ReferenceYouTube
		}
	}

	if strings.HasPrefix(ref, "s3://") {
		return ReferenceS3
	}

	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ReferenceInvalid
	}
	return ReferenceHTTP
}

// DownloadResult describes a fetched video on local disk.
type DownloadResult struct {
	Path  string
	Title string
}

// Downloader fetches a job reference into a local file.
type Downloader interface {
	Download(ctx context.Context, jobReference, outDir, cookiesContent string) (*DownloadResult, error)
}

// FetchClient implements Downloader for YouTube (yt-dlp subprocess), direct
// HTTP(S) media URLs, and S3 objects.
type FetchClient struct {
	ytdlpPath  string
	httpClient *http.Client
	storage    StorageClient
}

// NewFetchClient creates a new downloader. storage may be nil; s3://
// references then fail at download time.
func NewFetchClient(cfg *config.FFmpegConfig, storage StorageClient) *FetchClient {
	return &FetchClient{
		ytdlpPath: cfg.YtdlpPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Minute,
		},
		storage: storage,
	}
}

// Download fetches the reference into outDir and returns the local path.
func (c *FetchClient) Download(ctx context.Context, jobReference, outDir, cookiesContent string) (*DownloadResult, error) {
	switch ClassifyReference(jobReference) {
	case ReferenceYouTube:
		return c.downloadYouTube(ctx, jobReference, outDir, cookiesContent)
	case ReferenceS3:
		return c.downloadS3(ctx, jobReference, outDir)
	case ReferenceHTTP:
		return c.downloadHTTP(ctx, jobReference, outDir)
	default:
		return nil, fmt.Errorf("unsupported job reference %q", jobReference)
	}
}

// downloadYouTube shells out to yt-dlp, preferring 720p MP4 with fallbacks.
// Cookies passed by the client are written to a temp file so yt-dlp can
// avoid bot detection, then removed.
func (c *FetchClient) downloadYouTube(ctx context.Context, youtubeURL, outDir, cookiesContent string) (*DownloadResult, error) {
	outPath := filepath.Join(outDir, uuid.New().String()+"_youtube_video.mp4")

	args := []string{
		"-f", "best[height<=720][ext=mp4]/best[height<=720]/best[ext=mp4]/best",
		"--no-playlist",
		"--no-warnings",
		"-o", outPath,
	}

	if cookiesContent != "" {
		cookiesFile, err := os.CreateTemp("", "yt-cookies-*.txt")
		if err != nil {
			return nil, fmt.Errorf("failed to create cookies file: %w", err)
		}
		defer os.Remove(cookiesFile.Name())

		if _, err := cookiesFile.WriteString(cookiesContent); err != nil {
			cookiesFile.Close()
			return nil, fmt.Errorf("failed to write cookies file: %w", err)
		}
		cookiesFile.Close()
		args = append(args, "--cookies", cookiesFile.Name())
	}

	titleArgs := append([]string{"--print", "title", "--skip-download", "--no-warnings"}, youtubeURL)
	title, titleErr := run(ctx, c.ytdlpPath, titleArgs...)
	if titleErr != nil {
		title = ""
	}

	if _, err := run(ctx, c.ytdlpPath, append(args, youtubeURL)...); err != nil {
		return nil, fmt.Errorf("youtube download failed: %w", err)
	}

	if _, err := os.Stat(outPath); err != nil {
		return nil, fmt.Errorf("video file not found after download: %w", err)
	}

	return &DownloadResult{Path: outPath, Title: strings.TrimSpace(title)}, nil
}

func (c *FetchClient) downloadHTTP(ctx context.Context, mediaURL, outDir string) (*DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	name := filepath.Base(strings.SplitN(mediaURL, "?", 2)[0])
	if name == "" || name == "." || name == "/" {
		name = "video.mp4"
	}

	return c.writeFile(filepath.Join(outDir, name), resp.Body)
}

func (c *FetchClient) downloadS3(ctx context.Context, s3URL, outDir string) (*DownloadResult, error) {
	if c.storage == nil {
		return nil, fmt.Errorf("storage not configured for s3 reference")
	}

	key, err := s3ObjectKey(s3URL, c.storage.Bucket())
	if err != nil {
		return nil, err
	}

	body, err := c.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	return c.writeFile(filepath.Join(outDir, filepath.Base(key)), body)
}

func (c *FetchClient) writeFile(path string, body io.Reader) (*DownloadResult, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &DownloadResult{Path: path}, nil
}

// s3ObjectKey extracts the object key from an s3://bucket/key URL and checks
// it targets the configured bucket.
func s3ObjectKey(s3URL, bucket string) (string, error) {
	rest := strings.TrimPrefix(s3URL, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", fmt.Errorf("malformed s3 reference %q", s3URL)
	}
	if bucket != "" && parts[0] != bucket {
		return "", fmt.Errorf("s3 reference targets bucket %q, configured bucket is %q", parts[0], bucket)
	}
	return parts[1], nil
}
