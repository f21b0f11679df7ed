package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/scripttrimmer/api/internal/client"
	"github.com/scripttrimmer/api/internal/config"
	"github.com/scripttrimmer/api/internal/model"
)

// JobTracker records stage transitions and terminal state. Implemented by
// service.ProcessService; every call also publishes the matching
// ProgressUpdate to the progress store.
type JobTracker interface {
	UpdateStageProgress(ctx context.Context, key, jobReference string, stage model.Stage) error
	CompleteJob(ctx context.Context, key, jobReference string, result *model.ProcessResult) error
	FailJob(ctx context.Context, key, jobReference, errMsg string) error
}

// ProcessWorker runs the trim pipeline: download, extract audio, transcribe,
// analyze, cut, upload. Stages run strictly in order; the first failing
// stage terminates the job.
type ProcessWorker struct {
	tracker     JobTracker
	downloader  client.Downloader
	media       client.MediaProcessor
	transcriber client.Transcriber
	analyzer    client.TranscriptAnalyzer
	storage     client.StorageClient
	pipeline    *config.PipelineConfig
}

// NewProcessWorker creates a new process worker
func NewProcessWorker(
	tracker JobTracker,
	downloader client.Downloader,
	media client.MediaProcessor,
	transcriber client.Transcriber,
	analyzer client.TranscriptAnalyzer,
	storage client.StorageClient,
	pipeline *config.PipelineConfig,
) *ProcessWorker {
	return &ProcessWorker{
		tracker:     tracker,
		downloader:  downloader,
		media:       media,
		transcriber: transcriber,
		analyzer:    analyzer,
		storage:     storage,
		pipeline:    pipeline,
	}
}

// ProcessTask handles a queued trim job.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ProcessJobPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}

	log.Printf("Starting process job %s (%s)", payload.Key, payload.JobReference)

	result, err := w.runPipeline(ctx, payload.Key, payload.JobReference, payload.CookiesContent)
	if err != nil {
		// A stage error becomes a single terminal failed update; it is
		// not propagated further, asynq must not retry.
		w.failJob(ctx, payload.Key, payload.JobReference, err.Error())
		log.Printf("Process job %s failed: %v", payload.Key, err)
		return nil
	}

	if err := w.tracker.CompleteJob(ctx, payload.Key, payload.JobReference, result); err != nil {
		log.Printf("Failed to complete job %s: %v", payload.Key, err)
		return err
	}

	log.Printf("Process job %s completed with %d segments", payload.Key, len(result.Segments))
	return nil
}

func (w *ProcessWorker) runPipeline(ctx context.Context, key, jobReference, cookies string) (*model.ProcessResult, error) {
	workDir := filepath.Join(w.pipeline.WorkDir, "scripttrimmer-"+uuid.New().String())
	if err := os.MkdirAll(filepath.Join(workDir, "segments", "interactions"), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Stage 1: download
	w.stage(ctx, key, jobReference, model.StageDownload)
	dl, err := w.downloader.Download(ctx, jobReference, workDir, cookies)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	// Stage 2: extract audio
	w.stage(ctx, key, jobReference, model.StageExtractAudio)
	audioPath, err := w.media.ExtractAudio(ctx, dl.Path, workDir)
	if err != nil {
		return nil, fmt.Errorf("audio extraction failed: %w", err)
	}

	chunkPaths := []string{audioPath}
	if fileSizeMB(audioPath) > float64(w.pipeline.MaxAudioSizeMB) {
		chunkPaths, err = w.media.ChunkAudio(ctx, audioPath, workDir, w.pipeline.ChunkMinutes*60)
		if err != nil {
			return nil, fmt.Errorf("audio chunking failed: %w", err)
		}
	}

	// Stage 3: transcribe
	w.stage(ctx, key, jobReference, model.StageTranscribe)
	chunks, err := w.transcribeChunks(ctx, chunkPaths)
	if err != nil {
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	// Stage 4: analyze topics
	w.stage(ctx, key, jobReference, model.StageAnalyzeTopics)
	var topics []model.TopicSpan
	for _, chunk := range chunks {
		spans, err := w.analyzer.AnalyzeTopics(ctx, chunk, topics)
		if err != nil {
			return nil, fmt.Errorf("topic analysis failed: %w", err)
		}
		topics = append(topics, offsetSpans(spans, chunk.BaseTime)...)
	}

	// Stage 5: detect interactions (conditional)
	var interactions []model.TopicSpan
	if w.pipeline.DetectInteractions {
		w.stage(ctx, key, jobReference, model.StageDetectInteractions)
		for _, chunk := range chunks {
			spans, err := w.analyzer.DetectInteractions(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("interaction detection failed: %w", err)
			}
			interactions = append(interactions, offsetSpans(spans, chunk.BaseTime)...)
		}
	}

	// Stage 6: cut segments
	w.stage(ctx, key, jobReference, model.StageSegmentVideo)
	segments, err := w.cutSpans(ctx, dl.Path, topics, filepath.Join(workDir, "segments"))
	if err != nil {
		return nil, fmt.Errorf("segment cutting failed: %w", err)
	}
	interactionSegments, err := w.cutSpans(ctx, dl.Path, interactions, filepath.Join(workDir, "segments", "interactions"))
	if err != nil {
		return nil, fmt.Errorf("interaction segment cutting failed: %w", err)
	}

	// Stage 7: upload
	w.stage(ctx, key, jobReference, model.StageUpload)
	uploaded := w.uploadSegments(ctx, segments, "video-segments")
	uploadedInteractions := w.uploadSegments(ctx, interactionSegments, "video-segments/interactions")

	return &model.ProcessResult{
		JobReference:        jobReference,
		VideoTitle:          dl.Title,
		Topics:              topics,
		Segments:            uploaded,
		InteractionSegments: uploadedInteractions,
		CompletedAt:         time.Now(),
	}, nil
}

func (w *ProcessWorker) transcribeChunks(ctx context.Context, chunkPaths []string) ([]client.TranscriptChunk, error) {
	chunks := make([]client.TranscriptChunk, 0, len(chunkPaths))
	base := 0.0

	for i, path := range chunkPaths {
		duration, err := w.media.ProbeDuration(ctx, path)
		if err != nil {
			return nil, err
		}

		text, err := w.transcriber.Transcribe(ctx, path)
		if err != nil {
			return nil, err
		}

		chunks = append(chunks, client.TranscriptChunk{
			Index:    i,
			BaseTime: base,
			Duration: duration,
			Text:     text,
		})
		base += duration
	}

	return chunks, nil
}

// cutSpans extracts one video file per span. Filenames come from sanitized
// span titles, deduplicated by index.
type localSegment struct {
	span model.TopicSpan
	path string
}

func (w *ProcessWorker) cutSpans(ctx context.Context, videoPath string, spans []model.TopicSpan, outDir string) ([]localSegment, error) {
	segments := make([]localSegment, 0, len(spans))

	for i, span := range spans {
		name := fmt.Sprintf("%02d_%s.mp4", i+1, sanitizeFilename(span.Title))
		outPath := filepath.Join(outDir, name)

		if err := w.media.CutSegment(ctx, videoPath, outPath, span.Start, span.End-span.Start); err != nil {
			return nil, err
		}
		segments = append(segments, localSegment{span: span, path: outPath})
	}

	return segments, nil
}

// uploadSegments pushes cut segments to object storage. Upload failures are
// per-segment: the failed one is reported as not uploaded, the rest proceed.
// Local files are removed only after a successful upload.
func (w *ProcessWorker) uploadSegments(ctx context.Context, segments []localSegment, prefix string) []model.SegmentUpload {
	results := make([]model.SegmentUpload, 0, len(segments))
	timestamp := time.Now().Format("20060102_150405")

	for _, seg := range segments {
		upload := model.SegmentUpload{
			Title:    seg.span.Title,
			Filename: filepath.Base(seg.path),
			Start:    seg.span.Start,
			End:      seg.span.End,
			SizeMB:   fileSizeMB(seg.path),
		}

		if w.storage == nil {
			results = append(results, upload)
			continue
		}

		f, err := os.Open(seg.path)
		if err != nil {
			log.Printf("Warning: cannot open segment %s: %v", seg.path, err)
			results = append(results, upload)
			continue
		}

		s3Key := fmt.Sprintf("%s/%s_%s", prefix, timestamp, filepath.Base(seg.path))
		url, err := w.storage.Upload(ctx, s3Key, f, "video/mp4")
		f.Close()
		if err != nil {
			log.Printf("Warning: segment upload failed for %s: %v", seg.path, err)
			results = append(results, upload)
			continue
		}

		upload.S3URL = url
		upload.S3Key = s3Key
		upload.Uploaded = true
		os.Remove(seg.path)
		results = append(results, upload)
	}

	return results
}

// stage records a stage boundary; tracker errors are delivery problems, not
// pipeline failures.
func (w *ProcessWorker) stage(ctx context.Context, key, jobReference string, stage model.Stage) {
	if err := w.tracker.UpdateStageProgress(ctx, key, jobReference, stage); err != nil {
		log.Printf("Warning: failed to record stage %s for %s: %v", stage, key, err)
	}
}

func (w *ProcessWorker) failJob(ctx context.Context, key, jobReference, errMsg string) {
	if err := w.tracker.FailJob(ctx, key, jobReference, errMsg); err != nil {
		log.Printf("Failed to mark job %s as failed: %v", key, err)
	}
}

func offsetSpans(spans []model.TopicSpan, base float64) []model.TopicSpan {
	out := make([]model.TopicSpan, 0, len(spans))
	for _, s := range spans {
		s.Start += base
		s.End += base
		out = append(out, s)
	}
	return out
}

func fileSizeMB(path string) float64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return float64(info.Size()) / (1024 * 1024)
}

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// sanitizeFilename converts a span title into a safe filename.
func sanitizeFilename(title string) string {
	name := invalidFilenameChars.ReplaceAllString(title, "")
	name = regexp.MustCompile(`\s+`).ReplaceAllString(name, "_")
	if len(name) > 100 {
		name = name[:100]
	}
	if name == "" {
		name = "segment"
	}
	return name
}
