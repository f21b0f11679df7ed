package model

import (
	"encoding/json"
	"time"
)

// Job status
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further updates follow this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Pipeline stages
type Stage string

const (
	StageDownload           Stage = "download"
	StageExtractAudio       Stage = "extract_audio"
	StageTranscribe         Stage = "transcribe"
	StageAnalyzeTopics      Stage = "analyze_topics"
	StageDetectInteractions Stage = "detect_interactions"
	StageSegmentVideo       Stage = "segment_video"
	StageUpload             Stage = "upload"
)

// StageProgress maps each stage to its fixed checkpoint percentage. Progress is
// reported at stage boundaries only; the external tools expose no byte-level
// progress worth relaying.
var StageProgress = map[Stage]float64{
	StageDownload:           5,
	StageExtractAudio:       15,
	StageTranscribe:         30,
	StageAnalyzeTopics:      50,
	StageDetectInteractions: 70,
	StageSegmentVideo:       85,
	StageUpload:             95,
}

// StageMessages are the human-readable descriptions published with each stage.
var StageMessages = map[Stage]string{
	StageDownload:           "Downloading video...",
	StageExtractAudio:       "Extracting audio...",
	StageTranscribe:         "Transcribing audio...",
	StageAnalyzeTopics:      "Analyzing topics...",
	StageDetectInteractions: "Detecting speaker-student interactions...",
	StageSegmentVideo:       "Cutting video segments...",
	StageUpload:             "Uploading segments...",
}

// ProgressUpdate is a single lifecycle update for a job. One pending update at
// creation, one running update per stage, exactly one terminal update.
type ProgressUpdate struct {
	JobReference string          `json:"job_reference"`
	Status       JobStatus       `json:"status"`
	Message      string          `json:"message"`
	Progress     float64         `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Job is the background job record stored in Redis under the derived key.
type Job struct {
	Key          string          `json:"key"`
	JobReference string          `json:"jobReference"`
	Status       JobStatus       `json:"status"`
	Progress     float64         `json:"progress"`
	CurrentStep  string          `json:"currentStep,omitempty"`
	Error        *string         `json:"error,omitempty"`
	Result       json.RawMessage `json:"-"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// ProcessJobPayload contains the data handed to the process worker.
type ProcessJobPayload struct {
	Key            string `json:"key"`
	JobReference   string `json:"jobReference"`
	CookiesContent string `json:"cookiesContent,omitempty"`
}
