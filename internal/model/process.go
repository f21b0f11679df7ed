package model

import "time"

// ProcessStartRequest starts the trim pipeline for a video reference: a
// YouTube URL, a direct HTTP(S) media URL, or an s3:// object from a prior
// presigned upload.
type ProcessStartRequest struct {
	JobReference string `json:"job_reference" validate:"required,min=1,max=2048"`
	// CookiesContent is an optional Netscape cookies.txt export passed to
	// yt-dlp to avoid bot detection on YouTube downloads.
	CookiesContent string `json:"cookies_content,omitempty"`
}

// ProcessStartResponse is the immediate acknowledgment; the pipeline runs in
// the background and progress is streamed separately.
type ProcessStartResponse struct {
	JobReference string    `json:"job_reference"`
	Key          string    `json:"key"`
	Status       JobStatus `json:"status"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
}

// TopicSpan is a single detected topic with its time range in the source
// video, in seconds from the start.
type TopicSpan struct {
	Title       string  `json:"title"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	ParentTopic string  `json:"parent_topic,omitempty"`
}

// SegmentUpload describes one cut segment after S3 upload.
type SegmentUpload struct {
	Title    string  `json:"title"`
	Filename string  `json:"filename"`
	S3URL    string  `json:"s3_url,omitempty"`
	S3Key    string  `json:"s3_key,omitempty"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	SizeMB   float64 `json:"size_mb"`
	Uploaded bool    `json:"uploaded"`
}

// ProcessResult is the payload of the terminal completed update.
type ProcessResult struct {
	JobReference        string          `json:"job_reference"`
	VideoTitle          string          `json:"video_title,omitempty"`
	Topics              []TopicSpan     `json:"topics"`
	Segments            []SegmentUpload `json:"segments"`
	InteractionSegments []SegmentUpload `json:"interaction_segments,omitempty"`
	CompletedAt         time.Time       `json:"completed_at"`
}

// ProcessStatusResponse is the latest known state of a job.
type ProcessStatusResponse struct {
	JobReference string    `json:"job_reference"`
	Key          string    `json:"key"`
	Status       JobStatus `json:"status"`
	Message      string    `json:"message"`
	Progress     float64   `json:"progress"`
	Error        *string   `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// PresignRequest asks for a presigned S3 PUT URL for a direct client upload.
type PresignRequest struct {
	Filename    string `json:"filename" validate:"required,min=1,max=255"`
	ContentType string `json:"content_type" validate:"omitempty,max=100"`
}

// PresignResponse carries the upload URL and the resulting object reference.
// S3URL is a valid job_reference for ProcessStartRequest.
type PresignResponse struct {
	UploadURL string    `json:"upload_url"`
	S3URL     string    `json:"s3_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}
