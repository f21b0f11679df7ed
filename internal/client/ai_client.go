package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scripttrimmer/api/internal/config"
	"github.com/scripttrimmer/api/internal/model"
)

// TranscriptChunk is the timed text for one audio chunk.
type TranscriptChunk struct {
	Index    int     // position of the chunk within the audio
	BaseTime float64 // offset of the chunk start in the full video, seconds
	Duration float64 // chunk length, seconds
	Text     string
}

// Transcriber converts an audio file into timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// TranscriptAnalyzer extracts topic and interaction spans from a transcript
// chunk. Returned spans are in seconds relative to the chunk start and
// already validated against the chunk duration.
type TranscriptAnalyzer interface {
	AnalyzeTopics(ctx context.Context, chunk TranscriptChunk, previous []model.TopicSpan) ([]model.TopicSpan, error)
	DetectInteractions(ctx context.Context, chunk TranscriptChunk) ([]model.TopicSpan, error)
}

// AIClient implements Transcriber and TranscriptAnalyzer on the OpenAI API:
// Whisper for transcription, a chat model for span extraction.
type AIClient struct {
	client       *openai.Client
	whisperModel string
	chatModel    string
	configured   bool
}

// NewAIClient creates a new OpenAI-backed client
func NewAIClient(cfg *config.OpenAIConfig) *AIClient {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &AIClient{
		client:       openai.NewClientWithConfig(clientConfig),
		whisperModel: cfg.WhisperModel,
		chatModel:    cfg.ChatModel,
		configured:   cfg.APIKey != "",
	}
}

// Transcribe runs Whisper over a single audio file
func (c *AIClient) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.whisperModel,
		FilePath: audioPath,
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return resp.Text, nil
}

// AnalyzeTopics asks the chat model for topic spans within a chunk. Spans
// with malformed or out-of-range timestamps are dropped; when nothing
// survives, a single "Unknown" span covering the chunk is returned.
func (c *AIClient) AnalyzeTopics(ctx context.Context, chunk TranscriptChunk, previous []model.TopicSpan) ([]model.TopicSpan, error) {
	previousJSON, _ := json.Marshal(previous)

	prompt := fmt.Sprintf(`You are analyzing a transcript of a lecture to extract meaningful topics.

Previous topics detected:
%s

Analyze this transcript and identify the main topic being discussed. The audio chunk is %s long.

%s

Return ONLY a JSON array with topics. Each topic should have:
- "title": The topic name
- "start": Start time in MM:SS format (must be within 00:00 to %s)
- "end": End time in MM:SS format (must be within 00:00 to %s)
- "parent_topic": (optional) If this is a subtopic

IMPORTANT:
- End times must NOT exceed %s
- Each topic should have different time ranges
- Be specific about when each topic starts and ends

Return ONLY the JSON array, no markdown formatting or explanations.`,
		previousJSON, formatClock(chunk.Duration), chunk.Text,
		formatClock(chunk.Duration), formatClock(chunk.Duration), formatClock(chunk.Duration))

	spans, err := c.extractSpans(ctx, prompt, chunk.Duration)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		spans = []model.TopicSpan{{Title: "Unknown", Start: 0, End: chunk.Duration}}
	}
	return spans, nil
}

// DetectInteractions asks the chat model for speaker-student interaction
// spans within a chunk. An empty result is valid: not every chunk has
// interactions.
func (c *AIClient) DetectInteractions(ctx context.Context, chunk TranscriptChunk) ([]model.TopicSpan, error) {
	prompt := fmt.Sprintf(`You are analyzing a lecture transcript to identify segments where the speaker is directly interacting with students.

Look for:
- Questions asked by the speaker to students
- Student questions and speaker responses
- Direct addressing of students ("you", "class", "students")
- Interactive moments ("raise your hand", "what do you think")
- Q&A sessions
- Student participation moments

The audio chunk is %s long.

%s

Return ONLY a JSON array with interaction segments. Each segment should have:
- "title": Short description of the interaction
- "start": Start time in MM:SS format (must be within 00:00 to %s)
- "end": End time in MM:SS format (must be within 00:00 to %s)

Return an empty array [] if there are no interactions.
Return ONLY the JSON array, no markdown formatting or explanations.`,
		formatClock(chunk.Duration), chunk.Text,
		formatClock(chunk.Duration), formatClock(chunk.Duration))

	return c.extractSpans(ctx, prompt, chunk.Duration)
}

func (c *AIClient) extractSpans(ctx context.Context, prompt string, chunkDuration float64) ([]model.TopicSpan, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   256,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("transcript analysis failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return ParseSpans(resp.Choices[0].Message.Content, chunkDuration), nil
}

// IsConfigured returns true if the client has an API key
func (c *AIClient) IsConfigured() bool {
	return c.configured
}

// rawSpan is the wire shape produced by the chat model.
type rawSpan struct {
	Title       string `json:"title"`
	Start       string `json:"start"`
	End         string `json:"end"`
	ParentTopic string `json:"parent_topic,omitempty"`
}

// ParseSpans parses a chat-model response into validated spans relative to
// the chunk start. The model occasionally wraps JSON in markdown fences and
// invents out-of-range timestamps; both are handled here, invalid spans are
// dropped silently.
func ParseSpans(content string, chunkDuration float64) []model.TopicSpan {
	content = stripCodeFence(content)

	var raw []rawSpan
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil
	}

	var spans []model.TopicSpan
	for _, r := range raw {
		if r.Title == "" {
			continue
		}
		start, err := parseClock(r.Start)
		if err != nil {
			continue
		}
		end, err := parseClock(r.End)
		if err != nil {
			continue
		}
		if start < 0 || end > chunkDuration || start >= end {
			continue
		}
		spans = append(spans, model.TopicSpan{
			Title:       r.Title,
			Start:       start,
			End:         end,
			ParentTopic: r.ParentTopic,
		})
	}

	return spans
}

func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

// parseClock parses an MM:SS timestamp into seconds.
func parseClock(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	minutes, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	seconds, err := strconv.Atoi(parts[1])
	if err != nil || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	return float64(minutes*60 + seconds), nil
}

// formatClock renders seconds as MM:SS.
func formatClock(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
