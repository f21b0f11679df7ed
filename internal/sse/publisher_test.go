package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/progress"
)

const testKey = "a1b2c3d4e5f60718"
const testRef = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func decodeFrames(t *testing.T, raw string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, block := range strings.Split(raw, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" || strings.HasPrefix(block, ":") {
			continue
		}
		payload := strings.TrimPrefix(block, "data: ")
		var frame map[string]any
		if err := json.Unmarshal([]byte(payload), &frame); err != nil {
			t.Fatalf("invalid frame %q: %v", block, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestStreamDeliversUpdatesUntilTerminal(t *testing.T) {
	store := progress.NewMemoryStore()
	pub := NewPublisher(store)

	go func() {
		// Give the subscriber time to register before publishing.
		time.Sleep(50 * time.Millisecond)
		ctx := context.Background()
		store.Publish(ctx, testKey, model.ProgressUpdate{
			JobReference: testRef, Status: model.JobStatusRunning,
			Message: "Downloading video", Progress: 5, Timestamp: time.Now(),
		})
		store.Publish(ctx, testKey, model.ProgressUpdate{
			JobReference: testRef, Status: model.JobStatusRunning,
			Message: "Transcribing audio", Progress: 30, Timestamp: time.Now(),
		})
		store.Publish(ctx, testKey, model.ProgressUpdate{
			JobReference: testRef, Status: model.JobStatusCompleted,
			Message: "Processing completed", Progress: 100, Timestamp: time.Now(),
		})
	}()

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	done := make(chan struct{})
	go func() {
		pub.Stream(context.Background(), testKey, testRef, w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not close after terminal update")
	}

	frames := decodeFrames(t, buf.String())
	if len(frames) != 4 {
		t.Fatalf("expected handshake plus 3 updates, got %d frames", len(frames))
	}
	if frames[0]["type"] != model.StreamEventConnection {
		t.Errorf("first frame should be the handshake, got %v", frames[0])
	}
	if frames[1]["progress"].(float64) != 5 || frames[2]["progress"].(float64) != 30 {
		t.Errorf("updates out of order: %v", frames[1:3])
	}
	if frames[3]["status"] != string(model.JobStatusCompleted) {
		t.Errorf("last frame should be terminal, got %v", frames[3])
	}
}

func TestStreamClosesForFinishedJob(t *testing.T) {
	store := progress.NewMemoryStore()
	pub := NewPublisher(store)

	ctx := context.Background()
	store.Publish(ctx, testKey, model.ProgressUpdate{
		JobReference: testRef, Status: model.JobStatusFailed,
		Message: "Processing failed", Progress: 15,
		Error: "download failed: video unavailable", Timestamp: time.Now(),
	})

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	done := make(chan struct{})
	go func() {
		pub.Stream(ctx, testKey, testRef, w)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream for a finished job should close immediately")
	}

	frames := decodeFrames(t, buf.String())
	if len(frames) != 2 {
		t.Fatalf("expected handshake plus terminal update, got %d frames", len(frames))
	}
	if frames[1]["status"] != string(model.JobStatusFailed) {
		t.Errorf("expected terminal failed frame, got %v", frames[1])
	}
	if frames[1]["error"] != "download failed: video unavailable" {
		t.Errorf("expected error detail in terminal frame, got %v", frames[1])
	}
}

func TestStreamStopsOnContextCancel(t *testing.T) {
	store := progress.NewMemoryStore()
	pub := NewPublisher(store)

	ctx, cancel := context.WithCancel(context.Background())
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	done := make(chan struct{})
	go func() {
		pub.Stream(ctx, testKey, testRef, w)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop on context cancel")
	}

	// Disconnecting a subscriber must not stop the job from publishing.
	if err := store.Publish(context.Background(), testKey, model.ProgressUpdate{
		JobReference: testRef, Status: model.JobStatusRunning,
		Message: "Uploading segments", Progress: 95, Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("publish after disconnect failed: %v", err)
	}
}
