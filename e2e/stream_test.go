package e2e

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/scripttrimmer/api/internal/model"
	"github.com/scripttrimmer/api/internal/progress"
)

// A finished job's stream must deliver the handshake and the terminal update,
// then close instead of hanging.
func TestStream_FinishedJob(t *testing.T) {
	ta := setupApp(t)

	ref := "https://www.youtube.com/watch?v=stream-test"
	key := progress.DeriveKey(ref)

	err := ta.store.Publish(context.Background(), key, model.ProgressUpdate{
		JobReference: ref,
		Status:       model.JobStatusFailed,
		Message:      "Processing failed",
		Progress:     15,
		Error:        "download failed: video unavailable",
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/stream/"+key, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q, want text/event-stream", ct)
	}

	body := readBody(t, resp)
	if !strings.Contains(body, `"type":"connection"`) {
		t.Errorf("expected connection handshake, body: %s", body)
	}
	if !strings.Contains(body, `"status":"failed"`) {
		t.Errorf("expected terminal failed frame, body: %s", body)
	}
	if strings.Count(body, "data: ") != 2 {
		t.Errorf("expected exactly 2 frames, body: %s", body)
	}
}

// The stream also accepts the raw reference and derives the key server-side.
func TestStream_ByJobReference(t *testing.T) {
	ta := setupApp(t)

	ref := "https://www.youtube.com/watch?v=query-test"
	key := progress.DeriveKey(ref)

	err := ta.store.Publish(context.Background(), key, model.ProgressUpdate{
		JobReference: ref,
		Status:       model.JobStatusCompleted,
		Message:      "Processing completed",
		Progress:     100,
		Timestamp:    time.Now(),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	resp, err := doRequest(ta.app, http.MethodGet, "/stream?job_reference="+ref, "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	body := readBody(t, resp)
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("expected terminal completed frame, body: %s", body)
	}
}

func TestStream_PlainHTTPOnSocketRoute(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodGet, "/ws/jobs/some-key", "", nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// Plain HTTP request to a WebSocket route is refused.
	assertStatus(t, resp, http.StatusUpgradeRequired)
}
