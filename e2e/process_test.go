package e2e

import (
	"net/http"
	"testing"

	"github.com/scripttrimmer/api/internal/progress"
)

const testVideoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func TestProcessStart(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start",
		`{"job_reference": "`+testVideoURL+`"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	if body["job_reference"] != testVideoURL {
		t.Errorf("expected job_reference echoed back, got %v", body["job_reference"])
	}
	if body["status"] != "pending" {
		t.Errorf("expected status pending, got %v", body["status"])
	}

	key, _ := body["key"].(string)
	if key != progress.DeriveKey(testVideoURL) {
		t.Errorf("key = %q, want %q", key, progress.DeriveKey(testVideoURL))
	}
	if len(key) != 16 {
		t.Errorf("key length = %d, want 16", len(key))
	}
}

func TestProcessStart_InvalidReference(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start",
		`{"job_reference": "not a url"}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)

	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	if errObj["code"] != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %v", errObj["code"])
	}
}

func TestProcessStart_MissingReference(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", `{}`)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestProcessStart_Unauthorized(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/api/process/start",
		`{"job_reference": "`+testVideoURL+`"}`, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusUnauthorized)
}

func TestProcessStatus(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start",
		`{"job_reference": "`+testVideoURL+`"}`)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	body := parseJSON(t, resp)
	key := body["key"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/process/status/"+key, "")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusOK)

	status := parseJSON(t, resp)
	if status["status"] != "pending" {
		t.Errorf("expected pending without a worker, got %v", status["status"])
	}
	if status["job_reference"] != testVideoURL {
		t.Errorf("expected job_reference, got %v", status["job_reference"])
	}
}

func TestProcessStatus_NotFound(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/process/status/ffffffffffffffff", "")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusNotFound)
}

func TestProcessResult_NotCompleted(t *testing.T) {
	ta := setupApp(t)

	resp, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start",
		`{"job_reference": "`+testVideoURL+`"}`)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	body := parseJSON(t, resp)
	key := body["key"].(string)

	resp, err = doAuthRequest(t, ta.app, http.MethodGet, "/api/process/result/"+key, "")
	if err != nil {
		t.Fatalf("result request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestProcessStart_Idempotent(t *testing.T) {
	ta := setupApp(t)

	body := `{"job_reference": "` + testVideoURL + `"}`

	resp1, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", body)
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	resp2, err := doAuthRequest(t, ta.app, http.MethodPost, "/api/process/start", body)
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	key1 := parseJSON(t, resp1)["key"]
	key2 := parseJSON(t, resp2)["key"]
	if key1 != key2 {
		t.Errorf("same reference must derive the same key: %v != %v", key1, key2)
	}
}
