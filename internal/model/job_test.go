package model

import "testing"

func TestJobStatusIsTerminal(t *testing.T) {
	cases := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
	}

	for _, tc := range cases {
		if got := tc.status.IsTerminal(); got != tc.want {
			t.Errorf("%s.IsTerminal() = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStageCheckpoints(t *testing.T) {
	order := []Stage{
		StageDownload,
		StageExtractAudio,
		StageTranscribe,
		StageAnalyzeTopics,
		StageDetectInteractions,
		StageSegmentVideo,
		StageUpload,
	}
	want := []float64{5, 15, 30, 50, 70, 85, 95}

	for i, stage := range order {
		if got := StageProgress[stage]; got != want[i] {
			t.Errorf("StageProgress[%s] = %v, want %v", stage, got, want[i])
		}
		if StageMessages[stage] == "" {
			t.Errorf("StageMessages[%s] is empty", stage)
		}
	}

	// Checkpoints increase strictly along the pipeline.
	for i := 1; i < len(order); i++ {
		if StageProgress[order[i]] <= StageProgress[order[i-1]] {
			t.Errorf("checkpoint for %s (%v) does not increase past %s (%v)",
				order[i], StageProgress[order[i]], order[i-1], StageProgress[order[i-1]])
		}
	}
}
