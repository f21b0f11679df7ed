package client

import "testing"

func TestParseSpans(t *testing.T) {
	content := `[
		{"title": "React Hooks", "start": "00:00", "end": "02:30"},
		{"title": "useState Hook", "start": "02:30", "end": "05:45", "parent_topic": "React Hooks"}
	]`

	spans := ParseSpans(content, 600)
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Title != "React Hooks" || spans[0].Start != 0 || spans[0].End != 150 {
		t.Errorf("unexpected first span: %+v", spans[0])
	}
	if spans[1].ParentTopic != "React Hooks" {
		t.Errorf("expected parent topic, got %+v", spans[1])
	}
}

func TestParseSpansStripsCodeFence(t *testing.T) {
	content := "```json\n[{\"title\": \"Intro\", \"start\": \"00:00\", \"end\": \"01:00\"}]\n```"

	spans := ParseSpans(content, 600)
	if len(spans) != 1 || spans[0].Title != "Intro" {
		t.Fatalf("expected fenced JSON to parse, got %+v", spans)
	}
}

func TestParseSpansDropsInvalidTimestamps(t *testing.T) {
	content := `[
		{"title": "OK", "start": "00:10", "end": "01:00"},
		{"title": "Beyond chunk", "start": "00:00", "end": "11:00"},
		{"title": "Inverted", "start": "02:00", "end": "01:00"},
		{"title": "Garbage", "start": "abc", "end": "01:00"},
		{"start": "00:00", "end": "01:00"}
	]`

	spans := ParseSpans(content, 600)
	if len(spans) != 1 || spans[0].Title != "OK" {
		t.Fatalf("expected only the valid span, got %+v", spans)
	}
}

func TestParseSpansNonJSON(t *testing.T) {
	if spans := ParseSpans("I could not find any topics.", 600); spans != nil {
		t.Errorf("expected nil for non-JSON content, got %+v", spans)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"00:00", 0, false},
		{"02:30", 150, false},
		{"10:00", 600, false},
		{"1:05", 65, false},
		{"00:75", 0, true},
		{"1:2:3", 0, true},
		{"", 0, true},
	}

	for _, tc := range cases {
		got, err := parseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseClock(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	if got := formatClock(600); got != "10:00" {
		t.Errorf("formatClock(600) = %q, want 10:00", got)
	}
	if got := formatClock(65); got != "1:05" {
		t.Errorf("formatClock(65) = %q, want 1:05", got)
	}
}
