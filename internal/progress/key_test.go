package progress

import "testing"

func TestDeriveKeyDeterministic(t *testing.T) {
	ref := "https://bucket/a.mp4"
	if DeriveKey(ref) != DeriveKey(ref) {
		t.Error("expected identical keys for identical references")
	}
}

func TestDeriveKeyLength(t *testing.T) {
	refs := []string{
		"",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"s3://lisa-research/uploads/lecture.mp4",
	}
	for _, ref := range refs {
		if got := DeriveKey(ref); len(got) != keyLength {
			t.Errorf("DeriveKey(%q) length = %d, want %d", ref, len(got), keyLength)
		}
	}
}

func TestDeriveKeyDistinctInputs(t *testing.T) {
	a := DeriveKey("https://bucket/a.mp4")
	b := DeriveKey("https://bucket/b.mp4")
	if a == b {
		t.Errorf("expected different keys, both %q", a)
	}
}
