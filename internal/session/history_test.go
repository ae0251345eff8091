package session

import (
	"fmt"
	"testing"
	"time"
)

func makeHistoryEntry(id int) HistoryEntry {
	return HistoryEntry{
		Command:     fmt.Sprintf("cmd-%d", id),
		StartedAt:   time.Now().UTC(),
		ExitCode:    0,
		Status:      "success",
		SessionName: "test",
		Source:      SourceClaude,
	}
}

func TestHistoryRing_EmptyRead(t *testing.T) {
	h := newHistoryRing(10)
	if entries := h.Entries(); len(entries) != 0 {
		t.Errorf("expected empty history, got %d entries", len(entries))
	}
	if h.Len() != 0 {
		t.Errorf("expected length 0, got %d", h.Len())
	}
}

func TestHistoryRing_PartialFill(t *testing.T) {
	h := newHistoryRing(10)
	for i := 0; i < 5; i++ {
		h.Append(makeHistoryEntry(i))
	}

	entries := h.Entries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	for i, e := range entries {
		expected := fmt.Sprintf("cmd-%d", i)
		if e.Command != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e.Command)
		}
	}
}

func TestHistoryRing_Overflow(t *testing.T) {
	h := newHistoryRing(5)
	for i := 0; i < 8; i++ {
		h.Append(makeHistoryEntry(i))
	}

	entries := h.Entries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(entries))
	}

	// Should have entries 3,4,5,6,7 (oldest evicted).
	for i, e := range entries {
		expected := fmt.Sprintf("cmd-%d", i+3)
		if e.Command != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e.Command)
		}
	}
}

func TestHistoryRing_ExactCapacity(t *testing.T) {
	h := newHistoryRing(3)
	for i := 0; i < 3; i++ {
		h.Append(makeHistoryEntry(i))
	}

	entries := h.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	for i, e := range entries {
		expected := fmt.Sprintf("cmd-%d", i)
		if e.Command != expected {
			t.Errorf("entry %d: expected %s, got %s", i, expected, e.Command)
		}
	}
}
