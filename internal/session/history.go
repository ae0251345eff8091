package session

import "sync"

// historyRing is a fixed-capacity circular buffer of finished commands.
// When full, the oldest entry is evicted first.
type historyRing struct {
	mu       sync.RWMutex
	buf      []HistoryEntry
	capacity int
	pos      int // next write position
	full     bool
}

func newHistoryRing(capacity int) *historyRing {
	return &historyRing{
		buf:      make([]HistoryEntry, capacity),
		capacity: capacity,
	}
}

// Append records a finished command. Entries are never mutated afterwards.
func (h *historyRing) Append(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[h.pos] = entry
	h.pos = (h.pos + 1) % h.capacity
	if h.pos == 0 {
		h.full = true
	}
}

// Entries returns the retained history in completion order.
func (h *historyRing) Entries() []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.full {
		result := make([]HistoryEntry, h.pos)
		copy(result, h.buf[:h.pos])
		return result
	}

	result := make([]HistoryEntry, h.capacity)
	copy(result, h.buf[h.pos:])
	copy(result[h.capacity-h.pos:], h.buf[:h.pos])
	return result
}

// Len reports how many entries are retained.
func (h *historyRing) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.full {
		return h.capacity
	}
	return h.pos
}
