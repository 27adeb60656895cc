package analyzer

// DedupWindowSize is the number of recently accepted plays a new play is
// compared against.
const DedupWindowSize = 5

// songKey identifies a play for duplicate suppression.
type songKey struct {
	title string
	user  string
}

// recentWindow is a fixed-capacity FIFO of accepted plays.
// Push evicts the oldest entry once full.
type recentWindow struct {
	entries []songKey
	next    int
	size    int
}

func newRecentWindow(capacity int) *recentWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &recentWindow{entries: make([]songKey, capacity)}
}

// Contains reports whether key is one of the held entries.
func (w *recentWindow) Contains(key songKey) bool {
	for i := 0; i < w.size; i++ {
		if w.entries[i] == key {
			return true
		}
	}
	return false
}

// Push adds key, evicting the oldest entry if the window is full.
func (w *recentWindow) Push(key songKey) {
	w.entries[w.next] = key
	w.next = (w.next + 1) % len(w.entries)
	if w.size < len(w.entries) {
		w.size++
	}
}

// Len returns the number of held entries.
func (w *recentWindow) Len() int {
	return w.size
}
