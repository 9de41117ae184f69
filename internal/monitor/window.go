// Package monitor - window.go tracks the sliding error-rate window.
package monitor

// ErrorRateWindow is a fixed-capacity FIFO window over recent request
// outcomes with a running error count, so Rate() is O(1) regardless of
// capacity. Not safe for concurrent use; the engine owns it.
type ErrorRateWindow struct {
	slots  []bool
	head   int // next write position
	length int
	errors int
}

// NewErrorRateWindow creates a window with the given capacity.
// Capacity is fixed for the lifetime of the window.
func NewErrorRateWindow(capacity int) *ErrorRateWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &ErrorRateWindow{slots: make([]bool, capacity)}
}

// Push records one outcome, evicting the oldest once the window is full.
func (w *ErrorRateWindow) Push(isError bool) {
	if w.length == len(w.slots) {
		// Full: head points at the oldest entry, which is evicted.
		if w.slots[w.head] {
			w.errors--
		}
	} else {
		w.length++
	}
	w.slots[w.head] = isError
	if isError {
		w.errors++
	}
	w.head = (w.head + 1) % len(w.slots)
}

// Rate returns the error percentage over the window's current contents.
// An empty window has rate 0.
func (w *ErrorRateWindow) Rate() float64 {
	if w.length == 0 {
		return 0
	}
	return float64(w.errors) / float64(w.length) * 100
}

// Len returns the number of outcomes currently held.
func (w *ErrorRateWindow) Len() int { return w.length }

// Cap returns the fixed capacity.
func (w *ErrorRateWindow) Cap() int { return len(w.slots) }

// ErrorCount returns the number of error outcomes currently held.
func (w *ErrorRateWindow) ErrorCount() int { return w.errors }
