package liveness

import "math"

// WindowSize is the number of roll samples a nod decision needs.
const WindowSize = 10

// RollWindow keeps the most recent absolute roll angles for the NOD challenge.
// It is a plain value: copying a session copies its window.
type RollWindow struct {
	Samples [WindowSize]float64 `json:"samples" cbor:"samples"`
	Count   int                 `json:"count" cbor:"count"`
}

// Push records |sample|, evicting the oldest one when the window is full.
func (w RollWindow) Push(sample float64) RollWindow {
	abs := math.Abs(sample)
	if w.Count < WindowSize {
		w.Samples[w.Count] = abs
		w.Count++
		return w
	}
	copy(w.Samples[:], w.Samples[1:])
	w.Samples[WindowSize-1] = abs
	return w
}

// Len returns how many samples are held.
func (w RollWindow) Len() int { return w.Count }

// Full reports whether a deviation can be computed.
func (w RollWindow) Full() bool { return w.Count == WindowSize }

// Deviation compares the newest sample against the mean of the other nine.
// ok is false until the window is full.
func (w RollWindow) Deviation() (deviation float64, ok bool) {
	if !w.Full() {
		return 0, false
	}
	var sum float64
	for _, s := range w.Samples[:WindowSize-1] {
		sum += s
	}
	baseline := sum / float64(WindowSize-1)
	return math.Abs(baseline - w.Samples[WindowSize-1]), true
}

// Nodded reports a nod once the deviation reaches threshold.
func (w RollWindow) Nodded(threshold float64) bool {
	dev, ok := w.Deviation()
	return ok && dev >= threshold
}

// Values returns the held samples, oldest first.
func (w RollWindow) Values() []float64 {
	out := make([]float64, w.Count)
	copy(out, w.Samples[:w.Count])
	return out
}
