package indicator

import (
	"errors"
)

// Window represents a fixed size rolling window of values.
type Window struct {
	data  []float64
	start int
	count int
	size  int
	sum   float64
}

// NewWindow initializes a new rolling window.
func NewWindow(size int) (*Window, error) {
	if size < 0 {
		return nil, errors.New("window size cannot be negative")
	}
	if size == 0 {
		return nil, errors.New("window size cannot be zero")
	}

	return &Window{
		data: make([]float64, size),
		size: size,
	}, nil
}

// Update adds the provided value to the window.
func (w *Window) Update(value float64) {
	end := (w.start + w.count) % w.size

	if w.count == w.size {
		// Overwrite the oldest entry when the window is at capacity.
		w.sum -= w.data[end]
		w.data[end] = value
		w.start = (w.start + 1) % w.size
	} else {
		w.data[end] = value
		w.count++
	}

	w.sum += value
}

// Full checks whether the window holds as many values as its size.
func (w *Window) Full() bool {
	return w.count == w.size
}

// Mean returns the mean of the values held by the window.
func (w *Window) Mean() float64 {
	if w.count == 0 {
		return 0
	}

	return w.sum / float64(w.count)
}
