package kalman

// history is a fixed-capacity ring of past state vectors, newest first.
type history struct {
	buf   [][]float64
	head  int // index of the newest entry
	count int
}

func newHistory(depth, n int) *history {
	buf := make([][]float64, depth)
	for i := range buf {
		buf[i] = make([]float64, n)
	}
	return &history{buf: buf, head: -1}
}

func (h *history) depth() int { return len(h.buf) }

func (h *history) push(x []float64) {
	h.head = (h.head + 1) % len(h.buf)
	copy(h.buf[h.head], x)
	if h.count < len(h.buf) {
		h.count++
	}
}

// at returns the state pushed age pushes ago. Ages beyond the recorded
// history return the oldest entry; an empty history returns nil.
func (h *history) at(age int) []float64 {
	if h.count == 0 {
		return nil
	}
	if age >= h.count {
		age = h.count - 1
	}
	if age < 0 {
		age = 0
	}
	idx := (h.head - age + len(h.buf)) % len(h.buf)
	return h.buf[idx]
}

// shift adds dx to every recorded state.
func (h *history) shift(dx []float64) {
	for k := 0; k < h.count; k++ {
		idx := (h.head - k + len(h.buf)) % len(h.buf)
		row := h.buf[idx]
		for i := range row {
			row[i] += dx[i]
		}
	}
}

// fill replaces the whole history with a single state.
func (h *history) fill(x []float64) {
	for i := range h.buf {
		copy(h.buf[i], x)
	}
	h.head = 0
	h.count = len(h.buf)
}
