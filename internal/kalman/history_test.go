package kalman

import "testing"

func TestHistoryRing(t *testing.T) {
	h := newHistory(3, 1)
	if h.at(0) != nil {
		t.Fatal("empty history should return nil")
	}

	for i := 1; i <= 5; i++ {
		h.push([]float64{float64(i)})
	}

	tests := []struct {
		age  int
		want float64
	}{
		{0, 5},
		{1, 4},
		{2, 3},
		{3, 3}, // beyond depth returns the oldest
		{-1, 5},
	}
	for _, tt := range tests {
		if got := h.at(tt.age)[0]; got != tt.want {
			t.Errorf("at(%d) = %v, want %v", tt.age, got, tt.want)
		}
	}

	h.shift([]float64{10})
	if got := h.at(2)[0]; got != 13 {
		t.Errorf("after shift at(2) = %v, want 13", got)
	}
}

func TestHistoryPushCopies(t *testing.T) {
	h := newHistory(2, 2)
	x := []float64{1, 2}
	h.push(x)
	x[0] = 99
	if h.at(0)[0] != 1 {
		t.Error("push must copy the state")
	}
}
