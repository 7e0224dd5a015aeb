package main

import "testing"

func TestSplitWorkCoversEveryObject(t *testing.T) {
	tests := []struct {
		n, k int
	}{
		{100000, 4},
		{10, 3},
		{7, 8},
		{1, 1},
		{0, 2},
	}
	for _, tt := range tests {
		counts := splitWork(tt.n, tt.k)
		if len(counts) != tt.k {
			t.Errorf("splitWork(%d, %d): %d producers, want %d", tt.n, tt.k, len(counts), tt.k)
		}
		sum := 0
		for _, c := range counts {
			sum += c
		}
		if sum != tt.n {
			t.Errorf("splitWork(%d, %d) sums to %d, want %d", tt.n, tt.k, sum, tt.n)
		}
	}
}
