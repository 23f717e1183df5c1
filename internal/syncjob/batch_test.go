package syncjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBatch(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Candidate
		maxCount   int
		want       []string
	}{
		{
			name: "dedup then cap",
			candidates: []Candidate{
				{OrderID: "A"},
				{OrderID: "A"},
				{OrderID: "B"},
				{OrderID: "C"},
			},
			maxCount: 2,
			want:     []string{"A", "B"},
		},
		{
			name: "fewer eligible than max",
			candidates: []Candidate{
				{OrderID: "171-001"},
				{OrderID: "171-002"},
			},
			maxCount: 25,
			want:     []string{"171-001", "171-002"},
		},
		{
			name: "ready rows are skipped",
			candidates: []Candidate{
				{OrderID: "171-001", ReadyToProcess: true},
				{OrderID: "171-002"},
				{OrderID: "171-003", ReadyToProcess: true},
			},
			maxCount: 10,
			want:     []string{"171-002"},
		},
		{
			name: "placeholder and empty order IDs are skipped",
			candidates: []Candidate{
				{OrderID: "---"},
				{OrderID: ""},
				{OrderID: "171-004"},
			},
			maxCount: 10,
			want:     []string{"171-004"},
		},
		{
			name: "duplicate keeps first occurrence",
			candidates: []Candidate{
				{OrderID: "B"},
				{OrderID: "A"},
				{OrderID: "B"},
			},
			maxCount: 10,
			want:     []string{"B", "A"},
		},
		{
			name:       "empty candidate list",
			candidates: nil,
			maxCount:   10,
			want:       []string{},
		},
		{
			name: "zero max count yields nothing",
			candidates: []Candidate{
				{OrderID: "A"},
			},
			maxCount: 0,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildBatch(tt.candidates, tt.maxCount)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildBatchSizeBound(t *testing.T) {
	// Batch size must always be min(deduplicated eligible count, maxCount).
	candidates := []Candidate{
		{OrderID: "A"}, {OrderID: "B"}, {OrderID: "A"},
		{OrderID: "C"}, {OrderID: "D", ReadyToProcess: true},
	}
	for maxCount := 1; maxCount <= 5; maxCount++ {
		got := BuildBatch(candidates, maxCount)
		want := 3 // A, B, C after dedup and eligibility
		if maxCount < want {
			want = maxCount
		}
		assert.Len(t, got, want, "maxCount=%d", maxCount)
	}
}
