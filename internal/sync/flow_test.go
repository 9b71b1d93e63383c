package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func TestNextAction(t *testing.T) {
	flow := []int{100, 200}

	tests := []struct {
		name        string
		finalStatus int
		current     *int
		storedStep  int
		want        Decision
	}{
		{
			name:        "already final",
			finalStatus: 200,
			current:     intp(200),
			storedStep:  0,
			want:        Decision{Kind: DecisionComplete},
		},
		{
			name:        "first step from unknown remote status",
			finalStatus: 200,
			current:     intp(6),
			storedStep:  0,
			want:        Decision{Kind: DecisionAdvance, Apply: 100, NextStep: 1},
		},
		{
			name:        "advance after first step",
			finalStatus: 200,
			current:     intp(100),
			storedStep:  1,
			want:        Decision{Kind: DecisionAdvance, Apply: 200, NextStep: 2, Completes: true},
		},
		{
			name:        "remote lags behind checkpoint",
			finalStatus: 200,
			current:     intp(100),
			storedStep:  2,
			want:        Decision{Kind: DecisionForceComplete, Apply: 200},
		},
		{
			name:        "final differs from last flow element",
			finalStatus: 300,
			current:     intp(200),
			storedStep:  0,
			want:        Decision{Kind: DecisionForceComplete, Apply: 300},
		},
		{
			name:        "stored step past flow length",
			finalStatus: 300,
			current:     intp(6),
			storedStep:  2,
			want:        Decision{Kind: DecisionForceComplete, Apply: 300},
		},
		{
			name:        "unknown remote status uses checkpoint",
			finalStatus: 200,
			current:     nil,
			storedStep:  1,
			want:        Decision{Kind: DecisionAdvance, Apply: 200, NextStep: 2, Completes: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextAction(flow, tt.finalStatus, tt.current, tt.storedStep)
			require.Equal(t, tt.want, got)
		})
	}
}

// the stored checkpoint never regresses across successive decisions
func TestNextActionMonotonic(t *testing.T) {
	flow := []int{100, 200, 300}

	stored := 0
	for _, current := range []*int{intp(6), intp(100), intp(6), intp(200), nil} {
		d := NextAction(flow, 300, current, stored)
		if d.Kind != DecisionAdvance {
			break
		}
		require.GreaterOrEqual(t, d.NextStep, stored)
		stored = d.NextStep
	}
	require.Equal(t, 3, stored)
}
