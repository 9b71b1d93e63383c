package sync

// The flow state machine. Pure decision logic: no remote calls, no state
// mutation, so every branch is testable in isolation.

type DecisionKind int

const (
	// DecisionComplete: the order already sits in the final status.
	DecisionComplete DecisionKind = iota
	// DecisionForceComplete: every flow step was applied but the final
	// status still needs to be set directly (flow ends on a different
	// code, or the checkpoint drifted past the flow).
	DecisionForceComplete
	// DecisionAdvance: apply the next flow status.
	DecisionAdvance
)

type Decision struct {
	Kind DecisionKind
	// Apply is the status code to PATCH (force-complete and advance).
	Apply int
	// NextStep is the checkpoint to store after a successful advance.
	NextStep int
	// Completes marks an advance whose applied status is the final one.
	Completes bool
}

// NextAction decides the next transition for an order in the pending map.
// storedStep is the persisted checkpoint; it never regresses even if the
// remote status lags behind what was already applied.
func NextAction(flow []int, finalStatus int, current *int, storedStep int) Decision {
	if current != nil && *current == finalStatus {
		return Decision{Kind: DecisionComplete}
	}

	computed := 0
	if current != nil {
		if idx := indexOf(flow, *current); idx >= 0 {
			computed = idx + 1
		}
	}

	step := storedStep
	if computed > step {
		step = computed
	}

	if step >= len(flow) {
		return Decision{Kind: DecisionForceComplete, Apply: finalStatus}
	}

	next := flow[step]
	return Decision{
		Kind:      DecisionAdvance,
		Apply:     next,
		NextStep:  step + 1,
		Completes: next == finalStatus,
	}
}

func indexOf(flow []int, status int) int {
	for i, s := range flow {
		if s == status {
			return i
		}
	}
	return -1
}
