package idhash

import "testing"

func TestComputeEvaluationID_Deterministic(t *testing.T) {
	a := ComputeEvaluationID("So11111111111111111111111111111111111111112", 1700000000000)
	b := ComputeEvaluationID("So11111111111111111111111111111111111111112", 1700000000000)
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestComputeEvaluationID_DistinctInputs(t *testing.T) {
	base := ComputeEvaluationID("mintA", 1700000000000)

	if got := ComputeEvaluationID("mintB", 1700000000000); got == base {
		t.Error("different mints must produce different IDs")
	}
	if got := ComputeEvaluationID("mintA", 1700000000001); got == base {
		t.Error("different timestamps must produce different IDs")
	}
}
