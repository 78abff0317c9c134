package agent

import "testing"

func TestSnapshotYAML_RoundTrips(t *testing.T) {
	want := Snapshot{
		InputTokens:    120,
		OutputTokens:   45,
		EstimatedCost:  0.0123,
		LLMCalls:       3,
		ToolCalls:      2,
		ElapsedSeconds: 12.5,
		Iteration:      4,
		Baseline:       80,
	}

	data, err := MarshalSnapshotYAML(want)
	if err != nil {
		t.Fatalf("MarshalSnapshotYAML: %v", err)
	}

	got, err := UnmarshalSnapshotYAML(data)
	if err != nil {
		t.Fatalf("UnmarshalSnapshotYAML: %v", err)
	}

	if got != want {
		t.Fatalf("round-tripped snapshot = %+v, want %+v", got, want)
	}
}

func TestUnmarshalSnapshotYAML_RejectsMalformedInput(t *testing.T) {
	if _, err := UnmarshalSnapshotYAML([]byte("iteration: [not, a, number]")); err == nil {
		t.Fatal("expected an error decoding malformed yaml")
	}
}
