package agent

import "testing"

func TestNewToolCallID_ProducesDistinctIDs(t *testing.T) {
	if NewToolCallID() == NewToolCallID() {
		t.Fatal("expected distinct ids across calls")
	}
}
