package scheduler

import (
	"strings"
	"testing"
)

func TestDecodeSubtasks_ParsesFullShape(t *testing.T) {
	doc := `
subtasks:
  - id: root
    description: set up scaffolding
  - id: leaf
    description: fill in details
    deps: [root]
    target_files: [a.go]
    read_files: [spec.md]
`
	nodes, err := DecodeSubtasks([]byte(doc))
	if err != nil {
		t.Fatalf("DecodeSubtasks: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
	if nodes[1].ID != "leaf" || nodes[1].Deps[0] != "root" {
		t.Fatalf("unexpected leaf node: %+v", nodes[1])
	}
	if nodes[1].TargetFiles[0] != "a.go" || nodes[1].ReadFiles[0] != "spec.md" {
		t.Fatalf("file footprints not decoded: %+v", nodes[1])
	}
}

func TestDecodeSubtasks_AssignsIDWhenMissing(t *testing.T) {
	nodes, err := DecodeSubtasks([]byte("subtasks:\n  - description: no id given\n"))
	if err != nil {
		t.Fatalf("DecodeSubtasks: %v", err)
	}
	if nodes[0].ID == "" {
		t.Fatal("expected a generated id for a descriptor with no id")
	}
}

func TestDecodeSubtasks_RejectsMalformedYAML(t *testing.T) {
	if _, err := DecodeSubtasks([]byte("subtasks: [this is not a mapping")); err == nil {
		t.Fatal("expected an error for malformed yaml")
	}
}

func TestEncodeSubtasks_RoundTripsThroughDecode(t *testing.T) {
	g := NewGraph()
	g.AddTask(&Node{ID: "root", Description: "first", TargetFiles: []string{"a.go"}})
	g.AddTask(&Node{ID: "leaf", Description: "second", Deps: []string{"root"}, ReadFiles: []string{"a.go"}})

	nodes := []*Node{}
	for _, id := range []string{"root", "leaf"} {
		n, _ := g.Get(id)
		nodes = append(nodes, n)
	}

	data, err := EncodeSubtasks(nodes)
	if err != nil {
		t.Fatalf("EncodeSubtasks: %v", err)
	}
	if !strings.Contains(string(data), "leaf") {
		t.Fatalf("encoded yaml missing leaf node: %s", data)
	}

	decoded, err := DecodeSubtasks(data)
	if err != nil {
		t.Fatalf("DecodeSubtasks(EncodeSubtasks(...)): %v", err)
	}
	if len(decoded) != 2 || decoded[1].ID != "leaf" || decoded[1].Deps[0] != "root" {
		t.Fatalf("round trip lost data: %+v", decoded)
	}
}

func TestNewTaskID_ProducesDistinctIDs(t *testing.T) {
	if NewTaskID() == NewTaskID() {
		t.Fatal("expected distinct ids across calls")
	}
}
