package scheduler

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// NewTaskID returns a fresh opaque task id for a caller decomposing work that
// doesn't already carry its own stable id scheme.
func NewTaskID() string {
	return uuid.NewString()
}

// SubtaskDescriptor is the wire shape of one decomposed subtask, matching the
// id/description/deps/target-files/read-files fields a Node carries. Decoding
// input is wire-format-agnostic; this is the YAML shape a caller's own
// decomposition step would naturally reach for.
type SubtaskDescriptor struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	Deps        []string `yaml:"deps,omitempty"`
	TargetFiles []string `yaml:"target_files,omitempty"`
	ReadFiles   []string `yaml:"read_files,omitempty"`
}

// subtaskDocument is the top-level YAML document shape: a list under a
// "subtasks" key rather than a bare sequence, so callers can add sibling keys
// (a decomposition id, a generated-at timestamp) without breaking decoding.
type subtaskDocument struct {
	Subtasks []SubtaskDescriptor `yaml:"subtasks"`
}

// DecodeSubtasks parses a YAML document of decomposed subtasks and returns
// one Node per descriptor, assigning a fresh id via NewTaskID to any
// descriptor whose ID is empty. It does not add the nodes to a Graph; callers
// do that themselves so they can inspect or filter the result first.
func DecodeSubtasks(data []byte) ([]*Node, error) {
	var doc subtaskDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("scheduler: decoding subtasks yaml: %w", err)
	}

	nodes := make([]*Node, 0, len(doc.Subtasks))
	for _, d := range doc.Subtasks {
		id := d.ID
		if id == "" {
			id = NewTaskID()
		}
		nodes = append(nodes, &Node{
			ID:          id,
			Description: d.Description,
			Deps:        d.Deps,
			TargetFiles: d.TargetFiles,
			ReadFiles:   d.ReadFiles,
		})
	}
	return nodes, nil
}

// EncodeSubtasks serializes a set of nodes back to the same YAML shape
// DecodeSubtasks consumes, for callers persisting a decomposition alongside a
// run's other YAML-based records.
func EncodeSubtasks(nodes []*Node) ([]byte, error) {
	doc := subtaskDocument{Subtasks: make([]SubtaskDescriptor, 0, len(nodes))}
	for _, n := range nodes {
		doc.Subtasks = append(doc.Subtasks, SubtaskDescriptor{
			ID:          n.ID,
			Description: n.Description,
			Deps:        n.Deps,
			TargetFiles: n.TargetFiles,
			ReadFiles:   n.ReadFiles,
		})
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("scheduler: encoding subtasks yaml: %w", err)
	}
	return data, nil
}
