package playbook

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultPlaybook []byte

// Default returns the built-in playbook.
func Default() *Playbook {
	pb, err := Parse(defaultPlaybook)
	if err != nil {
		panic(fmt.Sprintf("built-in playbook is invalid: %v", err))
	}
	return pb
}

// LoadFile reads and validates a playbook from a YAML or JSON file.
func LoadFile(path string) (*Playbook, error) {
	pb, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if _, err := Validate(pb.Tasks); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return pb, nil
}

// ReadFile reads a playbook without checking its task graph.
func ReadFile(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	pb, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return pb, nil
}

// Parse decodes a playbook document and validates its task graph.
func Parse(data []byte) (*Playbook, error) {
	pb, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if _, err := Validate(pb.Tasks); err != nil {
		return nil, err
	}
	return pb, nil
}

// Decode decodes a playbook document. Sections not modelled by Playbook
// (protocols, guidelines) are ignored.
func Decode(data []byte) (*Playbook, error) {
	var pb Playbook
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&pb); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing playbook: empty document")
		}
		return nil, fmt.Errorf("parsing playbook: %w", err)
	}
	return &pb, nil
}

// Task returns the task with the given ID.
func (p *Playbook) Task(id string) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t.Clone(), true
		}
	}
	return Task{}, false
}

// Persona returns the team persona for an agent name.
func (p *Playbook) Persona(agent string) (Persona, bool) {
	for _, persona := range p.Team.Prompts {
		if persona.Agent == agent {
			return persona, true
		}
	}
	return Persona{}, false
}

// Dependents returns the IDs of tasks that list id as a dependency, in list order.
func (p *Playbook) Dependents(id string) []string {
	var out []string
	for _, t := range p.Tasks {
		for _, dep := range t.Deps {
			if dep == id {
				out = append(out, t.ID)
				break
			}
		}
	}
	return out
}

// TasksByRole counts tasks per role in role order. Roles without tasks are
// omitted; task roles missing from the role list are appended in first-seen order.
func (p *Playbook) TasksByRole() []RoleCount {
	counts := make(map[string]int)
	var extra []string
	known := make(map[string]bool, len(p.Roles))
	for _, r := range p.Roles {
		known[r.Title] = true
	}
	for _, t := range p.Tasks {
		if !known[t.Role] && counts[t.Role] == 0 {
			extra = append(extra, t.Role)
		}
		counts[t.Role]++
	}

	var out []RoleCount
	for _, r := range p.Roles {
		if n := counts[r.Title]; n > 0 {
			out = append(out, RoleCount{Role: r.Title, Count: n})
		}
	}
	for _, role := range extra {
		out = append(out, RoleCount{Role: role, Count: counts[role]})
	}
	return out
}

// CloneTasks returns a deep copy of the task list.
func (p *Playbook) CloneTasks() []Task {
	tasks := make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		tasks[i] = t.Clone()
	}
	return tasks
}
