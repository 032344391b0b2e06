package playbook

// Role is a responsibility area tasks are grouped under.
type Role struct {
	Title   string `yaml:"title" json:"title"`
	Purpose string `yaml:"purpose" json:"purpose"`
}

// Task is a unit of simulated work. Tasks are immutable once loaded.
type Task struct {
	ID          string   `yaml:"id" json:"id"`                   // Unique identifier
	Description string   `yaml:"description" json:"description"` // Human-readable text
	Role        string   `yaml:"role" json:"role"`               // Role title (display grouping only)
	Agent       string   `yaml:"agent" json:"agent"`             // Persona assigned (display only)
	Deps        []string `yaml:"deps" json:"deps"`               // Task IDs that must complete first
}

// Persona is an agent definition from the playbook team.
type Persona struct {
	Agent        string `yaml:"agent" json:"agent"`
	Role         string `yaml:"role" json:"role"`
	SystemPrompt string `yaml:"system_prompt" json:"system_prompt"`
}

// Team groups the personas of a playbook.
type Team struct {
	Notes   string    `yaml:"notes" json:"notes"`
	Prompts []Persona `yaml:"prompts" json:"prompts"`
}

// Playbook is the static document the simulator runs over.
type Playbook struct {
	HighLevelGoal string `yaml:"high_level_goal" json:"high_level_goal"`
	Reasoning     string `yaml:"reasoning" json:"reasoning"`
	Roles         []Role `yaml:"roles" json:"roles"`
	Tasks         []Task `yaml:"tasks" json:"tasks"`
	Team          Team   `yaml:"team" json:"team"`
}

// RoleCount is the number of tasks assigned to a role.
type RoleCount struct {
	Role  string `json:"role"`
	Count int    `json:"count"`
}

// Clone returns a deep copy of the task.
func (t Task) Clone() Task {
	cp := t
	if t.Deps != nil {
		cp.Deps = append([]string(nil), t.Deps...)
	}
	return cp
}
