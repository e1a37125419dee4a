// Package memstore implements the structured project memory: six appendable
// sections plus the CurrentState singleton, persisted as assistant/memory.json.
package memstore

// Section names as they appear in the persisted document.
const (
	SectionObjectives   = "objectives"
	SectionEntities     = "entities"
	SectionDecisions    = "decisions"
	SectionConstraints  = "constraints"
	SectionStyleRules   = "style_rules"
	SectionTaskBacklog  = "task_backlog"
	SectionCurrentState = "current_state"
)

// Sections lists the seven sections in document order.
var Sections = []string{
	SectionObjectives,
	SectionEntities,
	SectionDecisions,
	SectionConstraints,
	SectionStyleRules,
	SectionTaskBacklog,
	SectionCurrentState,
}

// ValidPhases is the fixed vocabulary for CurrentState.Phase.
var ValidPhases = []string{"initialization", "planning", "production", "review", "completed"}

// Objective is a project goal.
type Objective struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	Added       string `json:"added"`
}

// Entity is a discovered project entity (character, location, theme, ...).
type Entity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
	Added      string         `json:"added"`
}

// Decision records a choice made during the project, with its rationale.
type Decision struct {
	ID        string `json:"id"`
	Decision  string `json:"decision"`
	Rationale string `json:"rationale"`
	MadeBy    string `json:"made_by"`
	Timestamp string `json:"timestamp"`
}

// Constraint is a restriction the project must honor.
type Constraint struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Added       string `json:"added"`
}

// StyleRule is a style guideline scoped to part of the project.
type StyleRule struct {
	ID        string `json:"id"`
	Rule      string `json:"rule"`
	AppliesTo string `json:"applies_to"`
	Added     string `json:"added"`
}

// Task is one backlog item.
type Task struct {
	ID       string `json:"id"`
	Task     string `json:"task"`
	Priority string `json:"priority"`
	Status   string `json:"status"`
	Added    string `json:"added"`
}

// CurrentState is the singleton describing where the project stands.
type CurrentState struct {
	Phase        string   `json:"phase"`
	Progress     int      `json:"progress"`
	ActiveTasks  []string `json:"active_tasks"`
	Blockers     []string `json:"blockers"`
	LastActivity string   `json:"last_activity"`
}

// ProjectMemory is the persisted memory document.
type ProjectMemory struct {
	SchemaVersion string       `json:"schema_version"`
	Objectives    []Objective  `json:"objectives"`
	Entities      []Entity     `json:"entities"`
	Decisions     []Decision   `json:"decisions"`
	Constraints   []Constraint `json:"constraints"`
	StyleRules    []StyleRule  `json:"style_rules"`
	TaskBacklog   []Task       `json:"task_backlog"`
	CurrentState  CurrentState `json:"current_state"`
}

// ValidPhase reports whether phase is in the fixed vocabulary.
func ValidPhase(phase string) bool {
	for _, p := range ValidPhases {
		if p == phase {
			return true
		}
	}
	return false
}
