package memstore

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// Store owns assistant/memory.json.
type Store struct {
	root   string
	log    *buildlog.Logger
	logger zerolog.Logger
}

// NewStore creates a memory store for a project root.
func NewStore(root string, log *buildlog.Logger, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		log:    log,
		logger: logger.With().Str("component", "memstore").Logger(),
	}
}

// Load reads and parses the memory document.
func (s *Store) Load() (*ProjectMemory, error) {
	path := layout.Path(s.root, layout.MemoryFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdef.NewStoreError("load", layout.MemoryFile, errdef.KindMissingFile, errdef.ErrNotFound)
		}
		return nil, errdef.NewStoreError("load", layout.MemoryFile, errdef.KindCorruptedData, err)
	}
	var mem ProjectMemory
	if err := json.Unmarshal(b, &mem); err != nil {
		return nil, errdef.NewStoreError("load", layout.MemoryFile, errdef.KindInvalidJSON, err)
	}
	return &mem, nil
}

func (s *Store) save(mem *ProjectMemory) error {
	return layout.WriteJSON(layout.Path(s.root, layout.MemoryFile), mem)
}

func nowStamp() string { return time.Now().UTC().Format(time.RFC3339) }

// AddObjective appends a new objective and persists atomically.
func (s *Store) AddObjective(description, priority string) (*Objective, error) {
	if description == "" {
		return nil, fmt.Errorf("objective description must not be empty: %w", errdef.ErrInvalidInput)
	}
	if priority == "" {
		priority = "medium"
	}
	o := Objective{
		ID:          uuid.New().String(),
		Description: description,
		Priority:    priority,
		Status:      "active",
		Added:       nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.Objectives = append(mem.Objectives, o)
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(SectionObjectives, o.ID)
	return &o, nil
}

// AddEntity appends a discovered entity.
func (s *Store) AddEntity(name, entityType string, attributes map[string]any) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("entity name must not be empty: %w", errdef.ErrInvalidInput)
	}
	if attributes == nil {
		attributes = map[string]any{}
	}
	e := Entity{
		ID:         uuid.New().String(),
		Name:       name,
		Type:       entityType,
		Attributes: attributes,
		Added:      nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.Entities = append(mem.Entities, e)
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(SectionEntities, e.ID)
	return &e, nil
}

// AddDecision appends a decision with its rationale.
func (s *Store) AddDecision(decision, rationale, madeBy string) (*Decision, error) {
	if decision == "" {
		return nil, fmt.Errorf("decision must not be empty: %w", errdef.ErrInvalidInput)
	}
	if madeBy == "" {
		madeBy = "assistant"
	}
	d := Decision{
		ID:        uuid.New().String(),
		Decision:  decision,
		Rationale: rationale,
		MadeBy:    madeBy,
		Timestamp: nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.Decisions = append(mem.Decisions, d)
	})
	if err != nil {
		return nil, err
	}
	if s.log != nil {
		_ = s.log.LogDecision(d.ID, decision, "memory_store")
	}
	return &d, nil
}

// AddConstraint appends a constraint.
func (s *Store) AddConstraint(description, category string) (*Constraint, error) {
	if description == "" {
		return nil, fmt.Errorf("constraint description must not be empty: %w", errdef.ErrInvalidInput)
	}
	if category == "" {
		category = "general"
	}
	c := Constraint{
		ID:          uuid.New().String(),
		Description: description,
		Category:    category,
		Added:       nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.Constraints = append(mem.Constraints, c)
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(SectionConstraints, c.ID)
	return &c, nil
}

// AddStyleRule appends a style rule.
func (s *Store) AddStyleRule(rule, appliesTo string) (*StyleRule, error) {
	if rule == "" {
		return nil, fmt.Errorf("style rule must not be empty: %w", errdef.ErrInvalidInput)
	}
	if appliesTo == "" {
		appliesTo = "all"
	}
	r := StyleRule{
		ID:        uuid.New().String(),
		Rule:      rule,
		AppliesTo: appliesTo,
		Added:     nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.StyleRules = append(mem.StyleRules, r)
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(SectionStyleRules, r.ID)
	return &r, nil
}

// AddTask appends a backlog task.
func (s *Store) AddTask(task, priority string) (*Task, error) {
	if task == "" {
		return nil, fmt.Errorf("task must not be empty: %w", errdef.ErrInvalidInput)
	}
	if priority == "" {
		priority = "medium"
	}
	t := Task{
		ID:       uuid.New().String(),
		Task:     task,
		Priority: priority,
		Status:   "pending",
		Added:    nowStamp(),
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.TaskBacklog = append(mem.TaskBacklog, t)
	})
	if err != nil {
		return nil, err
	}
	s.logUpdate(SectionTaskBacklog, t.ID)
	return &t, nil
}

// UpdateState replaces the CurrentState singleton after validating phase and
// progress against their domains.
func (s *Store) UpdateState(phase string, progress int, activeTasks, blockers []string) error {
	if !ValidPhase(phase) {
		return fmt.Errorf("invalid phase %q (valid: %v): %w", phase, ValidPhases, errdef.ErrValidation)
	}
	if progress < 0 || progress > 100 {
		return fmt.Errorf("progress must be in 0..100, got %d: %w", progress, errdef.ErrValidation)
	}
	if activeTasks == nil {
		activeTasks = []string{}
	}
	if blockers == nil {
		blockers = []string{}
	}
	err := s.mutate(func(mem *ProjectMemory) {
		mem.CurrentState = CurrentState{
			Phase:        phase,
			Progress:     progress,
			ActiveTasks:  activeTasks,
			Blockers:     blockers,
			LastActivity: nowStamp(),
		}
	})
	if err != nil {
		return err
	}
	if s.log != nil {
		_ = s.log.LogAction(buildlog.ActionStateUpdate, []string{layout.MemoryFile}, map[string]string{
			"phase":    phase,
			"progress": fmt.Sprintf("%d", progress),
		}, "memory_store")
	}
	return nil
}

// mutate loads, applies fn, touches last_activity, and persists atomically.
// Validation in callers happens strictly before mutate, so a rejected call
// leaves the file untouched.
func (s *Store) mutate(fn func(*ProjectMemory)) error {
	mem, err := s.Load()
	if err != nil {
		return err
	}
	fn(mem)
	mem.CurrentState.LastActivity = nowStamp()
	return s.save(mem)
}

func (s *Store) logUpdate(section, id string) {
	if s.log != nil {
		_ = s.log.LogMemoryUpdate(section, id, "memory_store")
	}
}
