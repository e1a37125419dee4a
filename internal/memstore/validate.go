package memstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/p-blackswan/memvault/internal/layout"
)

// ValidateSchema checks structural completeness of all seven sections.
// It returns pass/fail plus one description per problem found.
func (s *Store) ValidateSchema() (bool, []string) {
	b, err := os.ReadFile(layout.Path(s.root, layout.MemoryFile))
	if err != nil {
		return false, []string{fmt.Sprintf("cannot read memory file: %v", err)}
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return false, []string{fmt.Sprintf("memory file is not valid JSON: %v", err)}
	}

	var problems []string
	if v, ok := doc["schema_version"].(string); !ok || v == "" {
		problems = append(problems, "missing schema_version")
	}
	for _, section := range Sections {
		raw, ok := doc[section]
		if !ok {
			problems = append(problems, fmt.Sprintf("missing section %q", section))
			continue
		}
		if section == SectionCurrentState {
			problems = append(problems, validateState(raw)...)
			continue
		}
		entries, ok := raw.([]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("section %q is not a list", section))
			continue
		}
		tsField := "added"
		if section == SectionDecisions {
			tsField = "timestamp"
		}
		for i, e := range entries {
			entry, ok := e.(map[string]any)
			if !ok {
				problems = append(problems, fmt.Sprintf("%s[%d] is not a record", section, i))
				continue
			}
			if id, ok := entry["id"].(string); !ok || id == "" {
				problems = append(problems, fmt.Sprintf("%s[%d] has no id", section, i))
			}
			if ts, ok := entry[tsField].(string); !ok || ts == "" {
				problems = append(problems, fmt.Sprintf("%s[%d] has no %s timestamp", section, i, tsField))
			}
		}
	}
	return len(problems) == 0, problems
}

func validateState(raw any) []string {
	state, ok := raw.(map[string]any)
	if !ok {
		return []string{"current_state is not a record"}
	}
	var problems []string
	phase, _ := state["phase"].(string)
	if !ValidPhase(phase) {
		problems = append(problems, fmt.Sprintf("current_state.phase %q is not in the phase vocabulary", phase))
	}
	switch p := state["progress"].(type) {
	case float64:
		if p != float64(int(p)) || p < 0 || p > 100 {
			problems = append(problems, fmt.Sprintf("current_state.progress %v is not an integer in 0..100", p))
		}
	default:
		problems = append(problems, "current_state.progress is not a number")
	}
	if _, ok := state["active_tasks"].([]any); !ok {
		problems = append(problems, "current_state.active_tasks is not a list")
	}
	if _, ok := state["blockers"].([]any); !ok {
		problems = append(problems, "current_state.blockers is not a list")
	}
	if ts, ok := state["last_activity"].(string); !ok || ts == "" {
		problems = append(problems, "current_state.last_activity is missing")
	}
	return problems
}

// GetAsMapping flattens the whole memory record for consumption by the
// calling assistant.
func (s *Store) GetAsMapping() (map[string]any, error) {
	mem, err := s.Load()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(mem)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal memory: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode memory mapping: %w", err)
	}
	return m, nil
}
