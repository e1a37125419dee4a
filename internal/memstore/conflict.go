package memstore

import (
	"encoding/json"
	"fmt"

	"github.com/p-blackswan/memvault/internal/errdef"
)

// ResolveTemporalConflict locates an existing record by id, overlays the new
// fields, and advances its timestamp to the resolution time. Last writer by
// timestamp wins; this is the only update mechanism for section entries.
func (s *Store) ResolveTemporalConflict(section, id string, newFields map[string]any) error {
	if len(newFields) == 0 {
		return fmt.Errorf("no fields to resolve: %w", errdef.ErrInvalidInput)
	}
	now := nowStamp()

	err := s.mutateChecked(func(mem *ProjectMemory) error {
		switch section {
		case SectionObjectives:
			for i := range mem.Objectives {
				if mem.Objectives[i].ID == id {
					return overlay(&mem.Objectives[i], newFields, "added", now)
				}
			}
		case SectionEntities:
			for i := range mem.Entities {
				if mem.Entities[i].ID == id {
					return overlay(&mem.Entities[i], newFields, "added", now)
				}
			}
		case SectionDecisions:
			for i := range mem.Decisions {
				if mem.Decisions[i].ID == id {
					return overlay(&mem.Decisions[i], newFields, "timestamp", now)
				}
			}
		case SectionConstraints:
			for i := range mem.Constraints {
				if mem.Constraints[i].ID == id {
					return overlay(&mem.Constraints[i], newFields, "added", now)
				}
			}
		case SectionStyleRules:
			for i := range mem.StyleRules {
				if mem.StyleRules[i].ID == id {
					return overlay(&mem.StyleRules[i], newFields, "added", now)
				}
			}
		case SectionTaskBacklog:
			for i := range mem.TaskBacklog {
				if mem.TaskBacklog[i].ID == id {
					return overlay(&mem.TaskBacklog[i], newFields, "added", now)
				}
			}
		default:
			return fmt.Errorf("unknown section %q: %w", section, errdef.ErrInvalidInput)
		}
		return fmt.Errorf("entry %s not found in %s: %w", id, section, errdef.ErrNotFound)
	})
	if err != nil {
		return err
	}
	s.logUpdate(section, id)
	return nil
}

// mutateChecked is like mutate but lets fn reject the mutation; nothing is
// written when fn errors.
func (s *Store) mutateChecked(fn func(*ProjectMemory) error) error {
	mem, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(mem); err != nil {
		return err
	}
	mem.CurrentState.LastActivity = nowStamp()
	return s.save(mem)
}

// overlay merges newFields into a typed entry via a JSON round-trip, keeping
// the record tagged rather than an untyped bag. The id is never overwritten
// and the timestamp field is advanced to the resolution time.
func overlay[T any](entry *T, newFields map[string]any, tsField, now string) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to decode entry: %w", err)
	}
	for k, v := range newFields {
		if k == "id" {
			continue
		}
		m[k] = v
	}
	m[tsField] = now

	merged, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to re-encode entry: %w", err)
	}
	var out T
	if err := json.Unmarshal(merged, &out); err != nil {
		return fmt.Errorf("merged fields do not fit the record schema: %w", errdef.ErrValidation)
	}
	*entry = out
	return nil
}
