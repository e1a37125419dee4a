package variables

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/p-blackswan/memvault/internal/errdef"
)

// SetNestedValue addresses a sub-field of an object-typed variable by a
// dot-separated key path, creating intermediate objects as needed.
func (s *Store) SetNestedValue(name, keyPath string, value any) error {
	keys := splitPath(keyPath)
	if len(keys) == 0 {
		return fmt.Errorf("empty key path: %w", errdef.ErrInvalidInput)
	}
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	err = s.mutateTyped(name, TypeObject, func(v *Variable) error {
		obj, ok := v.Value.(map[string]any)
		if !ok {
			return fmt.Errorf("variable %q does not hold an object: %w", name, errdef.ErrTypeMismatch)
		}
		cur := obj
		for _, k := range keys[:len(keys)-1] {
			next, ok := cur[k].(map[string]any)
			if !ok {
				if _, present := cur[k]; present {
					return fmt.Errorf("path element %q is not an object: %w", k, errdef.ErrTypeMismatch)
				}
				next = map[string]any{}
				cur[k] = next
			}
			cur = next
		}
		cur[keys[len(keys)-1]] = normalized
		v.Value = obj
		return nil
	})
	if err != nil {
		return err
	}
	s.logChange(name, "set_nested")
	return nil
}

// GetNestedValue resolves a dot-separated key path inside an object-typed
// variable.
func (s *Store) GetNestedValue(name, keyPath string) (any, error) {
	keys := splitPath(keyPath)
	if len(keys) == 0 {
		return nil, fmt.Errorf("empty key path: %w", errdef.ErrInvalidInput)
	}
	v, err := s.GetVariable(name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, fmt.Errorf("variable %q: %w", name, errdef.ErrNotFound)
	}
	if v.Type != TypeObject {
		return nil, fmt.Errorf("variable %q is %s, not object: %w", name, v.Type, errdef.ErrTypeMismatch)
	}
	cur, ok := v.Value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("variable %q does not hold an object: %w", name, errdef.ErrTypeMismatch)
	}
	for i, k := range keys {
		val, present := cur[k]
		if !present {
			return nil, fmt.Errorf("key path %q: %w", keyPath, errdef.ErrNotFound)
		}
		if i == len(keys)-1 {
			return val, nil
		}
		cur, ok = val.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path element %q is not an object: %w", k, errdef.ErrTypeMismatch)
		}
	}
	return nil, fmt.Errorf("key path %q: %w", keyPath, errdef.ErrNotFound)
}

// IncrementCounter adds delta to a number-typed variable and returns the new
// value. A missing variable starts from zero.
func (s *Store) IncrementCounter(name string, delta float64) (float64, error) {
	var result float64
	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	v, ok := doc.Variables[name]
	if !ok {
		v = Variable{Value: float64(0), Type: TypeNumber}
	}
	if v.Type != TypeNumber {
		return 0, fmt.Errorf("variable %q is %s, not number: %w", name, v.Type, errdef.ErrTypeMismatch)
	}
	cur, ok := v.Value.(float64)
	if !ok {
		return 0, fmt.Errorf("variable %q does not hold a number: %w", name, errdef.ErrTypeMismatch)
	}
	result = cur + delta
	v.Value = result
	v.LastModified = time.Now().UTC().Format(time.RFC3339)
	doc.Variables[name] = v
	if err := s.save(doc); err != nil {
		return 0, err
	}
	s.logChange(name, "increment")
	return result, nil
}

// AppendToList appends an item to an array-typed variable. A missing
// variable starts as an empty array.
func (s *Store) AppendToList(name string, item any) error {
	normalized, err := normalize(item)
	if err != nil {
		return err
	}
	doc, err := s.load()
	if err != nil {
		return err
	}
	v, ok := doc.Variables[name]
	if !ok {
		v = Variable{Value: []any{}, Type: TypeArray}
	}
	if v.Type != TypeArray {
		return fmt.Errorf("variable %q is %s, not array: %w", name, v.Type, errdef.ErrTypeMismatch)
	}
	list, ok := v.Value.([]any)
	if !ok {
		return fmt.Errorf("variable %q does not hold an array: %w", name, errdef.ErrTypeMismatch)
	}
	v.Value = append(list, normalized)
	v.LastModified = time.Now().UTC().Format(time.RFC3339)
	doc.Variables[name] = v
	if err := s.save(doc); err != nil {
		return err
	}
	s.logChange(name, "append")
	return nil
}

// RemoveFromList removes the first deep-equal match of item from an
// array-typed variable; an absent item is an error.
func (s *Store) RemoveFromList(name string, item any) error {
	normalized, err := normalize(item)
	if err != nil {
		return err
	}
	err = s.mutateTyped(name, TypeArray, func(v *Variable) error {
		list, ok := v.Value.([]any)
		if !ok {
			return fmt.Errorf("variable %q does not hold an array: %w", name, errdef.ErrTypeMismatch)
		}
		for i, existing := range list {
			if reflect.DeepEqual(existing, normalized) {
				v.Value = append(list[:i:i], list[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("item not present in %q: %w", name, errdef.ErrNotFound)
	})
	if err != nil {
		return err
	}
	s.logChange(name, "remove")
	return nil
}

// mutateTyped loads an existing variable, checks its declared type, applies
// fn, touches last_modified, and persists. Nothing is written when fn errors.
func (s *Store) mutateTyped(name string, want VarType, fn func(*Variable) error) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	v, ok := doc.Variables[name]
	if !ok {
		return fmt.Errorf("variable %q: %w", name, errdef.ErrNotFound)
	}
	if v.Type != want {
		return fmt.Errorf("variable %q is %s, not %s: %w", name, v.Type, want, errdef.ErrTypeMismatch)
	}
	if err := fn(&v); err != nil {
		return err
	}
	v.LastModified = time.Now().UTC().Format(time.RFC3339)
	doc.Variables[name] = v
	return s.save(doc)
}

func splitPath(keyPath string) []string {
	parts := strings.Split(keyPath, ".")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
