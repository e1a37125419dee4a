// Package variables implements the typed key/value store backed by
// assistant/variables.json. A variable's type is fixed at first write; any
// later write whose runtime value does not match the declared type fails and
// leaves the store unchanged.
package variables

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/memvault/internal/buildlog"
	"github.com/p-blackswan/memvault/internal/errdef"
	"github.com/p-blackswan/memvault/internal/layout"
)

// VarType is the declared type tag of a variable.
type VarType string

const (
	TypeString  VarType = "string"
	TypeNumber  VarType = "number"
	TypeBoolean VarType = "boolean"
	TypeArray   VarType = "array"
	TypeObject  VarType = "object"
)

// Variable is one stored value with its type tag.
type Variable struct {
	Value        any     `json:"value"`
	Type         VarType `json:"type"`
	Description  string  `json:"description,omitempty"`
	LastModified string  `json:"last_modified"`
}

type document struct {
	SchemaVersion string              `json:"schema_version"`
	Variables     map[string]Variable `json:"variables"`
}

// Store owns assistant/variables.json.
type Store struct {
	root   string
	log    *buildlog.Logger
	logger zerolog.Logger
}

// NewStore creates a variables store for a project root.
func NewStore(root string, log *buildlog.Logger, logger zerolog.Logger) *Store {
	return &Store{
		root:   root,
		log:    log,
		logger: logger.With().Str("component", "variables").Logger(),
	}
}

func (s *Store) load() (*document, error) {
	path := layout.Path(s.root, layout.VariablesFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errdef.NewStoreError("load", layout.VariablesFile, errdef.KindMissingFile, errdef.ErrNotFound)
		}
		return nil, errdef.NewStoreError("load", layout.VariablesFile, errdef.KindCorruptedData, err)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errdef.NewStoreError("load", layout.VariablesFile, errdef.KindInvalidJSON, err)
	}
	if doc.Variables == nil {
		doc.Variables = map[string]Variable{}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	if doc.SchemaVersion == "" {
		doc.SchemaVersion = layout.SchemaVersion
	}
	return layout.WriteJSON(layout.Path(s.root, layout.VariablesFile), doc)
}

// InferType maps a runtime value onto a variable type tag.
func InferType(value any) (VarType, error) {
	switch value.(type) {
	case string:
		return TypeString, nil
	case bool:
		return TypeBoolean, nil
	case int, int8, int16, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return TypeNumber, nil
	case nil:
		return "", fmt.Errorf("nil values are not supported: %w", errdef.ErrInvalidInput)
	}
	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return TypeArray, nil
	case reflect.Map:
		return TypeObject, nil
	}
	return "", fmt.Errorf("unsupported value type %T: %w", value, errdef.ErrInvalidInput)
}

func validType(t VarType) bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeArray, TypeObject:
		return true
	}
	return false
}

// Set writes a variable. With declaredType empty the type is inferred from
// the value; otherwise the declared type must match the runtime value. A
// variable that already exists keeps its original type for life.
func (s *Store) Set(name string, value any, declaredType VarType, description string) error {
	if name == "" {
		return fmt.Errorf("variable name must not be empty: %w", errdef.ErrInvalidInput)
	}
	inferred, err := InferType(value)
	if err != nil {
		return err
	}
	if declaredType == "" {
		declaredType = inferred
	} else {
		if !validType(declaredType) {
			return fmt.Errorf("unsupported type tag %q: %w", declaredType, errdef.ErrInvalidInput)
		}
		if declaredType != inferred {
			return fmt.Errorf("value of type %s does not match declared type %s: %w", inferred, declaredType, errdef.ErrTypeMismatch)
		}
	}

	doc, err := s.load()
	if err != nil {
		return err
	}
	if existing, ok := doc.Variables[name]; ok && existing.Type != declaredType {
		return fmt.Errorf("variable %q is declared %s, cannot write %s: %w", name, existing.Type, declaredType, errdef.ErrTypeMismatch)
	}

	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	v := Variable{
		Value:        normalized,
		Type:         declaredType,
		Description:  description,
		LastModified: time.Now().UTC().Format(time.RFC3339),
	}
	if description == "" {
		// Keep the earlier description when the caller omits one.
		if existing, ok := doc.Variables[name]; ok {
			v.Description = existing.Description
		}
	}
	doc.Variables[name] = v
	if err := s.save(doc); err != nil {
		return err
	}
	s.logChange(name, "set")
	return nil
}

// Get returns the variable value, or def for unknown names (no error).
func (s *Store) Get(name string, def any) (any, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := doc.Variables[name]
	if !ok {
		return def, nil
	}
	return v.Value, nil
}

// GetVariable returns the full record for a name, or nil when absent.
func (s *Store) GetVariable(name string) (*Variable, error) {
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := doc.Variables[name]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

// Delete removes a variable. Unknown names are an error.
func (s *Store) Delete(name string) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := doc.Variables[name]; !ok {
		return fmt.Errorf("variable %q: %w", name, errdef.ErrNotFound)
	}
	delete(doc.Variables, name)
	if err := s.save(doc); err != nil {
		return err
	}
	s.logChange(name, "delete")
	return nil
}

// ClearAll removes every variable.
func (s *Store) ClearAll() error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	doc.Variables = map[string]Variable{}
	if err := s.save(doc); err != nil {
		return err
	}
	s.logChange("*", "clear_all")
	return nil
}

// Exists reports whether a variable is present.
func (s *Store) Exists(name string) (bool, error) {
	doc, err := s.load()
	if err != nil {
		return false, err
	}
	_, ok := doc.Variables[name]
	return ok, nil
}

// Count returns the number of stored variables.
func (s *Store) Count() (int, error) {
	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(doc.Variables), nil
}

// normalize round-trips a value through JSON so stored values are always
// JSON-native (float64 numbers, []any, map[string]any) and round-trip stable.
func normalize(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-serializable: %w", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return out, nil
}

func (s *Store) logChange(name, op string) {
	if s.log != nil {
		_ = s.log.LogVariableChange(name, op, "variables_store")
	}
}
