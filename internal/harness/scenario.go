package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Scenario is a sequence of record operations against a fresh database.
type Scenario struct {
	// Name uniquely identifies the scenario. It names the golden file.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Driver overrides the SQLite driver (sqlite3 or sqlite).
	Driver string `yaml:"driver,omitempty"`

	// Returning forces RETURNING support on or off instead of probing.
	Returning *bool `yaml:"returning,omitempty"`

	// Schema holds the DDL statements run before the first step.
	Schema []string `yaml:"schema"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operations.
const (
	OpInsert         = "insert"
	OpUpdate         = "update"
	OpUpdateColumns  = "update_columns"
	OpUpdateChanges  = "update_changes"
	OpDelete         = "delete"
	OpExists         = "exists"
	OpSave           = "save"
	OpUpsert         = "upsert"
	OpInsertAndFetch = "insert_and_fetch"
	OpUpdateAndFetch = "update_and_fetch"
	OpSaveAndFetch   = "save_and_fetch"
	OpUpsertAndFetch = "upsert_and_fetch"
)

var stepOps = []string{
	OpInsert, OpUpdate, OpUpdateColumns, OpUpdateChanges, OpDelete, OpExists,
	OpSave, OpUpsert, OpInsertAndFetch, OpUpdateAndFetch, OpSaveAndFetch, OpUpsertAndFetch,
}

// Step runs one record operation.
type Step struct {
	Op    string `yaml:"op"`
	Table string `yaml:"table"`

	// Values is what the record encodes.
	Values Values `yaml:"values"`

	// Columns restricts update_columns.
	Columns []string `yaml:"columns,omitempty"`

	// Changes are applied to Values by the modify function of update_changes.
	Changes Values `yaml:"changes,omitempty"`

	// Conflict is the upsert conflict target. A single "key" entry targets
	// the table's only candidate key.
	Conflict []string `yaml:"conflict,omitempty"`

	// Selection lists the columns a fetch returns. Empty selects all.
	Selection []string `yaml:"selection,omitempty"`

	Hooks *HookBehavior `yaml:"hooks,omitempty"`

	// Expect is checked against the outcome. Without it the step must
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

func (s Step) fetches() bool {
	return strings.HasSuffix(s.Op, "_and_fetch")
}

func (s Step) upserts() bool {
	return s.Op == OpUpsert || s.Op == OpUpsertAndFetch
}

// HookBehavior changes how a step's record hooks behave.
type HookBehavior struct {
	// Suppress lists phases (insert, update, save, delete) whose around
	// hook does not call the persistence action.
	Suppress []string `yaml:"suppress,omitempty"`

	// Fail lists will hooks (will_insert, ...) that return an error.
	Fail []string `yaml:"fail,omitempty"`
}

// Expect describes the outcome of a step.
type Expect struct {
	// Error is the expected error class: RECORD_NOT_FOUND, CONSTRAINT,
	// HOOK_FAILED, ERROR, or a configuration error code such as NULL_KEY.
	Error string `yaml:"error,omitempty"`

	// RowID is the rowid returned by insert and upsert.
	RowID *int64 `yaml:"rowid,omitempty"`

	// Result is the boolean returned by delete, exists, update_changes and
	// the fetch operations.
	Result *bool `yaml:"result,omitempty"`

	// Row holds a subset of the fetched row.
	Row Values `yaml:"row,omitempty"`
}

// Assertion types.
const (
	AssertTableRows      = "table_rows"
	AssertStatementCount = "statement_count"
	AssertHookCount      = "hook_count"
)

// Assertion validates the final database and trace.
type Assertion struct {
	Type string `yaml:"type"`

	// Table is checked by table_rows.
	Table string `yaml:"table,omitempty"`

	// Rows are the exact table rows, in key order (table_rows).
	Rows []Values `yaml:"rows,omitempty"`

	// Count is the expected number of rows, statements or hook calls.
	Count *int `yaml:"count,omitempty"`

	// Op filters statement_count to one operation.
	Op string `yaml:"op,omitempty"`

	// Hook is the hook name counted by hook_count.
	Hook string `yaml:"hook,omitempty"`
}

// Field is one column value.
type Field struct {
	Column string
	Value  any
}

// Values is an ordered column to value mapping.
type Values []Field

// UnmarshalYAML keeps mapping order.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: values must be a mapping", node.Line)
	}
	out := make(Values, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var decoded any
		if err := val.Decode(&decoded); err != nil {
			return fmt.Errorf("line %d: column %q: %w", val.Line, key.Value, err)
		}
		switch d := decoded.(type) {
		case map[string]any, []any:
			return fmt.Errorf("line %d: column %q: nested values are not supported", val.Line, key.Value)
		case string:
			if val.Tag == "!!binary" {
				decoded = []byte(d)
			}
		}
		out = append(out, Field{Column: key.Value, Value: decoded})
	}
	*v = out
	return nil
}

// LoadScenario reads a YAML or CUE scenario file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	if filepath.Ext(path) == ".cue" {
		data, err = cueToJSON(path, data)
		if err != nil {
			return nil, err
		}
	}
	return ParseScenario(data)
}

// ParseScenario parses a YAML (or JSON) scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// cueToJSON evaluates a CUE file and exports it. Field order is kept.
func cueToJSON(path string, data []byte) ([]byte, error) {
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("failed to validate CUE: %w", err)
	}
	out, err := v.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export CUE: %w", err)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Schema) == 0 {
		return fmt.Errorf("schema list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	switch s.Driver {
	case "", "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown driver %q", s.Driver)
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, s *Step) error {
	if !slices.Contains(stepOps, s.Op) {
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}
	if s.Table == "" {
		return fmt.Errorf("steps[%d]: table is required", index)
	}
	if s.Values == nil {
		return fmt.Errorf("steps[%d]: values is required (use an empty map if no values)", index)
	}
	if s.Op == OpUpdateColumns && len(s.Columns) == 0 {
		return fmt.Errorf("steps[%d]: columns is required for update_columns", index)
	}
	if s.Op != OpUpdateColumns && len(s.Columns) > 0 {
		return fmt.Errorf("steps[%d]: columns is only valid for update_columns", index)
	}
	if s.Op == OpUpdateChanges && s.Changes == nil {
		return fmt.Errorf("steps[%d]: changes is required for update_changes", index)
	}
	if len(s.Conflict) > 0 && !s.upserts() {
		return fmt.Errorf("steps[%d]: conflict is only valid for upserts", index)
	}
	if len(s.Selection) > 0 && !s.fetches() {
		return fmt.Errorf("steps[%d]: selection is only valid for fetch operations", index)
	}
	if s.Expect != nil && s.Expect.Row != nil && !s.fetches() {
		return fmt.Errorf("steps[%d].expect: row is only valid for fetch operations", index)
	}
	if h := s.Hooks; h != nil {
		for _, p := range h.Suppress {
			if !slices.Contains([]string{"insert", "update", "save", "delete"}, p) {
				return fmt.Errorf("steps[%d].hooks: unknown phase %q", index, p)
			}
		}
		for _, name := range h.Fail {
			if !strings.HasPrefix(name, "will_") {
				return fmt.Errorf("steps[%d].hooks: only will hooks can fail, got %q", index, name)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTableRows:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_rows", index)
		}
		if a.Rows == nil && a.Count == nil {
			return fmt.Errorf("assertions[%d]: rows or count is required for table_rows", index)
		}
	case AssertStatementCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for statement_count", index)
		}
	case AssertHookCount:
		if a.Hook == "" {
			return fmt.Errorf("assertions[%d]: hook is required for hook_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for hook_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
