package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lectern/internal/doc"
)

// Scenario defines a verification scenario: a sequence of library writes
// followed by assertions on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Backend selects "sqlite" (default, in memory) or "file" (temp directory).
	Backend string `yaml:"backend,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one library operation.
type Step struct {
	// Op is one of create, update, revert, rebuild.
	Op string `yaml:"op"`

	// As names the item created by a create step.
	As string `yaml:"as,omitempty"`

	// Item is the alias targeted by update, revert and rebuild.
	Item string `yaml:"item,omitempty"`

	// Type and Payload describe the item for create.
	Type    string         `yaml:"type,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Delta is merged by update.
	Delta map[string]any `yaml:"delta,omitempty"`

	// FromVersion makes update use that version's full snapshot as the delta.
	FromVersion int64 `yaml:"from_version,omitempty"`

	// Version is the target of revert.
	Version int64 `yaml:"version,omitempty"`

	Author        string `yaml:"author,omitempty"`
	Device        string `yaml:"device,omitempty"`
	Summary       string `yaml:"summary,omitempty"`
	ExpectVersion *int64 `yaml:"expect_version,omitempty"`

	// ExpectError makes the step pass only if it fails with this category:
	// not_found, conflict or invalid.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the final state of one item.
type Assertion struct {
	// Type specifies the assertion type:
	// - "version": current version equals Expect
	// - "field": current value of Field equals Expect
	// - "history_length": history holds Count commits
	// - "chain_valid": Verify reports no problems
	// - "hash_equals_version": current content hash equals that of Version
	// - "hash_changed": versions From and To have different content hashes
	Type string `yaml:"type"`

	Item    string `yaml:"item"`
	Field   string `yaml:"field,omitempty"`
	Expect  any    `yaml:"expect,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Version int64  `yaml:"version,omitempty"`
	From    int64  `yaml:"from,omitempty"`
	To      int64  `yaml:"to,omitempty"`
}

// Step operations.
const (
	OpCreate  = "create"
	OpUpdate  = "update"
	OpRevert  = "revert"
	OpRebuild = "rebuild"
)

// Assertion type constants.
const (
	AssertVersion           = "version"
	AssertField             = "field"
	AssertHistoryLength     = "history_length"
	AssertChainValid        = "chain_valid"
	AssertHashEqualsVersion = "hash_equals_version"
	AssertHashChanged       = "hash_changed"
)

// Expected error categories.
const (
	ExpectNotFound = "not_found"
	ExpectConflict = "conflict"
	ExpectInvalid  = "invalid"
)

// Backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// alias is created before it is used.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Backend {
	case "", BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, aliases); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, aliases map[string]bool) error {
	switch step.ExpectError {
	case "", ExpectNotFound, ExpectConflict, ExpectInvalid:
	default:
		return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
	}

	switch step.Op {
	case OpCreate:
		if step.As == "" {
			return fmt.Errorf("steps[%d]: as is required for create", i)
		}
		if aliases[step.As] {
			return fmt.Errorf("steps[%d]: alias %q already created", i, step.As)
		}
		if !doc.ItemType(step.Type).Valid() {
			return fmt.Errorf("steps[%d]: unknown item type %q", i, step.Type)
		}
		if step.Payload == nil {
			return fmt.Errorf("steps[%d]: payload is required for create", i)
		}
		if step.ExpectError == "" {
			aliases[step.As] = true
		}
		return nil
	case OpUpdate, OpRevert, OpRebuild:
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if step.Item == "" {
		return fmt.Errorf("steps[%d]: item is required for %s", i, step.Op)
	}
	if !aliases[step.Item] && step.ExpectError != ExpectNotFound {
		return fmt.Errorf("steps[%d]: item %q is not created by an earlier step", i, step.Item)
	}
	if step.Op == OpUpdate && step.Delta == nil && step.FromVersion == 0 {
		return fmt.Errorf("steps[%d]: update needs delta or from_version", i)
	}
	if step.Op == OpUpdate && step.Delta != nil && step.FromVersion != 0 {
		return fmt.Errorf("steps[%d]: delta and from_version are mutually exclusive", i)
	}
	if step.Op == OpRevert && step.Version < 1 {
		return fmt.Errorf("steps[%d]: version is required for revert", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(i int, a Assertion, aliases map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", i)
	}
	if !aliases[a.Item] {
		return fmt.Errorf("assertions[%d]: unknown item %q", i, a.Item)
	}

	switch a.Type {
	case AssertVersion:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for version", i)
		}
	case AssertField:
		if a.Field == "" {
			return fmt.Errorf("assertions[%d]: field is required for field", i)
		}
	case AssertHistoryLength:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_length", i)
		}
	case AssertChainValid:
	case AssertHashEqualsVersion:
		if a.Version < 1 {
			return fmt.Errorf("assertions[%d]: version is required for hash_equals_version", i)
		}
	case AssertHashChanged:
		if a.From < 1 || a.To < 1 {
			return fmt.Errorf("assertions[%d]: from and to are required for hash_changed", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}
