package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/library"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Item     string // Alias of the inspected item
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s on %s\n", e.Type, e.Item)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the store and returns
// one message per failure. ids maps scenario aliases to item ids.
func EvaluateAssertions(ctx context.Context, lib *library.Store, ids map[string]string, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(ctx, lib, ids, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(ctx context.Context, lib *library.Store, ids map[string]string, a Assertion) error {
	id, ok := ids[a.Item]
	if !ok {
		return fmt.Errorf("item %q was never created", a.Item)
	}

	switch a.Type {
	case AssertVersion:
		return assertVersion(ctx, lib, id, a)
	case AssertField:
		return assertField(ctx, lib, id, a)
	case AssertHistoryLength:
		return assertHistoryLength(ctx, lib, id, a)
	case AssertChainValid:
		return assertChainValid(ctx, lib, id, a)
	case AssertHashEqualsVersion:
		return assertHashEqualsVersion(ctx, lib, id, a)
	case AssertHashChanged:
		return assertHashChanged(ctx, lib, id, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func current(ctx context.Context, lib *library.Store, id string) (doc.Item, error) {
	it, found, err := lib.Get(ctx, id)
	if err != nil {
		return doc.Item{}, err
	}
	if !found {
		return doc.Item{}, fmt.Errorf("%s: %w", id, library.ErrItemNotFound)
	}
	return it, nil
}

func assertVersion(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	it, err := current(ctx, lib, id)
	if err != nil {
		return err
	}
	want, err := doc.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	if want != doc.Int(it.Version) {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("version %v", a.Expect),
			Actual:   fmt.Sprintf("version %d", it.Version),
		}
	}
	return nil
}

// assertField compares canonical encodings, so nested values match
// regardless of key order. A nil expectation asserts the field is absent.
func assertField(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	it, err := current(ctx, lib, id)
	if err != nil {
		return err
	}
	got, present := it.Field(a.Field)

	if a.Expect == nil {
		if present {
			return &AssertionError{
				Type:     a.Type,
				Item:     a.Item,
				Expected: fmt.Sprintf("%s absent", a.Field),
				Actual:   fmt.Sprintf("%s = %s", a.Field, encode(got)),
			}
		}
		return nil
	}

	want, err := doc.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	if !present {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("%s = %s", a.Field, encode(want)),
			Actual:   fmt.Sprintf("%s absent", a.Field),
		}
	}
	if encode(want) != encode(got) {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("%s = %s", a.Field, encode(want)),
			Actual:   fmt.Sprintf("%s = %s", a.Field, encode(got)),
		}
	}
	return nil
}

func encode(v doc.Value) string {
	data, err := doc.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func assertHistoryLength(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	commits, err := lib.GetHistory(ctx, id)
	if err != nil {
		return err
	}
	if len(commits) != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("%d commits", a.Count),
			Actual:   fmt.Sprintf("%d commits", len(commits)),
		}
	}
	return nil
}

func assertChainValid(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	report, err := lib.Verify(ctx, id)
	if err != nil {
		return err
	}
	if !report.OK() {
		codes := make([]string, len(report.Problems))
		for i, p := range report.Problems {
			codes[i] = p.Code
		}
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: "no problems",
			Actual:   strings.Join(codes, ", "),
		}
	}
	return nil
}

func assertHashEqualsVersion(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	it, err := current(ctx, lib, id)
	if err != nil {
		return err
	}
	old, err := lib.Version(ctx, id, a.Version)
	if err != nil {
		return err
	}
	if it.ContentHash != old.ContentHash {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("content hash of version %d (%s)", a.Version, old.ContentHash),
			Actual:   fmt.Sprintf("%s at version %d", it.ContentHash, it.Version),
		}
	}
	return nil
}

func assertHashChanged(ctx context.Context, lib *library.Store, id string, a Assertion) error {
	from, err := lib.Version(ctx, id, a.From)
	if err != nil {
		return err
	}
	to, err := lib.Version(ctx, id, a.To)
	if err != nil {
		return err
	}
	if from.ContentHash == to.ContentHash {
		return &AssertionError{
			Type:     a.Type,
			Item:     a.Item,
			Expected: fmt.Sprintf("versions %d and %d to differ", a.From, a.To),
			Actual:   fmt.Sprintf("both %s", from.ContentHash),
		}
	}
	return nil
}
