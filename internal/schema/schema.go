// Package schema validates item payloads against CUE definitions.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/lectern/internal/doc"
)

//go:embed schemas.cue
var source string

var definitions = map[doc.ItemType]string{
	doc.TypeSong:      "#Song",
	doc.TypeScripture: "#Scripture",
	doc.TypeSchedule:  "#Schedule",
	doc.TypeMedia:     "#Media",
}

// ValidationError describes the first payload field that failed validation.
type ValidationError struct {
	Type    doc.ItemType
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validate %s: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("validate %s: %s: %s", e.Type, e.Field, e.Message)
}

// Validator checks payloads against the compiled definitions.
// A cue.Context is not safe for concurrent use, so calls are serialized.
type Validator struct {
	mu   sync.Mutex
	ctx  *cue.Context
	defs map[doc.ItemType]cue.Value
}

// New compiles the embedded definitions.
func New() (*Validator, error) {
	return Compile(source)
}

// Must panics if err is non-nil. The embedded definitions are covered by
// tests, so New only fails on a broken build.
func Must(v *Validator, err error) *Validator {
	if err != nil {
		panic(err)
	}
	return v
}

// Compile builds a validator from CUE source that defines one definition per
// item type (#Song, #Scripture, #Schedule, #Media).
func Compile(src string) (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename("schemas.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schemas: %w", err)
	}

	defs := make(map[doc.ItemType]cue.Value, len(definitions))
	for t, name := range definitions {
		def := root.LookupPath(cue.ParsePath(name))
		if !def.Exists() {
			return nil, fmt.Errorf("compile schemas: missing definition %s", name)
		}
		defs[t] = def
	}
	return &Validator{ctx: ctx, defs: defs}, nil
}

// Validate reports whether fields form a valid payload of type t.
// Unknown types fail with doc.ErrUnknownType.
func (v *Validator) Validate(t doc.ItemType, fields doc.Object) error {
	def, ok := v.defs[t]
	if !ok {
		return fmt.Errorf("validate: %w: %q", doc.ErrUnknownType, t)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	val := v.ctx.Encode(doc.ToAny(fields))
	if err := val.Err(); err != nil {
		return &ValidationError{Type: t, Message: err.Error()}
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return toValidationError(t, err)
	}
	return nil
}

// toValidationError keeps the first CUE error and its field path.
func toValidationError(t doc.ItemType, err error) *ValidationError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Type: t, Message: err.Error()}
	}

	first := errs[0]
	var path []string
	for _, sel := range first.Path() {
		if strings.HasPrefix(sel, "#") {
			continue
		}
		path = append(path, sel)
	}
	format, args := first.Msg()
	return &ValidationError{
		Type:    t,
		Field:   strings.Join(path, "."),
		Message: fmt.Sprintf(format, args...),
	}
}
