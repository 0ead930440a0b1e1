package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/lectern/internal/doc"
	"github.com/roach88/lectern/internal/library"
	"github.com/roach88/lectern/internal/schema"
	"github.com/roach88/lectern/internal/store"
	"github.com/roach88/lectern/internal/testutil"
)

// Run executes a scenario against a fresh backend and returns the result.
//
// An error is returned only when the harness itself cannot run (backend
// setup, malformed step data). Unexpected step outcomes and failed
// assertions are reported through Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return RunWithLogger(ctx, scenario, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with an explicit logger for the store and backend.
func RunWithLogger(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	backend, cleanup, err := openBackend(scenario.Backend, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", backendName(scenario.Backend), err)
	}
	defer cleanup()

	lib := library.New(backend, backend,
		library.WithLogger(logger),
		library.WithClock(testutil.NewDeterministicClock()),
		library.WithIDGenerator(testutil.NewSequentialIDGenerator("id")),
	)

	result := NewResult()
	for i, step := range scenario.Steps {
		ok, err := runStep(ctx, lib, i, step, result)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		if !ok {
			// Later steps and assertions depend on state this step failed to produce.
			return result, nil
		}
	}

	for _, msg := range EvaluateAssertions(ctx, lib, result.IDs, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func backendName(b string) string {
	if b == "" {
		return BackendSQLite
	}
	return b
}

func openBackend(name string, logger *slog.Logger) (store.Backend, func(), error) {
	switch backendName(name) {
	case BackendFile:
		root, err := os.MkdirTemp("", "lectern-scenario-*")
		if err != nil {
			return nil, nil, err
		}
		dir, err := store.OpenDir(root, logger)
		if err != nil {
			_ = os.RemoveAll(root)
			return nil, nil, err
		}
		return dir, func() {
			_ = dir.Close()
			_ = os.RemoveAll(root)
		}, nil
	default:
		db, err := store.OpenSQLite(":memory:", logger)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { _ = db.Close() }, nil
	}
}

// runStep executes one step and records its trace event. It reports false
// when the step did not behave as declared.
func runStep(ctx context.Context, lib *library.Store, i int, step Step, result *Result) (bool, error) {
	alias := step.Item
	if step.Op == OpCreate {
		alias = step.As
	}
	id, ok := result.IDs[alias]
	if !ok {
		// Only reachable for steps that expect not_found.
		id = alias
	}

	it, err := execute(ctx, lib, id, step)
	var stepErr *stepDataError
	if errors.As(err, &stepErr) {
		return false, stepErr.err
	}

	event := TraceEvent{Step: i + 1, Op: step.Op, Item: alias}
	if err != nil {
		category := classify(err)
		switch {
		case step.ExpectError == "":
			result.AddError(fmt.Sprintf("steps[%d] %s %s: unexpected error: %v", i, step.Op, alias, err))
			return false, nil
		case category != step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s error, got %s: %v", i, step.Op, alias, step.ExpectError, category, err))
			return false, nil
		}
		event.Error = category
		result.AddTrace(event)
		return true, nil
	}
	if step.ExpectError != "" {
		result.AddError(fmt.Sprintf("steps[%d] %s %s: expected %s error, got version %d", i, step.Op, alias, step.ExpectError, it.Version))
		return false, nil
	}

	if step.Op == OpCreate {
		result.IDs[alias] = it.ID
	}
	if err := describe(ctx, lib, it, &event); err != nil {
		return false, err
	}
	result.AddTrace(event)
	return true, nil
}

// stepDataError marks scenario content the harness could not translate
// into a library call.
type stepDataError struct{ err error }

func (e *stepDataError) Error() string { return e.err.Error() }

func execute(ctx context.Context, lib *library.Store, id string, step Step) (doc.Item, error) {
	switch step.Op {
	case OpCreate:
		fields, err := toObject(step.Payload)
		if err != nil {
			return doc.Item{}, &stepDataError{fmt.Errorf("payload: %w", err)}
		}
		payload, err := doc.DecodePayload(doc.ItemType(step.Type), fields)
		if err != nil {
			return doc.Item{}, err
		}
		return lib.Create(ctx, payload, writeOptions(step)...)
	case OpUpdate:
		delta, err := updateDelta(ctx, lib, id, step)
		if err != nil {
			return doc.Item{}, err
		}
		return lib.Update(ctx, id, delta, writeOptions(step)...)
	case OpRevert:
		return lib.Revert(ctx, id, step.Version, writeOptions(step)...)
	case OpRebuild:
		return lib.Rebuild(ctx, id)
	}
	return doc.Item{}, &stepDataError{fmt.Errorf("unknown op %q", step.Op)}
}

// updateDelta returns the step delta, or the full snapshot of
// step.FromVersion when the step replays an earlier version.
func updateDelta(ctx context.Context, lib *library.Store, id string, step Step) (doc.Object, error) {
	if step.FromVersion == 0 {
		delta, err := toObject(step.Delta)
		if err != nil {
			return nil, &stepDataError{fmt.Errorf("delta: %w", err)}
		}
		return delta, nil
	}
	old, err := lib.Version(ctx, id, step.FromVersion)
	if err != nil {
		return nil, err
	}
	return old.Fields()
}

func toObject(m map[string]any) (doc.Object, error) {
	v, err := doc.FromAny(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(doc.Object)
	if !ok {
		return nil, fmt.Errorf("expected a mapping")
	}
	return obj, nil
}

func writeOptions(step Step) []library.WriteOption {
	var opts []library.WriteOption
	if step.Author != "" {
		opts = append(opts, library.WithAuthor(step.Author))
	}
	if step.Device != "" {
		opts = append(opts, library.WithDevice(step.Device))
	}
	if step.Summary != "" {
		opts = append(opts, library.WithSummary(step.Summary))
	}
	if step.ExpectVersion != nil {
		opts = append(opts, library.WithExpectedVersion(*step.ExpectVersion))
	}
	return opts
}

// describe fills event from the written item and the commit it points at.
func describe(ctx context.Context, lib *library.Store, it doc.Item, event *TraceEvent) error {
	event.ID = it.ID
	event.Version = it.Version
	event.CommitID = it.HistoryHeadID

	payload, err := it.PayloadFields()
	if err != nil {
		return err
	}
	event.Payload = payload

	commits, err := lib.GetHistory(ctx, it.ID)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if c.CommitID == it.HistoryHeadID {
			event.ParentCommitID = c.ParentCommitID
			event.ChangeSummary = c.ChangeSummary
			return nil
		}
	}
	return fmt.Errorf("commit %s of %s not in history", it.HistoryHeadID, it.ID)
}

// classify maps a library error onto a scenario error category.
func classify(err error) string {
	var validation *schema.ValidationError
	switch {
	case library.IsNotFound(err):
		return ExpectNotFound
	case library.IsConflict(err):
		return ExpectConflict
	case errors.As(err, &validation),
		errors.Is(err, doc.ErrInvalidPayload),
		errors.Is(err, doc.ErrTypeMismatch),
		errors.Is(err, doc.ErrUnknownType),
		errors.Is(err, store.ErrInvalidID):
		return ExpectInvalid
	}
	return "other"
}
