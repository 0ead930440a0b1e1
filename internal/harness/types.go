package harness

// TraceEvent records the outcome of one scenario step.
//
// Successful writes carry the resulting version, commit linkage and payload.
// A step that failed as expected carries only its error category.
type TraceEvent struct {
	Step           int    `json:"step"`
	Op             string `json:"op"`
	Item           string `json:"item"`
	ID             string `json:"id,omitempty"`
	Version        int64  `json:"version,omitempty"`
	CommitID       string `json:"commit_id,omitempty"`
	ParentCommitID string `json:"parent_commit_id,omitempty"`
	ChangeSummary  string `json:"change_summary,omitempty"`
	Payload        any    `json:"payload,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success.
	// True if every step behaved as declared and all assertions hold.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// IDs maps scenario aliases to the generated item ids.
	IDs map[string]string `json:"ids,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		IDs:    make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
