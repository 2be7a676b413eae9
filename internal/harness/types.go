package harness

// Trace event types.
const (
	EventStep      = "step"
	EventHook      = "hook"
	EventStatement = "statement"
	EventResult    = "result"
)

// TraceEvent is one entry of a run trace.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step int    `json:"step"`
	Type string `json:"type"`

	// Name is the hook name (will_insert, around_save_enter, ...) for hook
	// events and the operation for the others.
	Name string `json:"name,omitempty"`

	// Table is set on step events.
	Table string `json:"table,omitempty"`

	// SQL is the statement with its arguments inlined.
	SQL string `json:"sql,omitempty"`

	// Detail holds hook arguments and step outcomes.
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// RunID identifies the run in logs. It is not part of the trace.
	RunID string `json:"run_id"`

	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors lists failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult(runID string) *Result {
	return &Result{
		RunID:  runID,
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// recorder numbers events and tracks the current step.
type recorder struct {
	result *Result
	seq    int64
	step   int
}

func (r *recorder) add(ev TraceEvent) {
	r.seq++
	ev.Seq = r.seq
	ev.Step = r.step
	r.result.Trace = append(r.result.Trace, ev)
}

func (r *recorder) hook(name string, detail map[string]any) {
	r.add(TraceEvent{Type: EventHook, Name: name, Detail: detail})
}

func (r *recorder) statement(op, sql string) {
	r.add(TraceEvent{Type: EventStatement, Name: op, SQL: sql})
}
