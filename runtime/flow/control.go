package flow

import "errors"

// AbortError is raised by a run statement's `on escalate abort` handler; it
// is fatal, is published as an Error event with source "abort", and is
// returned from Run rather than being caught by a FailureBlock.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string { return "flow: aborted: " + e.Reason }

// ErrNoEntryPoint mirrors lang/sema's compile-time NoEntryPoint diagnostic,
// returned if a caller tries to run a workflow with no resolvable entry.
var ErrNoEntryPoint = errors.New("flow: workflow has no entry point")

// ctrlKind classifies how execution of a statement block ended, so
// enclosing ForLoop/ParallelBlock/flow bodies can react appropriately.
type ctrlKind int

const (
	ctrlNone ctrlKind = iota
	ctrlReturn
	ctrlContinue
	ctrlBreak
)

// ctrl is the non-local control signal threaded back up through execBlock.
type ctrl struct {
	kind ctrlKind
	value any // set when kind == ctrlReturn
}

var ctrlNormal = ctrl{kind: ctrlNone}
