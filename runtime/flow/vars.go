package flow

// Vars is a flow's flat variable bag. "variable hygiene"
// invariant holds it shared (by reference) across every sequential
// statement in a flow body — For/If/Match/Failure blocks all read and
// write the same map — and only clones it at a ParallelBlock boundary,
// where each branch gets an independent snapshot that cannot observe a
// sibling's writes.
type Vars map[string]any

// Clone returns an independent copy, used to give each ParallelBlock branch
// its own snapshot of the caller's variables at block entry.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Merge copies every entry of other into v, used to fold a ParallelBlock
// branch's writes back into the caller after the join.
func (v Vars) Merge(other Vars) {
	for k, val := range other {
		v[k] = val
	}
}
