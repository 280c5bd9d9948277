package memmon

import "testing"

// resetState clears any existing singleton and initializes a fresh one
// for the duration of the calling test, restoring a clean slate
// afterward. Every test in this package that touches the global
// singleton should route through this helper instead of calling
// Initialize directly, since ProcessState is process-wide (spec.md §3)
// and Go tests in one package otherwise share it across test
// functions.
func resetState(t *testing.T, opts ...Option) *ProcessState {
	t.Helper()

	Finalize()
	state := Initialize(t.Name(), opts...)

	t.Cleanup(Finalize)

	return state
}
