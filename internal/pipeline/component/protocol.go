package component

import "context"

// Protocol is a named operation contract that zero or more components may
// implement. One protocol defines one pipeline stage; the engine treats the
// dispatch target as opaque.
type Protocol struct {
	Name string

	// Implements reports whether c provides this capability. A component
	// may implement several protocols and is scheduled under each
	// independently.
	Implements func(c Component) bool

	// Call dispatches the protocol operation on c. Returned values are
	// appended to the stage aggregate in execution order; later components
	// append after earlier ones, never replace them. A returned error is
	// classified by the escalation controller (see the fault package).
	Call func(ctx context.Context, c Component, args *Args) ([]any, error)
}

// Pipeline is an ordered sequence of protocol stages executed as one run.
// It is constructed fresh per run and never persisted.
type Pipeline []Protocol

func (p Pipeline) Names() []string {
	names := make([]string, 0, len(p))
	for _, pr := range p {
		names = append(names, pr.Name)
	}
	return names
}
