package component

// Component is a unit of behavior that may implement one or more protocol
// capabilities. The registration boundary constructs components and hands
// them to the engine; the engine never discovers components itself.
type Component interface {
	// ID returns a stable identifier used in ordering hints, diagnostics
	// and logs. IDs must be unique within one execution set.
	ID() string
}

// Orderable is an optional interface for components that carry ordering
// hints. A hint naming a component absent from the current execution set is
// ignored; the referenced component may legitimately not be part of the run.
type Orderable interface {
	// RunAfter lists component IDs that must precede this component when
	// the execution order is resolved automatically.
	RunAfter() []string
}

// Switchable is an optional interface for components whose participation
// can be turned off. Components that do not implement it are always enabled.
type Switchable interface {
	Enabled() Enablement
	// DisabledReason is surfaced in diagnostics only; it never affects
	// control flow.
	DisabledReason() string
}

// Enablement is either a fixed boolean or a zero-argument predicate. A
// predicate is evaluated fresh before every invocation, so a component can
// be enabled or disabled between runs without re-registration.
type Enablement struct {
	fixed bool
	eval  func() bool
}

func Fixed(v bool) Enablement {
	return Enablement{fixed: v}
}

func EvaluatedBy(fn func() bool) Enablement {
	return Enablement{eval: fn}
}

// Resolve reduces the enablement to a boolean. Predicates are never cached.
func (e Enablement) Resolve() bool {
	if e.eval != nil {
		return e.eval()
	}
	return e.fixed
}

// RunAfterOf returns the ordering hints of c, or nil if it carries none.
func RunAfterOf(c Component) []string {
	if o, ok := c.(Orderable); ok {
		return o.RunAfter()
	}
	return nil
}

// EnabledState resolves the enablement of c. The reason is non-empty only
// when the component is disabled and declares one.
func EnabledState(c Component) (bool, string) {
	s, ok := c.(Switchable)
	if !ok {
		return true, ""
	}
	if s.Enabled().Resolve() {
		return true, ""
	}
	return false, s.DisabledReason()
}
