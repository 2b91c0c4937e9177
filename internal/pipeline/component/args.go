package component

// Args is the shared mutable argument bag passed to every protocol
// invocation of a run. It is the only shared state the engine manages:
// snapshots are taken at attempt boundaries and restored before retries.
// Values must survive a msgpack round trip for restore to be faithful;
// anything a component keeps outside Args is that component's own problem.
type Args struct {
	values map[string]any
}

func NewArgs() *Args {
	return &Args{values: map[string]any{}}
}

func (a *Args) Get(key string) (any, bool) {
	v, ok := a.values[key]
	return v, ok
}

func (a *Args) GetString(key, def string) string {
	if v, ok := a.values[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (a *Args) Set(key string, v any) {
	a.values[key] = v
}

func (a *Args) Delete(key string) {
	delete(a.values, key)
}

func (a *Args) Len() int {
	return len(a.values)
}

// Values exposes the backing map for encoding. Callers must not retain it
// across attempt boundaries.
func (a *Args) Values() map[string]any {
	return a.values
}

// Replace swaps the contents of the bag in place, so components holding a
// reference to the Args keep observing it after a restore.
func (a *Args) Replace(values map[string]any) {
	clear(a.values)
	for k, v := range values {
		a.values[k] = v
	}
}
