// Package order computes the execution order of components for one
// protocol stage, from either automatic dependency resolution over
// run_after hints or an explicit manual list.
package order

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kcze/conveyor/internal/pipeline/component"
)

// CycleError reports a run_after dependency cycle. It is a structural
// contradiction, not a transient fault: it aborts run construction and is
// never retried.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among components: %s", strings.Join(e.Members, ", "))
}

// Resolve produces a deterministic total order over comps consistent with
// all run_after edges restricted to components present in the set. When
// several components have no remaining unresolved predecessors, the
// lexicographically smallest ID goes first, so the default order with no
// hints at all is plain lexicographic order.
//
// Hints naming components absent from the set are ignored. Duplicate IDs
// are an error.
func Resolve(comps []component.Component) ([]component.Component, error) {
	byID := make(map[string]component.Component, len(comps))
	ids := make([]string, 0, len(comps))
	for _, c := range comps {
		id := c.ID()
		if id == "" {
			return nil, fmt.Errorf("component with empty ID")
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("duplicate component ID: %s", id)
		}
		byID[id] = c
		ids = append(ids, id)
	}
	sort.Strings(ids)

	indegree := make(map[string]int, len(ids))
	successors := make(map[string][]string, len(ids))
	for _, id := range ids {
		indegree[id] = 0
	}
	for _, id := range ids {
		for _, dep := range component.RunAfterOf(byID[id]) {
			if dep == id {
				continue
			}
			if _, present := byID[dep]; !present {
				continue // referenced component is not part of this run
			}
			successors[dep] = append(successors[dep], id)
			indegree[id]++
		}
	}

	// Kahn's algorithm with a sorted ready list for a stable tie-break.
	ready := make([]string, 0, len(ids))
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]component.Component, 0, len(ids))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, byID[id])
		for _, succ := range successors[id] {
			indegree[succ]--
			if indegree[succ] == 0 {
				ready = insertSorted(ready, succ)
			}
		}
	}

	if len(ordered) != len(ids) {
		var members []string
		for _, id := range ids {
			if indegree[id] > 0 {
				members = append(members, id)
			}
		}
		return nil, &CycleError{Members: members}
	}
	return ordered, nil
}

func insertSorted(ids []string, id string) []string {
	i := sort.SearchStrings(ids, id)
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

// Explicit applies a manual total order, bypassing dependency checking
// entirely. The returned order follows ids verbatim, restricted to
// components present in comps. Eligible components missing from ids are
// returned as omitted; entries in ids matching no component are returned
// as unknown. Both are diagnostics for the caller to report, not errors:
// omission is often unintentional and must be visible without halting.
func Explicit(comps []component.Component, ids []string) (ordered []component.Component, omitted, unknown []string) {
	byID := make(map[string]component.Component, len(comps))
	for _, c := range comps {
		byID[c.ID()] = c
	}

	listed := make(map[string]bool, len(ids))
	for _, id := range ids {
		if listed[id] {
			continue
		}
		listed[id] = true
		c, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		ordered = append(ordered, c)
	}

	for _, c := range comps {
		if !listed[c.ID()] {
			omitted = append(omitted, c.ID())
		}
	}
	sort.Strings(omitted)
	return ordered, omitted, unknown
}
