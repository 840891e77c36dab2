// Package workflow holds the directed-edge state machine shared by orders and
// return requests.
package workflow

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// Machine validates transitions over a closed set of states.
type Machine[S ~string] struct {
	name        string
	initial     S
	transitions map[S][]S
	terminal    map[S]struct{}
}

// Edge lists the states reachable from From.
type Edge[S ~string] struct {
	From S
	To   []S
}

// New builds a machine. A state with no outgoing edges must be listed as
// terminal, otherwise construction panics: an unreachable dead end is a
// programming error, not a runtime condition.
func New[S ~string](name string, initial S, terminal []S, edges ...Edge[S]) *Machine[S] {
	m := &Machine[S]{
		name:        name,
		initial:     initial,
		transitions: make(map[S][]S, len(edges)),
		terminal:    make(map[S]struct{}, len(terminal)),
	}
	for _, t := range terminal {
		m.terminal[t] = struct{}{}
	}
	for _, e := range edges {
		if _, ok := m.terminal[e.From]; ok && len(e.To) > 0 {
			panic(fmt.Sprintf("workflow %s: terminal state %s has outgoing edges", name, e.From))
		}
		m.transitions[e.From] = append(m.transitions[e.From], e.To...)
	}
	for from, to := range m.transitions {
		for _, next := range to {
			if _, known := m.transitions[next]; known {
				continue
			}
			if _, ok := m.terminal[next]; !ok {
				panic(fmt.Sprintf("workflow %s: %s -> %s leads to a state with no edges", name, from, next))
			}
		}
	}
	return m
}

func (m *Machine[S]) Name() string {
	return m.name
}

func (m *Machine[S]) Initial() S {
	return m.initial
}

// IsTerminal reports whether no transition may leave s.
func (m *Machine[S]) IsTerminal(s S) bool {
	_, ok := m.terminal[s]
	return ok
}

// CanTransition reports whether from -> to is a declared edge.
func (m *Machine[S]) CanTransition(from, to S) bool {
	for _, next := range m.transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Allowed returns a copy of the states reachable from from.
func (m *Machine[S]) Allowed(from S) []S {
	allowed := m.transitions[from]
	out := make([]S, len(allowed))
	copy(out, allowed)
	return out
}

// Check returns an ILLEGAL_TRANSITION error unless from -> to is a declared edge.
func (m *Machine[S]) Check(from, to S) error {
	if m.CanTransition(from, to) {
		return nil
	}
	msg := fmt.Sprintf("%s cannot move from %s to %s", m.name, from, to)
	if m.IsTerminal(from) {
		msg = fmt.Sprintf("%s is in terminal state %s", m.name, from)
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, msg).WithDetails(map[string]any{
		"from":    string(from),
		"to":      string(to),
		"allowed": toStrings(m.Allowed(from)),
	})
}

// CheckSource rejects an operation before any payload is inspected: from must
// not be terminal and, when sources are given, must be one of them.
func (m *Machine[S]) CheckSource(from S, sources ...S) error {
	if m.IsTerminal(from) {
		return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("%s is in terminal state %s", m.name, from)).WithDetails(map[string]any{
			"from": string(from),
		})
	}
	if len(sources) == 0 {
		return nil
	}
	for _, src := range sources {
		if src == from {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, fmt.Sprintf("%s cannot act on state %s through this operation", m.name, from)).WithDetails(map[string]any{
		"from":    string(from),
		"allowed": toStrings(sources),
	})
}

// CheckFrom is Check narrowed to the given source states, for operations that
// own only some of the edges into to.
func (m *Machine[S]) CheckFrom(from, to S, sources ...S) error {
	for _, src := range sources {
		if src == from {
			return m.Check(from, to)
		}
	}
	msg := fmt.Sprintf("%s cannot move from %s to %s through this operation", m.name, from, to)
	if m.IsTerminal(from) {
		msg = fmt.Sprintf("%s is in terminal state %s", m.name, from)
	}
	return pkgerrors.New(pkgerrors.CodeIllegalTransition, msg).WithDetails(map[string]any{
		"from":    string(from),
		"to":      string(to),
		"allowed": toStrings(sources),
	})
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}
