package model

import (
	"fmt"
	"strings"
)

// Verb is one of the verbs the dispatcher accepts for a resource.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
	VerbList   Verb = "list"
	VerbGet    Verb = "get"
)

// Action is the tagged-variant replacement for the dynamic "<resource>.verb"
// string dispatch the source uses: resource and verb are parsed once at the
// registry boundary and carried as structured data from then on.
type Action struct {
	Resource string
	Verb     Verb
	// Custom carries a verb the registry does not recognize as one of the
	// five well-known ones, e.g. "archive" in "node.archive".
	Custom string
}

// String renders the action back to its "<resource>.<verb>" wire form.
func (a Action) String() string {
	if a.Custom != "" {
		return fmt.Sprintf("%s.%s", a.Resource, a.Custom)
	}

	return fmt.Sprintf("%s.%s", a.Resource, a.Verb)
}

// IsWrite reports whether the action mutates the resource.
func (a Action) IsWrite() bool {
	switch a.Verb {
	case VerbCreate, VerbUpdate, VerbDelete:
		return true
	default:
		return false
	}
}

// ParseAction splits a wire-form "<resource>.<verb>" string into an Action.
// Unrecognized verbs are kept in Custom rather than rejected here; the
// dispatcher's registry lookup is what ultimately raises UnknownAction.
func ParseAction(s string) (Action, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return Action{}, fmt.Errorf("malformed action %q: expected \"<resource>.<verb>\"", s)
	}

	resource := s[:idx]
	verb := s[idx+1:]

	switch Verb(verb) {
	case VerbCreate, VerbUpdate, VerbDelete, VerbList, VerbGet:
		return Action{Resource: resource, Verb: Verb(verb)}, nil
	default:
		return Action{Resource: resource, Custom: verb}, nil
	}
}
