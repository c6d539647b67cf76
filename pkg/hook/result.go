package hook

import "codeberg.org/aliassync/aliassync/pkg/identity"

type OutcomeKind string

const (
	OutcomeFound          OutcomeKind = "found"
	OutcomeNotFound       OutcomeKind = "not_found"
	OutcomeDirectoryError OutcomeKind = "directory_error"
)

type Outcome struct {
	Kind       OutcomeKind
	Identities []identity.Identity
	Err        error
}

// Build applies a sync outcome to the incoming event. Extended is always
// set and First always cleared; only a directory error aborts, and only a
// found outcome replaces Email.
func Build(in LoginEvent, out Outcome) LoginEvent {
	res := in
	res.Extended = true
	res.First = false
	res.Abort = false

	switch out.Kind {
	case OutcomeDirectoryError:
		res.Abort = true
	case OutcomeFound:
		ids := make([]identity.Identity, len(out.Identities))
		copy(ids, out.Identities)
		res.Email = ids
	}
	return res
}
