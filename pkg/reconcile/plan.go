package reconcile

import "codeberg.org/aliassync/aliassync/pkg/identity"

// Plan is the outcome of comparing directory identities with the stored
// ones of a single account.
type Plan struct {
	// Identities is the authoritative directory-derived set, unchanged.
	Identities []identity.Identity
	Keep       []identity.StoredIdentity
	Delete     []identity.StoredIdentity
}

// NewPlan marks every stored identity whose email does not appear in d for
// deletion. An empty d plans nothing. Empty emails never match.
func NewPlan(d []identity.Identity, s []identity.StoredIdentity) *Plan {
	p := &Plan{Identities: d}
	if len(d) == 0 {
		return p
	}

	emails := make(map[string]struct{}, len(d))
	for _, id := range d {
		if id.Email != "" {
			emails[id.Email] = struct{}{}
		}
	}

	for _, stored := range s {
		if _, ok := emails[stored.Email]; ok {
			p.Keep = append(p.Keep, stored)
			continue
		}
		p.Delete = append(p.Delete, stored)
	}
	return p
}

func (p *Plan) Found() bool {
	return len(p.Identities) > 0
}

func (p *Plan) DeleteIDs() []string {
	ids := make([]string, 0, len(p.Delete))
	for _, s := range p.Delete {
		ids = append(ids, s.ID)
	}
	return ids
}
