package cache

import (
	"codeberg.org/aliassync/aliassync/pkg/identity"
	"github.com/gohugoio/hashstructure"
	"github.com/puzpuzpuz/xsync/v4"
)

// Store remembers a fingerprint of the directory-derived identity set per
// login so a sync can report whether the directory changed since the last
// time the account logged in.
type Store struct {
	fingerprints *xsync.Map[string, uint64]
}

func NewStore() *Store {
	return &Store{
		fingerprints: xsync.NewMap[string, uint64](),
	}
}

func Fingerprint(ids []identity.Identity) (uint64, error) {
	return hashstructure.Hash(ids, nil)
}

func (s *Store) Get(login string) (uint64, bool) {
	return s.fingerprints.Load(login)
}

// Update stores the fingerprint of ids and reports whether it differs from
// the previously stored one. The first update for a login reports true.
func (s *Store) Update(login string, ids []identity.Identity) (bool, error) {
	hash, err := Fingerprint(ids)
	if err != nil {
		return false, err
	}

	prev, loaded := s.fingerprints.LoadAndStore(login, hash)
	return !loaded || prev != hash, nil
}

func (s *Store) Forget(login string) {
	s.fingerprints.Delete(login)
}

func (s *Store) Len() int {
	return s.fingerprints.Size()
}

func (s *Store) Clear() {
	s.fingerprints.Clear()
}
