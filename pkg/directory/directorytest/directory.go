// Package directorytest provides an in-memory directory.Directory.
package directorytest

import (
	"context"
	"sync"

	"codeberg.org/aliassync/aliassync/pkg/directory"
)

// Directory answers every search with Records, or fails with OpenErr on
// open or SearchErr on search. It counts sessions and remembers the last
// request.
type Directory struct {
	URL       string
	Records   []directory.Record
	OpenErr   error
	SearchErr error
	// Panic makes Search panic with this value when non-nil.
	Panic     any

	mu       sync.Mutex
	opened   int
	closed   int
	searches []directory.SearchRequest
}

func (d *Directory) Server() string {
	if d.URL == "" {
		return "ldap://directorytest:389"
	}
	return d.URL
}

func (d *Directory) Open(ctx context.Context) (directory.Session, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	d.mu.Lock()
	d.opened++
	d.mu.Unlock()
	return &session{dir: d}, nil
}

func (d *Directory) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *Directory) Closed() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Directory) Searches() []directory.SearchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]directory.SearchRequest, len(d.searches))
	copy(out, d.searches)
	return out
}

type session struct {
	dir *Directory
}

func (s *session) Search(ctx context.Context, req directory.SearchRequest) ([]directory.Record, error) {
	s.dir.mu.Lock()
	s.dir.searches = append(s.dir.searches, req)
	s.dir.mu.Unlock()

	if s.dir.Panic != nil {
		panic(s.dir.Panic)
	}
	if s.dir.SearchErr != nil {
		return nil, s.dir.SearchErr
	}
	return s.dir.Records, nil
}

func (s *session) Close() error {
	s.dir.mu.Lock()
	s.dir.closed++
	s.dir.mu.Unlock()
	return nil
}
