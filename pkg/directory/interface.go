package directory

import (
	"context"
	"strings"
	"time"
)

// Record is one entry returned by a directory search. Attribute names are
// stored lower-cased so lookups follow LDAP's case-insensitive naming.
type Record struct {
	DN         string
	Attributes map[string][]string
}

func NewRecord(dn string, attributes map[string][]string) Record {
	rec := Record{
		DN:         dn,
		Attributes: make(map[string][]string, len(attributes)),
	}
	for name, values := range attributes {
		key := strings.ToLower(name)
		rec.Attributes[key] = append(rec.Attributes[key], values...)
	}
	return rec
}

// Value returns the first value of the attribute, or "" when the attribute
// is unnamed, absent or empty.
func (r Record) Value(name string) string {
	values := r.Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (r Record) Values(name string) []string {
	if name == "" || r.Attributes == nil {
		return nil
	}
	return r.Attributes[strings.ToLower(name)]
}

type SearchRequest struct {
	BaseDN     string
	Filter     string
	Attributes []string
}

type Options struct {
	URL                string
	BindDN             string
	BindPassword       string
	StartTLS           bool
	InsecureSkipVerify bool
	CAFile             string
	Timeout            time.Duration
}

// Directory opens scoped sessions against a directory server.
type Directory interface {
	// Server identifies the directory in diagnostics.
	Server() string

	// Open connects and binds. The caller owns the session and must close it.
	Open(ctx context.Context) (Session, error)
}

type Session interface {
	Search(ctx context.Context, req SearchRequest) ([]Record, error)
	Close() error
}
