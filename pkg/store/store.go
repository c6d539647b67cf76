package store

import (
	"context"
	"errors"
	"fmt"

	"codeberg.org/aliassync/aliassync/pkg/config"
	"codeberg.org/aliassync/aliassync/pkg/identity"
)

var (
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrLastIdentity is returned when a delete would leave the account
	// without any identity.
	ErrLastIdentity = errors.New("refusing to delete the last identity of an account")
)

// IdentityStore is the webmail's identity persistence. Creating and updating
// identities is left to the webmail itself.
type IdentityStore interface {
	ListIdentities(ctx context.Context, login string) ([]identity.StoredIdentity, error)
	DeleteIdentity(ctx context.Context, login, id string) error
	Close() error
}

func Open(cfg config.StoreConfig) (IdentityStore, error) {
	switch cfg.Backend {
	case "sql":
		return OpenSQL(cfg.SQL)
	case "etcd":
		return NewEtcdStore(cfg.Etcd.Endpoints, cfg.Etcd.DialTimeout, cfg.Etcd.Prefix)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("store backend %q not supported", cfg.Backend)
	}
}
