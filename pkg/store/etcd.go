package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"codeberg.org/aliassync/aliassync/pkg/identity"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdStore keeps identities as JSON under <prefix>/identities/<login>/<id>.
type EtcdStore struct {
	client *clientv3.Client
	prefix string
}

func NewEtcdStore(endpoints []string, timeout time.Duration, prefix string) (*EtcdStore, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return NewEtcdStoreFromClient(cli, prefix), nil
}

func NewEtcdStoreFromClient(cli *clientv3.Client, prefix string) *EtcdStore {
	if prefix == "" {
		prefix = "/aliassync"
	}
	return &EtcdStore{client: cli, prefix: strings.TrimSuffix(prefix, "/")}
}

func (s *EtcdStore) accountKey(login string) string {
	return fmt.Sprintf("%s/identities/%s/", s.prefix, url.PathEscape(login))
}

func (s *EtcdStore) key(login, id string) string {
	return s.accountKey(login) + url.PathEscape(id)
}

// Put stores or replaces one identity. The webmail side uses it to persist
// the identities returned by the hook.
func (s *EtcdStore) Put(ctx context.Context, login string, id identity.StoredIdentity) error {
	data, err := json.Marshal(id)
	if err != nil {
		return err
	}
	_, err = s.client.Put(ctx, s.key(login, id.ID), string(data))
	return err
}

func (s *EtcdStore) ListIdentities(ctx context.Context, login string) ([]identity.StoredIdentity, error) {
	resp, err := s.client.Get(ctx, s.accountKey(login),
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list identities for %s: %w", login, err)
	}

	res := make([]identity.StoredIdentity, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var id identity.StoredIdentity
		if err := json.Unmarshal(kv.Value, &id); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", kv.Key, err)
		}
		res = append(res, id)
	}
	return res, nil
}

func (s *EtcdStore) DeleteIdentity(ctx context.Context, login, id string) error {
	resp, err := s.client.Delete(ctx, s.key(login, id))
	if err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", id, err)
	}
	if resp.Deleted == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrIdentityNotFound)
	}
	return nil
}

func (s *EtcdStore) Close() error {
	return s.client.Close()
}
