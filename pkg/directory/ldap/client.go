package ldap

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"codeberg.org/aliassync/aliassync/pkg/directory"
	"github.com/go-ldap/ldap/v3"
)

func init() {
	directory.Register("ldap", func(opts directory.Options) (directory.Directory, error) {
		return NewLDAPDirectory(opts)
	})
}

type LDAPDirectory struct {
	opts      directory.Options
	tlsConfig *tls.Config
}

func NewLDAPDirectory(opts directory.Options) (*LDAPDirectory, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("ldap: url is required")
	}

	tlsConfig, err := buildTLSConfig(opts)
	if err != nil {
		return nil, err
	}

	return &LDAPDirectory{
		opts:      opts,
		tlsConfig: tlsConfig,
	}, nil
}

func (l *LDAPDirectory) Server() string {
	return l.opts.URL
}

// Open dials, optionally upgrades with StartTLS, and binds. The connection
// is closed again if any step after the dial fails.
func (l *LDAPDirectory) Open(ctx context.Context) (directory.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(directory.OpConnect, l.opts.URL, err)
	}

	dialOpts := []ldap.DialOpt{
		ldap.DialWithDialer(&net.Dialer{Timeout: l.opts.Timeout}),
	}
	if l.tlsConfig != nil {
		dialOpts = append(dialOpts, ldap.DialWithTLSConfig(l.tlsConfig))
	}

	conn, err := ldap.DialURL(l.opts.URL, dialOpts...)
	if err != nil {
		return nil, wrapError(directory.OpConnect, l.opts.URL, err)
	}

	if l.opts.Timeout > 0 {
		conn.SetTimeout(l.opts.Timeout)
	}

	if l.opts.StartTLS {
		if err := conn.StartTLS(l.tlsConfig); err != nil {
			conn.Close()
			return nil, wrapError(directory.OpConnect, l.opts.URL, err)
		}
	}

	if l.opts.BindDN != "" {
		if err := conn.Bind(l.opts.BindDN, l.opts.BindPassword); err != nil {
			conn.Close()
			return nil, wrapError(directory.OpBind, l.opts.URL, err)
		}
	}

	return &session{conn: conn, server: l.opts.URL, timeout: int(l.opts.Timeout.Seconds())}, nil
}

type session struct {
	conn    *ldap.Conn
	server  string
	timeout int
}

func (s *session) Search(ctx context.Context, req directory.SearchRequest) ([]directory.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, wrapError(directory.OpSearch, s.server, err)
	}

	searchRequest := ldap.NewSearchRequest(
		req.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, s.timeout, false,
		req.Filter,
		req.Attributes,
		nil,
	)

	sr, err := s.conn.Search(searchRequest)
	if err != nil {
		return nil, wrapError(directory.OpSearch, s.server, err)
	}

	records := make([]directory.Record, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		records = append(records, mapEntry(entry))
	}
	return records, nil
}

func (s *session) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
