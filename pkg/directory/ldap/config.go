package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/url"
	"os"
	"strings"

	"codeberg.org/aliassync/aliassync/pkg/directory"
)

// buildTLSConfig returns nil when the connection is plain ldap:// without
// StartTLS and no TLS options are set.
func buildTLSConfig(opts directory.Options) (*tls.Config, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("ldap: invalid url %q: %w", opts.URL, err)
	}

	secure := strings.EqualFold(u.Scheme, "ldaps")
	if !secure && !opts.StartTLS && !opts.InsecureSkipVerify && opts.CAFile == "" {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         u.Hostname(),
		InsecureSkipVerify: opts.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("ldap: failed to read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ldap: no certificates found in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}
