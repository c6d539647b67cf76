// Package login derives the directory lookup key from a webmail login.
package login

import (
	"strings"

	"go.uber.org/zap"
)

type Options struct {
	// RemoveDomain strips everything from the first "@" before the lookup.
	RemoveDomain bool
	// DefaultDomain is appended to logins without a domain part. Ignored
	// when RemoveDomain is set.
	DefaultDomain string
	// ImpersonateSeparator marks a master-user suffix such as "user*master".
	ImpersonateSeparator string
}

type Normalizer struct {
	opts   Options
	logger *zap.Logger
}

func NewNormalizer(opts Options, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{opts: opts, logger: logger}
}

// Normalize returns the lookup key for raw. It never fails; an empty login
// yields an empty key.
func (n *Normalizer) Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	key := raw

	if n.opts.RemoveDomain {
		key, _, _ = strings.Cut(key, "@")
	} else if !strings.Contains(key, "@") && n.opts.DefaultDomain != "" {
		key = key + "@" + n.opts.DefaultDomain
	}

	if sep := n.opts.ImpersonateSeparator; sep != "" {
		if before, _, found := strings.Cut(key, sep); found {
			n.logger.Info("Removed dovecot impersonate separator from login",
				zap.String("separator", sep))
			key = before
		}
	}

	return key
}
