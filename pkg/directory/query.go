package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

const placeholder = "%s"

var (
	ErrNoPlaceholder         = errors.New("filter has no %s placeholder")
	ErrTooManyPlaceholders   = errors.New("filter has more than one placeholder")
	ErrUnbalancedParenthesis = errors.New("filter parentheses are unbalanced")
)

// ValidateFilter checks that tmpl carries exactly one %s placeholder and no
// other formatting verbs. A literal percent sign is written as %%.
func ValidateFilter(tmpl string) error {
	stripped := strings.ReplaceAll(tmpl, "%%", "")
	verbs := strings.Count(stripped, "%")
	switch {
	case strings.Count(stripped, placeholder) == 0:
		return ErrNoPlaceholder
	case verbs > 1:
		return ErrTooManyPlaceholders
	}

	depth := 0
	for _, r := range stripped {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth < 0 {
			return ErrUnbalancedParenthesis
		}
	}
	if depth != 0 {
		return ErrUnbalancedParenthesis
	}
	return nil
}

type QueryConfig struct {
	BaseDN     string
	Filter     string
	Attributes []string
}

// Querier turns a lookup key into one directory search.
type Querier struct {
	dir    Directory
	config QueryConfig
	logger *zap.Logger
	// observe is called with the duration of each lookup, success or not.
	observe func(time.Duration)
}

func NewQuerier(dir Directory, config QueryConfig, logger *zap.Logger) *Querier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Querier{
		dir:    dir,
		config: config,
		logger: logger,
	}
}

// OnLookup registers a latency observer.
func (q *Querier) OnLookup(fn func(time.Duration)) {
	q.observe = fn
}

// Filter substitutes the escaped key into the configured template.
func (q *Querier) Filter(key string) string {
	return fmt.Sprintf(q.config.Filter, ldap.EscapeFilter(key))
}

func (q *Querier) Server() string {
	return q.dir.Server()
}

// Lookup opens a session, runs exactly one search and closes the session on
// every path. An empty result is not an error.
func (q *Querier) Lookup(ctx context.Context, key string) ([]Record, error) {
	start := time.Now()
	if q.observe != nil {
		defer func() { q.observe(time.Since(start)) }()
	}

	sess, err := q.dir.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			q.logger.Warn("Failed to close directory session",
				zap.String("server", q.dir.Server()),
				zap.Error(cerr))
		}
	}()

	req := SearchRequest{
		BaseDN:     q.config.BaseDN,
		Filter:     q.Filter(key),
		Attributes: q.config.Attributes,
	}

	q.logger.Debug("Searching directory",
		zap.String("base_dn", req.BaseDN),
		zap.String("filter", req.Filter))

	records, err := sess.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	return records, nil
}
