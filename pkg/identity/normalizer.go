package identity

import (
	"regexp"
	"strings"

	"codeberg.org/aliassync/aliassync/pkg/directory"
	"github.com/microcosm-cc/bluemonday"
)

var htmlSignaturePattern = regexp.MustCompile(`^\s*<[a-zA-Z]+`)

// IsHTMLSignature reports whether sig opens with an HTML tag, ignoring
// leading whitespace.
func IsHTMLSignature(sig string) bool {
	return htmlSignaturePattern.MatchString(sig)
}

type Normalizer struct {
	attrs  Attributes
	domain string
	policy *bluemonday.Policy
}

type Option func(*Normalizer)

// WithSignatureSanitizer filters HTML signatures through a user-generated
// content policy.
func WithSignatureSanitizer() Option {
	return func(n *Normalizer) {
		n.policy = bluemonday.UGCPolicy()
	}
}

func NewNormalizer(attrs Attributes, domain string, opts ...Option) *Normalizer {
	n := &Normalizer{
		attrs:  attrs,
		domain: domain,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *Normalizer) Attributes() Attributes {
	return n.attrs
}

// Normalize maps one directory record to an Identity. Missing attributes
// default to "".
func (n *Normalizer) Normalize(rec directory.Record) Identity {
	id := Identity{
		Email:        rec.Value(n.attrs.Mail),
		Name:         rec.Value(n.attrs.Name),
		Organization: rec.Value(n.attrs.Organization),
		ReplyTo:      rec.Value(n.attrs.ReplyTo),
		Bcc:          rec.Value(n.attrs.Bcc),
		Signature:    rec.Value(n.attrs.Signature),
	}

	if id.Email != "" && !strings.Contains(id.Email, "@") && n.domain != "" {
		id.Email = id.Email + "@" + n.domain
	}

	if n.policy != nil && IsHTMLSignature(id.Signature) {
		id.Signature = n.policy.Sanitize(id.Signature)
	}
	// Sanitizing may strip the leading tag, so classify the final text.
	id.HTMLSignature = IsHTMLSignature(id.Signature)

	return id
}

func (n *Normalizer) NormalizeAll(records []directory.Record) []Identity {
	identities := make([]Identity, 0, len(records))
	for _, rec := range records {
		identities = append(identities, n.Normalize(rec))
	}
	return identities
}
