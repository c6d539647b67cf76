package identity

// Identity is a directory-derived mail identity. Email is its key within one
// account.
type Identity struct {
	Email         string `json:"email" yaml:"email" db:"email"`
	Name          string `json:"name" yaml:"name" db:"name"`
	Organization  string `json:"organization" yaml:"organization" db:"organization"`
	ReplyTo       string `json:"reply-to" yaml:"replyTo" db:"reply_to"`
	Bcc           string `json:"bcc" yaml:"bcc" db:"bcc"`
	Signature     string `json:"signature" yaml:"signature" db:"signature"`
	HTMLSignature bool   `json:"html_signature" yaml:"htmlSignature" db:"html_signature"`
}

// StoredIdentity is an identity persisted by the webmail store.
type StoredIdentity struct {
	ID string `json:"identity_id" yaml:"id" db:"identity_id"`
	Identity
}

// Attributes maps identity fields to directory attribute names.
type Attributes struct {
	Mail         string
	Name         string
	Organization string
	ReplyTo      string
	Bcc          string
	Signature    string
}

// List returns the configured attribute names, skipping unset ones.
func (a Attributes) List() []string {
	all := []string{a.Mail, a.Name, a.Organization, a.ReplyTo, a.Bcc, a.Signature}
	out := make([]string, 0, len(all))
	seen := make(map[string]struct{}, len(all))
	for _, name := range all {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
