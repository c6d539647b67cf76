package ldap

import (
	"codeberg.org/aliassync/aliassync/pkg/directory"
	"github.com/go-ldap/ldap/v3"
)

func mapEntry(entry *ldap.Entry) directory.Record {
	attributes := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		attributes[attr.Name] = attr.Values
	}
	return directory.NewRecord(entry.DN, attributes)
}
