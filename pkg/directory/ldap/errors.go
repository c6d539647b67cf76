package ldap

import (
	"errors"

	"codeberg.org/aliassync/aliassync/pkg/directory"
	"github.com/go-ldap/ldap/v3"
)

func wrapError(op directory.Operation, server string, err error) *directory.Error {
	dirErr := &directory.Error{
		Op:     op,
		Server: server,
		Err:    err,
	}

	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		dirErr.Code = ldapErr.ResultCode
		dirErr.Category = categorize(ldapErr.ResultCode)
		dirErr.Message = ldap.LDAPResultCodeMap[ldapErr.ResultCode]
		if ldapErr.Err != nil && ldapErr.Err.Error() != dirErr.Message {
			dirErr.Message = dirErr.Message + ": " + ldapErr.Err.Error()
		}
		return dirErr
	}

	switch op {
	case directory.OpConnect:
		dirErr.Category = directory.CategoryConnection
	default:
		dirErr.Category = directory.CategoryUnknown
	}
	return dirErr
}

func categorize(code uint16) directory.Category {
	switch code {
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired:
		return directory.CategoryAuthentication

	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return directory.CategoryPermission

	case ldap.LDAPResultNoSuchObject:
		return directory.CategoryNotFound

	case ldap.LDAPResultInvalidDNSyntax,
		ldap.LDAPResultInvalidAttributeSyntax,
		ldap.ErrorFilterCompile:
		return directory.CategoryValidation

	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded,
		ldap.LDAPResultSizeLimitExceeded:
		return directory.CategoryServer

	case ldap.ErrorNetwork:
		return directory.CategoryConnection
	}
	return directory.CategoryUnknown
}
