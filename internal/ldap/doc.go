/*
Package ldap provides the Active Directory operations behind the dispatch service.

# Sessions

A Session owns exactly one authenticated connection for the lifetime of a
single request:

	session := ldap.NewSession(cfg)
	defer session.Close()

	if err := session.Open(ctx, server, cred); err != nil {
		// *ConnectionError, Reason tells authentication and transport apart
	}

Dial and StartTLS failures are retried with exponential backoff; bind
failures are not. Every request applies the smaller of the configured timeout
and the context deadline. Operations on a session without a live connection
return ErrNotConnected, and Close is safe on any session.

# Operations

  - ListGroups: subtree search for groups under an OU
  - ListGroupMembers: base-scope group check, then a memberOf search
  - CreateGroup: adds a global security group
  - ReadUserCertificates: objectGUID lookup of userCertificate values

Directory failures are returned as *LDAPError carrying the result code, the
server diagnostic and a category (see IsNotFoundError, IsConflictError).

# Identifiers

objectGUID values are stored by Active Directory in mixed-endian byte order;
GUIDBytesToString and ParseObjectGUID convert between that layout and the
canonical string form. DN values are escaped per RFC 4514 (EscapeDNValue) and
filter values per RFC 4515.

# Logging

All log output goes to the "ldap" tflog subsystem.
*/
package ldap
