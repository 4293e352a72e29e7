package ldap

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
)

// ListGroupMembers returns the users under baseOU whose memberOf contains
// groupDN. The group itself must exist: a missing group is reported as a
// not-found error before any membership search is issued.
func (s *Session) ListGroupMembers(ctx context.Context, baseOU, groupDN string) ([]UserRecord, error) {
	entries, err := s.search(ctx, &SearchRequest{
		BaseDN:     groupDN,
		Scope:      ScopeBaseObject,
		Filter:     "(objectClass=group)",
		Attributes: []string{"distinguishedName"},
	})
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, NewNotFoundError("list_group_members", groupDN, "group not found")
		}
		LogLDAPError(ctx, Subsystem, "list_group_members", err, map[string]any{"group_dn": groupDN})
		return nil, NewLDAPError("list_group_members", groupDN, err)
	}
	if len(entries) == 0 {
		return nil, NewNotFoundError("list_group_members", groupDN, "group not found")
	}

	entries, err = s.search(ctx, &SearchRequest{
		BaseDN:     baseOU,
		Scope:      ScopeWholeSubtree,
		Filter:     fmt.Sprintf("(&(objectClass=user)(memberOf=%s))", ldap.EscapeFilter(groupDN)),
		Attributes: userAttributes,
		Paged:      true,
	})
	if err != nil {
		LogLDAPError(ctx, Subsystem, "list_group_members", err, map[string]any{
			"base_dn":  baseOU,
			"group_dn": groupDN,
		})
		return nil, NewLDAPError("list_group_members", baseOU, err)
	}

	users := make([]UserRecord, 0, len(entries))
	for _, entry := range entries {
		user, err := newUserRecord(entry)
		if err != nil {
			return nil, NewLDAPError("list_group_members", baseOU, err)
		}
		users = append(users, user)
	}

	return users, nil
}
