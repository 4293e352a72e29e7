package ldap

import (
	"context"
	"strconv"
)

// GroupScope represents the scope of an Active Directory group.
type GroupScope string

const (
	GroupScopeGlobal      GroupScope = "Global"      // Global groups can contain members from the same domain
	GroupScopeUniversal   GroupScope = "Universal"   // Universal groups can contain members from any domain in the forest
	GroupScopeDomainLocal GroupScope = "DomainLocal" // Domain Local groups can contain members from any domain
)

// GroupCategory represents the category of an Active Directory group.
type GroupCategory string

const (
	GroupCategorySecurity     GroupCategory = "Security"     // Security group for access control
	GroupCategoryDistribution GroupCategory = "Distribution" // Distribution group for email distribution lists
)

// Active Directory group type bit flags.
const (
	// Group scope flags (mutually exclusive).
	GroupTypeFlagGlobal      int32 = 0x00000002 // ADS_GROUP_TYPE_GLOBAL_GROUP
	GroupTypeFlagDomainLocal int32 = 0x00000004 // ADS_GROUP_TYPE_DOMAIN_LOCAL_GROUP
	GroupTypeFlagUniversal   int32 = 0x00000008 // ADS_GROUP_TYPE_UNIVERSAL_GROUP

	// Group category flag.
	GroupTypeFlagSecurity int32 = -2147483648 // ADS_GROUP_TYPE_SECURITY_ENABLED (0x80000000 as signed int32)
)

// CalculateGroupType calculates the Active Directory groupType value from scope and category.
func CalculateGroupType(scope GroupScope, category GroupCategory) int32 {
	var groupType int32

	switch scope {
	case GroupScopeGlobal:
		groupType = GroupTypeFlagGlobal
	case GroupScopeDomainLocal:
		groupType = GroupTypeFlagDomainLocal
	case GroupScopeUniversal:
		groupType = GroupTypeFlagUniversal
	}

	if category == GroupCategorySecurity {
		groupType |= GroupTypeFlagSecurity
	}

	return groupType
}

// ListGroups returns every group in the subtree rooted at baseOU. An OU with
// no groups yields an empty, non-nil slice.
func (s *Session) ListGroups(ctx context.Context, baseOU string) ([]GroupRecord, error) {
	entries, err := s.search(ctx, &SearchRequest{
		BaseDN:     baseOU,
		Scope:      ScopeWholeSubtree,
		Filter:     "(objectClass=group)",
		Attributes: groupAttributes,
		Paged:      true,
	})
	if err != nil {
		LogLDAPError(ctx, Subsystem, "list_groups", err, map[string]any{"base_dn": baseOU})
		return nil, NewLDAPError("list_groups", baseOU, err)
	}

	groups := make([]GroupRecord, 0, len(entries))
	for _, entry := range entries {
		group, err := newGroupRecord(entry)
		if err != nil {
			return nil, NewLDAPError("list_groups", baseOU, err)
		}
		groups = append(groups, group)
	}

	return groups, nil
}

// CreateGroup adds a global security group named cn directly below baseOU.
// An empty description is omitted. The call is not idempotent: a second call
// with the same cn fails with the server's "entry already exists" diagnostic.
func (s *Session) CreateGroup(ctx context.Context, baseOU, cn, description string) ([]CreatedGroup, error) {
	groupDN := ChildDN("CN", cn, baseOU)
	groupType := CalculateGroupType(GroupScopeGlobal, GroupCategorySecurity)

	attributes := map[string][]string{
		"objectClass":    {"top", "group"},
		"cn":             {cn},
		"sAMAccountName": {cn},
		"groupType":      {strconv.FormatInt(int64(groupType), 10)},
	}

	if description != "" {
		attributes["description"] = []string{description}
	}

	if err := s.add(ctx, &AddRequest{DN: groupDN, Attributes: attributes}); err != nil {
		LogLDAPError(ctx, Subsystem, "create_group", err, map[string]any{"dn": groupDN})
		return nil, NewLDAPError("create_group", groupDN, err)
	}

	return []CreatedGroup{{GroupDN: groupDN}}, nil
}
