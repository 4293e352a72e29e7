package ldap

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"
)

// Value is a projected attribute. It serialises as null when the entry lacks
// the attribute, as a string when it has one value and as an ordered list
// otherwise.
type Value []string

func (v Value) MarshalJSON() ([]byte, error) {
	switch len(v) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(v[0])
	default:
		return json.Marshal([]string(v))
	}
}

// String returns the first value, or "" when absent.
func (v Value) String() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// GroupRecord is one group returned by ListGroups.
type GroupRecord struct {
	CN                Value `json:"cn"`
	SAMAccountName    Value `json:"sAMAccountName"`
	ObjectGUID        Value `json:"objectGUID"`
	DistinguishedName Value `json:"distinguishedName"`
	Description       Value `json:"description"`
}

// UserRecord is one member returned by ListGroupMembers.
type UserRecord struct {
	SAMAccountName     *string `json:"sAMAccountName"`
	CN                 *string `json:"cn"`
	Mail               *string `json:"mail"`
	DistinguishedName  *string `json:"distinguishedName"`
	ObjectGUID         *string `json:"objectGUID"`
	EmployeeNumber     *string `json:"employeeNumber"`
	UserPrincipalName  *string `json:"userPrincipalName"`
	UserAccountControl *int64  `json:"userAccountControl"`
}

// CertificateRecord is one userCertificate value, base64 encoded.
type CertificateRecord struct {
	CertificateData string `json:"certificate_data"`
}

// CreatedGroup is the result of CreateGroup.
type CreatedGroup struct {
	GroupDN string `json:"group_dn"`
}

var groupAttributes = []string{"cn", "description", "distinguishedName", "objectGUID", "sAMAccountName"}

var userAttributes = []string{
	"sAMAccountName",
	"cn",
	"mail",
	"distinguishedName",
	"objectGUID",
	"employeeNumber",
	"userPrincipalName",
	"userAccountControl",
}

func newGroupRecord(entry *ldap.Entry) (GroupRecord, error) {
	record := GroupRecord{
		CN:                attributeValue(entry, "cn"),
		SAMAccountName:    attributeValue(entry, "sAMAccountName"),
		DistinguishedName: attributeValue(entry, "distinguishedName"),
		Description:       attributeValue(entry, "description"),
	}

	guid, ok, err := entryGUID(entry)
	if err != nil {
		return GroupRecord{}, fmt.Errorf("group %w", err)
	}
	if ok {
		record.ObjectGUID = Value{guid}
	}

	return record, nil
}

func newUserRecord(entry *ldap.Entry) (UserRecord, error) {
	record := UserRecord{
		SAMAccountName:    optionalString(entry, "sAMAccountName"),
		CN:                optionalString(entry, "cn"),
		Mail:              optionalString(entry, "mail"),
		DistinguishedName: optionalString(entry, "distinguishedName"),
		EmployeeNumber:    optionalString(entry, "employeeNumber"),
		UserPrincipalName: optionalString(entry, "userPrincipalName"),
	}

	guid, ok, err := entryGUID(entry)
	if err != nil {
		return UserRecord{}, fmt.Errorf("user %w", err)
	}
	if ok {
		record.ObjectGUID = &guid
	}

	if uac := optionalString(entry, "userAccountControl"); uac != nil {
		flags, err := strconv.ParseInt(*uac, 10, 64)
		if err != nil {
			return UserRecord{}, fmt.Errorf("user %s: invalid userAccountControl %q: %w", entry.DN, *uac, err)
		}
		record.UserAccountControl = &flags
	}

	return record, nil
}

// attributeValue returns all values of name, or nil when the entry lacks it.
func attributeValue(entry *ldap.Entry, name string) Value {
	values := entry.GetAttributeValues(name)
	if len(values) == 0 {
		return nil
	}
	return Value(values)
}

func optionalString(entry *ldap.Entry, name string) *string {
	values := entry.GetAttributeValues(name)
	if len(values) == 0 {
		return nil
	}
	return &values[0]
}
