package dispatch

import (
	"fmt"
	"strings"
)

// Method names one of the supported directory operations.
type Method string

const (
	MethodListGroupsByOU      Method = "list_groups_by_ou"
	MethodListUsersByGroup    Method = "list_users_by_group"
	MethodCreateGroup         Method = "create_group"
	MethodGetUserCertificates Method = "get_user_certificates"
)

// Methods returns every supported method in a stable order.
func Methods() []Method {
	return []Method{
		MethodListGroupsByOU,
		MethodListUsersByGroup,
		MethodCreateGroup,
		MethodGetUserCertificates,
	}
}

// ParseMethod accepts only the exact wire names.
func ParseMethod(name string) (Method, error) {
	for _, m := range Methods() {
		if string(m) == name {
			return m, nil
		}
	}

	valid := make([]string, 0, len(Methods()))
	for _, m := range Methods() {
		valid = append(valid, string(m))
	}

	return "", fmt.Errorf("unknown method %q (valid methods: %s)", name, strings.Join(valid, ", "))
}

func (m Method) String() string {
	return string(m)
}
