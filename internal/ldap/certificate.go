package ldap

import (
	"context"
	"encoding/base64"
	"fmt"
)

// ReadUserCertificates returns the userCertificate values of the user whose
// objectGUID is userGUID, base64 encoded in the order the server returned them.
// Only the first matching entry is read. A user with no certificates yields
// an empty slice; no matching user is a not-found error.
func (s *Session) ReadUserCertificates(ctx context.Context, baseOU, userGUID string) ([]CertificateRecord, error) {
	guidBytes, err := ParseObjectGUID(userGUID)
	if err != nil {
		return nil, &LDAPError{
			Operation: "read_user_certificates",
			Category:  ErrorCategoryValidation,
			Message:   err.Error(),
			Cause:     err,
		}
	}

	entries, err := s.search(ctx, &SearchRequest{
		BaseDN:     baseOU,
		Scope:      ScopeWholeSubtree,
		Filter:     GUIDSearchFilter(guidBytes),
		Attributes: []string{"userCertificate"},
	})
	if err != nil {
		LogLDAPError(ctx, Subsystem, "read_user_certificates", err, map[string]any{
			"base_dn":   baseOU,
			"user_guid": userGUID,
		})
		return nil, NewLDAPError("read_user_certificates", baseOU, err)
	}

	if len(entries) == 0 {
		return nil, NewNotFoundError("read_user_certificates", baseOU, fmt.Sprintf("user %s not found", userGUID))
	}

	values := entries[0].GetRawAttributeValues("userCertificate")
	certificates := make([]CertificateRecord, 0, len(values))
	for _, value := range values {
		certificates = append(certificates, CertificateRecord{
			CertificateData: base64.StdEncoding.EncodeToString(value),
		})
	}

	return certificates, nil
}
