package ldap

import (
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestSession_ReadUserCertificates(t *testing.T) {
	const guid = "12345678-1234-5678-9abc-def012345678"
	wantFilter := `(objectGUID=\78\56\34\12\34\12\78\56\9a\bc\de\f0\12\34\56\78)`

	certA := []byte{0x30, 0x82, 0x01, 0x0a, 0x00, 0xff}
	certB := []byte("second certificate")

	t.Run("certificates in source order", func(t *testing.T) {
		conn := newMockConn()
		conn.On("Search", searchMatching(testUsersOU, ldap.ScopeWholeSubtree, wantFilter)).
			Return(&ldap.SearchResult{Entries: []*ldap.Entry{{
				DN: "CN=jdoe," + testUsersOU,
				Attributes: []*ldap.EntryAttribute{
					{Name: "userCertificate", ByteValues: [][]byte{certA, certB}},
				},
			}}}, nil).Once()

		certs, err := openedSession(conn).ReadUserCertificates(t.Context(), testUsersOU, guid)
		require.NoError(t, err)
		require.Len(t, certs, 2)

		for i, want := range [][]byte{certA, certB} {
			decoded, err := base64.StdEncoding.DecodeString(certs[i].CertificateData)
			require.NoError(t, err)
			assert.Equal(t, want, decoded)
		}
		conn.AssertExpectations(t)
	})

	t.Run("raw hex identifier is used verbatim", func(t *testing.T) {
		raw := mustGUIDBytes(t, guid)

		conn := newMockConn()
		conn.On("Search", searchMatching(testUsersOU, ldap.ScopeWholeSubtree, wantFilter)).
			Return(&ldap.SearchResult{Entries: []*ldap.Entry{{DN: "CN=jdoe," + testUsersOU}}}, nil).Once()

		certs, err := openedSession(conn).ReadUserCertificates(t.Context(), testUsersOU, hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Empty(t, certs)
		conn.AssertExpectations(t)
	})

	t.Run("only the first entry is read", func(t *testing.T) {
		conn := newMockConn()
		conn.On("Search", mock.Anything).
			Return(&ldap.SearchResult{Entries: []*ldap.Entry{
				{DN: "CN=first", Attributes: []*ldap.EntryAttribute{{Name: "userCertificate", ByteValues: [][]byte{certA}}}},
				{DN: "CN=second", Attributes: []*ldap.EntryAttribute{{Name: "userCertificate", ByteValues: [][]byte{certB}}}},
			}}, nil).Once()

		certs, err := openedSession(conn).ReadUserCertificates(t.Context(), testUsersOU, guid)
		require.NoError(t, err)
		require.Len(t, certs, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString(certA), certs[0].CertificateData)
	})

	t.Run("no matching user", func(t *testing.T) {
		conn := newMockConn()
		conn.On("Search", mock.Anything).Return(&ldap.SearchResult{}, nil).Once()

		certs, err := openedSession(conn).ReadUserCertificates(t.Context(), testUsersOU, guid)
		require.Error(t, err)
		assert.Nil(t, certs)
		assert.True(t, IsNotFoundError(err))
		assert.Contains(t, err.Error(), guid)
	})

	t.Run("malformed identifier never reaches the server", func(t *testing.T) {
		conn := newMockConn()

		_, err := openedSession(conn).ReadUserCertificates(t.Context(), testUsersOU, "not-a-guid")
		require.Error(t, err)
		assert.Equal(t, ErrorCategoryValidation, GetErrorCategory(err))
		conn.AssertNotCalled(t, "Search", mock.Anything)
	})
}
