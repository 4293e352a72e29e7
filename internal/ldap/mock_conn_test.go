package ldap

import (
	"crypto/tls"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockConn implements the Conn interface for testing session operations
type MockConn struct {
	mock.Mock
}

func (m *MockConn) StartTLS(config *tls.Config) error {
	args := m.Called(config)
	return args.Error(0)
}

func (m *MockConn) SetTimeout(timeout time.Duration) {
	m.Called(timeout)
}

func (m *MockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockConn) GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error {
	args := m.Called(client, servicePrincipal, authzid)
	return args.Error(0)
}

func (m *MockConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(req)
	result, _ := args.Get(0).(*ldap.SearchResult)
	return result, args.Error(1)
}

func (m *MockConn) SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	args := m.Called(req, pagingSize)
	result, _ := args.Get(0).(*ldap.SearchResult)
	return result, args.Error(1)
}

func (m *MockConn) Add(req *ldap.AddRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

// newMockConn returns a MockConn that accepts any number of SetTimeout calls.
func newMockConn() *MockConn {
	conn := &MockConn{}
	conn.On("SetTimeout", mock.Anything).Maybe()
	return conn
}

func testConfig() *ConnectionConfig {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 2 * time.Millisecond
	return cfg
}

// openedSession returns a session already holding conn.
func openedSession(conn *MockConn) *Session {
	s := NewSession(testConfig())
	s.conn = conn
	s.server = &ServerInfo{Host: "dc1.test.local", Port: 389}
	s.boundAs = "svc-adis@test.local"
	return s
}

func searchMatching(baseDN string, scope int, filter string) any {
	return mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == baseDN && req.Scope == scope && req.Filter == filter
	})
}

func mustGUIDBytes(t *testing.T, guid string) []byte {
	t.Helper()
	b, err := ParseObjectGUID(guid)
	require.NoError(t, err)
	return b
}
