package ldap

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// ConnectionConfig holds settings shared by every directory session.
type ConnectionConfig struct {
	Timeout time.Duration // Dial timeout and upper bound for each request

	// TLS settings
	UseTLS    bool        // Dial ldaps:// instead of ldap://
	StartTLS  bool        // Upgrade plain connections with StartTLS
	TLSConfig *tls.Config // Custom TLS configuration

	// Search settings
	PageSize uint32 // Simple paged results size for subtree searches

	// Retry settings (dial and StartTLS only)
	MaxRetries     int           // Maximum retry attempts
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	BackoffFactor  float64       // Backoff multiplication factor
}

// DefaultConfig returns a secure default configuration.
func DefaultConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Timeout:        30 * time.Second,
		PageSize:       1000,
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
}

// ServerInfo contains information about an LDAP server.
type ServerInfo struct {
	Host   string
	Port   int
	UseTLS bool
}

// URL returns the LDAP URL for the server.
func (s *ServerInfo) URL() string {
	scheme := "ldap"
	port := s.Port
	if s.UseTLS {
		scheme = "ldaps"
		if port == 0 {
			port = 636
		}
	}
	if port == 0 {
		port = 389
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, port)
}

// BindCredential is the identity a session binds as.
type BindCredential struct {
	Username string
	Password string
	Method   AuthMethod

	KerberosRealm  string // Realm for GSSAPI authentication
	KerberosConfig string // Path to krb5.conf
	KerberosSPN    string // Overrides the ldap/<host> service principal
}

// String never includes the password.
func (c *BindCredential) String() string {
	return fmt.Sprintf("%s (%s)", c.Username, c.Method)
}

// SearchRequest encapsulates LDAP search parameters.
type SearchRequest struct {
	BaseDN     string
	Scope      SearchScope
	Filter     string
	Attributes []string
	SizeLimit  int
	Paged      bool
}

// SearchScope defines LDAP search scope.
type SearchScope int

const (
	ScopeBaseObject SearchScope = iota
	ScopeSingleLevel
	ScopeWholeSubtree
)

// String returns the scope name used in log fields.
func (s SearchScope) String() string {
	switch s {
	case ScopeBaseObject:
		return "base"
	case ScopeSingleLevel:
		return "one"
	case ScopeWholeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

func (s SearchScope) ldapScope() int {
	switch s {
	case ScopeBaseObject:
		return ldap.ScopeBaseObject
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel
	default:
		return ldap.ScopeWholeSubtree
	}
}

// AuthMethod defines authentication method types.
type AuthMethod int

const (
	AuthMethodSimpleBind AuthMethod = iota // Username/password authentication
	AuthMethodKerberos                     // GSSAPI/Kerberos authentication
)

// String returns string representation of authentication method.
func (a AuthMethod) String() string {
	switch a {
	case AuthMethodSimpleBind:
		return "simple"
	case AuthMethodKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// ParseAuthMethod maps a configuration value to an AuthMethod.
func ParseAuthMethod(s string) (AuthMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return AuthMethodSimpleBind, nil
	case "kerberos", "gssapi":
		return AuthMethodKerberos, nil
	default:
		return 0, fmt.Errorf("unsupported authentication method %q (valid: simple, kerberos)", s)
	}
}

// Conn is the subset of an LDAP connection a Session drives.
type Conn interface {
	StartTLS(config *tls.Config) error
	SetTimeout(timeout time.Duration)
	Bind(username, password string) error
	GSSAPIBind(client ldap.GSSAPIClient, servicePrincipal, authzid string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Close() error
}
