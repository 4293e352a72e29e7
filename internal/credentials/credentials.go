// Package credentials resolves a domain identifier to the service account
// configured for it.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/terraform-plugin-log/tflog"

	"github.com/isometry/adis/internal/config"
	"github.com/isometry/adis/internal/ldap"
)

// Subsystem is the tflog subsystem used for credential lookups.
const Subsystem = "credentials"

// ErrUnknownDomain is returned when no credential is configured for a domain.
var ErrUnknownDomain = errors.New("no credentials configured for domain")

// Credential is the service account for one directory domain.
type Credential struct {
	Name     string
	Host     string
	Port     int
	Login    string
	Password string

	Auth           ldap.AuthMethod
	KerberosRealm  string
	KerberosConfig string
	KerberosSPN    string
}

// String never includes the password.
func (c Credential) String() string {
	return fmt.Sprintf("%s@%s:%d (%s)", c.Login, c.Host, c.Port, c.Auth)
}

// GoString keeps %#v from printing the password.
func (c Credential) GoString() string {
	return "credentials.Credential{" + c.String() + "}"
}

// Server describes where to connect.
func (c Credential) Server(useTLS bool) *ldap.ServerInfo {
	return &ldap.ServerInfo{
		Host:   c.Host,
		Port:   c.Port,
		UseTLS: useTLS,
	}
}

// Bind describes who to bind as.
func (c Credential) Bind() *ldap.BindCredential {
	return &ldap.BindCredential{
		Username:       c.Login,
		Password:       c.Password,
		Method:         c.Auth,
		KerberosRealm:  c.KerberosRealm,
		KerberosConfig: c.KerberosConfig,
		KerberosSPN:    c.KerberosSPN,
	}
}

// Table is an immutable, exact-match lookup of credentials by host.
type Table struct {
	byDomain map[string]Credential
}

// NewTable builds the lookup table from configured servers.
func NewTable(servers []config.Server) (*Table, error) {
	table := &Table{byDomain: make(map[string]Credential, len(servers))}

	for i, server := range servers {
		if server.Host == "" {
			return nil, fmt.Errorf("servers[%d]: host is required", i)
		}
		if _, dup := table.byDomain[server.Host]; dup {
			return nil, fmt.Errorf("servers[%d]: duplicate host %q", i, server.Host)
		}

		auth, err := ldap.ParseAuthMethod(server.Auth)
		if err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}

		table.byDomain[server.Host] = Credential{
			Name:           server.Name,
			Host:           server.Host,
			Port:           server.Port,
			Login:          server.Login,
			Password:       server.Password,
			Auth:           auth,
			KerberosRealm:  server.KerberosRealm,
			KerberosConfig: server.KerberosConfig,
			KerberosSPN:    server.KerberosSPN,
		}
	}

	return table, nil
}

// Resolve returns the credential whose host equals domain exactly.
func (t *Table) Resolve(ctx context.Context, domain string) (Credential, error) {
	credential, ok := t.byDomain[domain]
	if !ok {
		tflog.SubsystemWarn(ctx, Subsystem, "Unknown domain requested", map[string]any{
			"domain": domain,
		})
		return Credential{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Resolved credentials", map[string]any{
		"domain": domain,
		"login":  credential.Login,
		"auth":   credential.Auth.String(),
	})

	return credential, nil
}

// Domains lists the configured domain identifiers in sorted order.
func (t *Table) Domains() []string {
	domains := make([]string, 0, len(t.byDomain))
	for domain := range t.byDomain {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Describe lists every credential without passwords, one per line.
func (t *Table) Describe() string {
	var b strings.Builder
	for _, domain := range t.Domains() {
		credential := t.byDomain[domain]
		fmt.Fprintf(&b, "%-24s %s\n", credential.Name, credential)
	}
	return b.String()
}
