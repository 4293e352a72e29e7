package ldap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/go-ldap/ldap/v3/gssapi"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	krb5client "github.com/jcmturner/gokrb5/v8/client"
)

const defaultKrb5Config = "/etc/krb5.conf"

// bindKerberos performs a GSSAPI bind on conn.
func (s *Session) bindKerberos(ctx context.Context, conn Conn, server *ServerInfo, cred *BindCredential) error {
	client, err := s.newGSSAPIClient(cred)
	if err != nil {
		return fmt.Errorf("failed to create GSSAPI client: %w", err)
	}
	defer func() {
		_ = client.DeleteSecContext()
	}()

	spn, err := buildServicePrincipal(cred, server)
	if err != nil {
		return fmt.Errorf("failed to build service principal: %w", err)
	}

	tflog.SubsystemDebug(ctx, Subsystem, "Performing GSSAPI bind", map[string]any{
		"service_principal": spn,
		"username":          cred.Username,
	})

	if err := conn.GSSAPIBind(client, spn, ""); err != nil {
		return fmt.Errorf("GSSAPI bind failed: %w", err)
	}

	return nil
}

// newPasswordGSSAPIClient obtains a Kerberos ticket with the service account password.
func newPasswordGSSAPIClient(cred *BindCredential) (ldap.GSSAPIClient, error) {
	krb5conf := cred.KerberosConfig
	if krb5conf == "" {
		krb5conf = defaultKrb5Config
	}

	if _, err := os.Stat(krb5conf); err != nil {
		return nil, fmt.Errorf("kerberos configuration file not found at %s: set kerberos_config to a valid krb5.conf", krb5conf)
	}

	username, realm := splitPrincipal(cred.Username, cred.KerberosRealm)
	if realm == "" {
		return nil, fmt.Errorf("kerberos realm is required (set kerberos_realm or use a user@REALM login)")
	}

	if cred.Password == "" {
		return nil, fmt.Errorf("password is required for Kerberos authentication")
	}

	return gssapi.NewClientWithPassword(username, realm, cred.Password, krb5conf, krb5client.DisablePAFXFAST(true))
}

// splitPrincipal separates user@REALM, preferring an explicitly configured realm.
func splitPrincipal(login, realm string) (string, string) {
	user, loginRealm, found := strings.Cut(login, "@")
	if !found {
		return login, realm
	}
	if realm == "" {
		realm = strings.ToUpper(loginRealm)
	}
	return user, realm
}

// buildServicePrincipal constructs the LDAP service principal name from server info.
// A configured SPN overrides the ldap/<host> default.
func buildServicePrincipal(cred *BindCredential, server *ServerInfo) (string, error) {
	if cred != nil && cred.KerberosSPN != "" {
		return cred.KerberosSPN, nil
	}

	if server == nil || server.Host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	hostname := server.Host
	if colonPos := strings.Index(hostname, ":"); colonPos != -1 {
		hostname = hostname[:colonPos]
	}

	return fmt.Sprintf("ldap/%s", hostname), nil
}
