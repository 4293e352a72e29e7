package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
general:
  api_key: secret-key
ldap:
  timeout: 10s
servers:
  - name: CORP
    host: dc1.corp.example
    login: svc-adis@corp.example
    password: s3cret
  - name: LAB
    host: dc1.lab.example
    port: 636
    login: svc-adis
    password: s3cret
    auth: kerberos
    kerberos_realm: LAB.EXAMPLE
`

func TestParse_Defaults(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret-key", cfg.General.APIKey)
	assert.Equal(t, ":8000", cfg.General.ListenAddr)
	assert.Equal(t, 60*time.Second, cfg.General.RequestTimeout)

	assert.Equal(t, 10*time.Second, cfg.LDAP.Timeout)
	assert.Equal(t, uint32(1000), cfg.LDAP.PageSize)
	assert.Equal(t, 2, cfg.LDAP.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.LDAP.InitialBackoff)
	assert.Equal(t, 5*time.Second, cfg.LDAP.MaxBackoff)
	assert.InDelta(t, 2.0, cfg.LDAP.BackoffFactor, 0.0001)

	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, 389, cfg.Servers[0].Port)
	assert.Equal(t, "simple", cfg.Servers[0].Auth)
	assert.Equal(t, 636, cfg.Servers[1].Port)
	assert.Equal(t, "kerberos", cfg.Servers[1].Auth)
}

func TestParse_APIKeyFromEnvironment(t *testing.T) {
	t.Setenv(APIKeyEnv, "from-env")

	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.General.APIKey)

	cfg, err = Parse([]byte("servers: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.General.APIKey)
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "empty document",
			yaml:    "",
			wantErr: []string{"general.api_key is required"},
		},
		{
			name:    "unknown key",
			yaml:    "general:\n  api_key: k\n  listen: :9000\n",
			wantErr: []string{"failed to parse config file", "listen"},
		},
		{
			name: "missing host and login",
			yaml: "general:\n  api_key: k\nservers:\n  - name: X\n",
			wantErr: []string{
				"servers[0]: host is required",
				"servers[0]: login is required",
			},
		},
		{
			name: "duplicate host",
			yaml: `
general:
  api_key: k
servers:
  - host: dc1.corp.example
    login: a
  - host: DC1.corp.example
    login: b
`,
			wantErr: []string{`servers[1]: duplicate host "DC1.corp.example" (already defined by servers[0])`},
		},
		{
			name:    "unsupported auth",
			yaml:    "general:\n  api_key: k\nservers:\n  - host: dc1\n    login: a\n    auth: ntlm\n",
			wantErr: []string{"servers[0]:", "ntlm"},
		},
		{
			name:    "conflicting tls modes",
			yaml:    "general:\n  api_key: k\nldap:\n  use_tls: true\n  start_tls: true\n",
			wantErr: []string{"mutually exclusive"},
		},
		{
			name:    "bad duration",
			yaml:    "general:\n  api_key: k\n  request_timeout: soon\n",
			wantErr: []string{"failed to parse config file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "conf.yml")
		require.NoError(t, os.WriteFile(path, []byte(validConfig), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, cfg.Servers, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("error names the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("general: {}\n"), 0o600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), path)
	})
}

func TestConnectionConfig(t *testing.T) {
	t.Setenv(APIKeyEnv, "")

	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	conn, err := cfg.ConnectionConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, conn.Timeout)
	assert.Equal(t, uint32(1000), conn.PageSize)
	assert.Equal(t, 2, conn.MaxRetries)
	require.NotNil(t, conn.TLSConfig)
	assert.False(t, conn.TLSConfig.InsecureSkipVerify)
	assert.Nil(t, conn.TLSConfig.RootCAs)

	t.Run("ca file", func(t *testing.T) {
		cfg.LDAP.CACertFile = writeTestCA(t)

		conn, err := cfg.ConnectionConfig()
		require.NoError(t, err)
		assert.NotNil(t, conn.TLSConfig.RootCAs)
	})

	t.Run("ca file without certificates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a certificate"), 0o600))
		cfg.LDAP.CACertFile = path

		_, err := cfg.ConnectionConfig()
		assert.ErrorContains(t, err, "contains no PEM certificates")
	})
}

func writeTestCA(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}
