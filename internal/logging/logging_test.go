package logging

import (
	"bytes"
	"testing"

	"github.com/hashicorp/terraform-plugin-log/tflog"
	"github.com/hashicorp/terraform-plugin-log/tflogtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithSubsystems_MasksSecrets(t *testing.T) {
	var output bytes.Buffer
	ctx := tflogtest.RootLogger(t.Context(), &output)
	ctx = WithSubsystems(ctx, "ldap", "dispatch")

	tflog.SubsystemInfo(ctx, "ldap", "Binding", map[string]any{
		"login":    "svc-adis@corp.example",
		"password": "s3cret",
	})
	tflog.SubsystemInfo(ctx, "dispatch", "Configured", map[string]any{
		"api_key": "k3y",
	})

	assert.NotContains(t, output.String(), "s3cret")
	assert.NotContains(t, output.String(), "k3y")

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "provider.ldap", entries[0]["@module"])
	assert.Equal(t, "svc-adis@corp.example", entries[0]["login"])
	assert.Equal(t, "***", entries[0]["password"])
	assert.Equal(t, "provider.dispatch", entries[1]["@module"])
	assert.Equal(t, "***", entries[1]["api_key"])
}

func TestWithSubsystems_LevelFromEnvironment(t *testing.T) {
	t.Setenv(LevelEnv+"_LDAP", "ERROR")

	var output bytes.Buffer
	ctx := tflogtest.RootLogger(t.Context(), &output)
	ctx = WithSubsystems(ctx, "ldap", "server")

	tflog.SubsystemInfo(ctx, "ldap", "suppressed")
	tflog.SubsystemError(ctx, "ldap", "kept")
	tflog.SubsystemInfo(ctx, "server", "inherited")

	entries, err := tflogtest.MultilineJSONDecode(&output)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0]["@message"])
	assert.Equal(t, "inherited", entries[1]["@message"])
}
