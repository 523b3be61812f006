package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretsEncryptDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".codegen", DefaultSecretsFile)
	secrets := map[string]string{"ANTHROPIC_API_KEY": "sk-ant-test"}

	require.NoError(t, EncryptSecretsFile(path, "hunter2", secrets))
	assert.True(t, SecretsFileExists(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := DecryptSecretsFile(path, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, secrets, got)

	_, err = DecryptSecretsFile(path, "wrong")
	assert.ErrorContains(t, err, "wrong password")
}

func TestDecryptRejectsTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultSecretsFile)
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	_, err := DecryptSecretsFile(path, "pw")
	assert.ErrorContains(t, err, "too small")
}

func TestGetSecretPrecedence(t *testing.T) {
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	t.Setenv("CODEGEN_TEST_KEY", "from-env")
	v, err := GetSecret("CODEGEN_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)

	SetDecryptedSecrets(map[string]string{"CODEGEN_TEST_KEY": "from-file"})
	v, err = GetSecret("CODEGEN_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "from-file", v)
	assert.Equal(t, []string{"CODEGEN_TEST_KEY"}, SecretNames())

	_, err = GetSecret("CODEGEN_TEST_MISSING")
	assert.Error(t, err)
}
