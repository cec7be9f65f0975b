package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDeleteSecret(t *testing.T) {
	require.NoError(t, SetSecret("FOO_KEY", "bar"))
	val, err := GetSecret("FOO_KEY")
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	require.NoError(t, DeleteSecret("FOO_KEY"))
	_, err = GetSecret("FOO_KEY")
	assert.Error(t, err)
}

func TestGetSecret_FallsBackToEnv(t *testing.T) {
	t.Setenv("SOME_ENV_SECRET", "env-value")
	val, err := GetSecret("SOME_ENV_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "env-value", val)
}

func TestGetSecret_NotFound(t *testing.T) {
	_, err := GetSecret("DEFINITELY_NOT_SET_ANYWHERE")
	assert.Error(t, err)
}

func TestEncryptDecryptSecretsFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	secrets := map[string]string{"OPENAI_API_KEY": "sk-abc", "ANTHROPIC_API_KEY": "sk-def"}

	require.NoError(t, EncryptSecretsFile(dir, "correct horse battery staple", secrets))
	assert.True(t, SecretsFileExists(dir))

	decrypted, err := DecryptSecretsFile(dir, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, secrets, decrypted)
}

func TestDecryptSecretsFile_WrongPassword(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EncryptSecretsFile(dir, "right-password", map[string]string{"K": "V"}))

	_, err := DecryptSecretsFile(dir, "wrong-password")
	assert.Error(t, err)
}

func TestGetDecryptedSecretNames(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"A": "1", "B": "2"})
	names := GetDecryptedSecretNames()
	assert.ElementsMatch(t, []string{"A", "B"}, names)
}
