package persistence

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	r, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestCreateAndListConversations(t *testing.T) {
	r := newTestRegistry(t)

	require.NoError(t, r.CreateConversation("sam--alice@abcd-1234", "sam", "alice"))
	require.NoError(t, r.CreateConversation("sam--bob@ef01-5678", "sam", "bob"))

	ids, err := r.ListConversations()
	require.NoError(t, err)
	assert.Equal(t, []string{"sam--alice@abcd-1234", "sam--bob@ef01-5678"}, ids)
}

func TestDeleteConversation(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.CreateConversation("sam--alice@abcd-1234", "sam", "alice"))
	require.NoError(t, r.DeleteConversation("sam--alice@abcd-1234"))

	ids, err := r.ListConversations()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestHumanIDsDefaultsToOne(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.CreateConversation("sam--alice@abcd-1234", "sam", "alice"))

	ids, err := r.HumanIDs("sam--alice@abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
}

func TestHumanIDsUnknownConversationErrors(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.HumanIDs("missing")
	assert.Error(t, err)
}

func TestAddHumanAppendsID(t *testing.T) {
	r := newTestRegistry(t)
	require.NoError(t, r.CreateConversation("sam--alice@abcd-1234", "sam", "alice"))
	require.NoError(t, r.AddHuman("sam--alice@abcd-1234", 2))

	ids, err := r.HumanIDs("sam--alice@abcd-1234")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids)
}
