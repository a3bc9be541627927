package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirePrivilege(t *testing.T) {
	checker := NewChecker("secret", []string{"manager", "admin"})

	manager, err := checker.IssueToken("alice", "manager")
	require.NoError(t, err)
	assert.NoError(t, checker.RequirePrivilege(manager))

	staff, err := checker.IssueToken("bob", "staff")
	require.NoError(t, err)
	assert.Error(t, checker.RequirePrivilege(staff))

	assert.Error(t, checker.RequirePrivilege(""))
	assert.Error(t, checker.RequirePrivilege("not-a-token"))
}

func TestRejectsForeignSecret(t *testing.T) {
	checker := NewChecker("secret", []string{"manager"})
	other := NewChecker("other-secret", []string{"manager"})

	token, err := other.IssueToken("mallory", "manager")
	require.NoError(t, err)
	assert.Error(t, checker.RequirePrivilege(token))
}
